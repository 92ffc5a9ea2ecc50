package gitgw

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"lukechampine.com/blake3"
)

// FakeGateway is an in-memory Gateway for tests, standing in for a real git
// object store and index. It hashes content with BLAKE3-256, the same
// algorithm the teacher's content-addressing package uses for its CIDs,
// producing the same 64-hex-character width a sha256 git object store would.
type FakeGateway struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	index   map[string][]byte // path -> staged blob contents
	config  map[string][]byte
	rootDir string
}

// NewFakeGateway returns an empty FakeGateway rooted at root (used only for
// RepoRoot()).
func NewFakeGateway(root string) *FakeGateway {
	return &FakeGateway{
		blobs:   make(map[string][]byte),
		index:   make(map[string][]byte),
		config:  make(map[string][]byte),
		rootDir: root,
	}
}

// StoreBytes implements Gateway.
func (f *FakeGateway) StoreBytes(payload []byte) (string, error) {
	sum := blake3.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[hash] = append([]byte(nil), payload...)
	return hash, nil
}

// FetchBytes implements Gateway.
func (f *FakeGateway) FetchBytes(hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("fake gateway: no blob stored for hash %s", hash)
	}
	return append([]byte(nil), data...), nil
}

// ListTrackedPaths implements Gateway.
func (f *FakeGateway) ListTrackedPaths() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.index))
	for p := range f.index {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ShowStagedBlob implements Gateway.
func (f *FakeGateway) ShowStagedBlob(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.index[path]
	if !ok {
		return nil, fmt.Errorf("fake gateway: %s is not staged", path)
	}
	return append([]byte(nil), data...), nil
}

// StagePaths implements Gateway. In the fake, staging is always a no-op:
// tests call StageContent directly to seed the index, mirroring what a real
// `git add` does after a working-tree write.
func (f *FakeGateway) StagePaths(paths ...string) error {
	return nil
}

// StageContent is a test-only helper seeding the fake index, standing in for
// a real `git add` after the working tree already has path's post-clean
// contents.
func (f *FakeGateway) StageContent(path string, contents []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index[path] = append([]byte(nil), contents...)
}

// ReadConfig implements Gateway.
func (f *FakeGateway) ReadConfig(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.config[key]
	return v, ok
}

// SetConfig is a test-only helper seeding config values.
func (f *FakeGateway) SetConfig(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = value
}

// WriteConfig implements Gateway.
func (f *FakeGateway) WriteConfig(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = []byte(value)
	return nil
}

// UnsetConfig implements Gateway. Unsetting an already-absent key is not an
// error, matching the real gateway.
func (f *FakeGateway) UnsetConfig(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.config, key)
	return nil
}

// RepoRoot implements Gateway.
func (f *FakeGateway) RepoRoot() (string, error) {
	return f.rootDir, nil
}
