// Package chunkstore manages the on-disk side store of chunk-manifest files
// under the reserved <chunkroot> subtree, as specified in §4.3.
package chunkstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRoot is the reserved chunkroot directory name used in production.
const DefaultRoot = ".cdc"

// Suffix is the chunk-manifest file extension.
const Suffix = ".cdc"

// Store resolves chunk hashes to canonical manifest file paths and manages
// that subtree. Root is usually DefaultRoot but is configurable for tests.
type Store struct {
	// BaseDir is the repository root the chunkroot is relative to.
	BaseDir string
	// Root is the chunkroot directory name, e.g. ".cdc".
	Root string
}

// New returns a Store rooted at filepath.Join(baseDir, root).
func New(baseDir, root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{BaseDir: baseDir, Root: root}
}

// RootPath returns the absolute chunkroot directory.
func (s *Store) RootPath() string {
	return filepath.Join(s.BaseDir, s.Root)
}

// RelPath returns the BaseDir-relative manifest path for hash, e.g.
// ".cdc/ab/cd/abcd....cdc", using forward slashes as git and the attribute
// patterns expect.
func (s *Store) RelPath(hash string) (string, error) {
	if len(hash) < 4 {
		return "", fmt.Errorf("chunkstore: hash %q too short to shard", hash)
	}
	return fmt.Sprintf("%s/%s/%s/%s%s", s.Root, hash[0:2], hash[2:4], hash, Suffix), nil
}

// AbsPath returns the absolute filesystem path for hash's manifest file.
func (s *Store) AbsPath(hash string) (string, error) {
	rel, err := s.RelPath(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.BaseDir, filepath.FromSlash(rel)), nil
}

// Materialize writes hash as the contents of its canonical manifest file,
// creating parent directories as needed, and reports whether the file did
// not previously exist (§4.3, used to set any_new_chunk in §3).
func (s *Store) Materialize(hash string) (created bool, err error) {
	path, err := s.AbsPath(hash)
	if err != nil {
		return false, err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		created = false
	} else if os.IsNotExist(statErr) {
		created = true
	} else {
		return false, fmt.Errorf("chunkstore: stat %s: %w", path, statErr)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("chunkstore: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(hash), 0o644); err != nil {
		return false, fmt.Errorf("chunkstore: write %s: %w", path, err)
	}
	return created, nil
}

// Enumerate returns every existing manifest file under the chunkroot,
// relative to BaseDir with forward slashes, matching **/*.cdc.
func (s *Store) Enumerate() ([]string, error) {
	root := s.RootPath()
	var found []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), Suffix) {
			rel, relErr := filepath.Rel(s.BaseDir, path)
			if relErr != nil {
				return relErr
			}
			found = append(found, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("chunkstore: enumerate %s: %w", root, err)
	}
	return found, nil
}

// Delete removes a single manifest file, given a BaseDir-relative path as
// returned by Enumerate.
func (s *Store) Delete(relPath string) error {
	abs := filepath.Join(s.BaseDir, filepath.FromSlash(relPath))
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("chunkstore: delete %s: %w", abs, err)
	}
	return nil
}

// Exists reports whether the chunkroot directory exists at all.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.RootPath())
	return err == nil
}

// PruneEmptyDirs walks root post-order, removing any directory that becomes
// empty, per §4.3.
func PruneEmptyDirs(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("chunkstore: read dir %s: %w", root, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			if err := PruneEmptyDirs(filepath.Join(root, entry.Name())); err != nil {
				return err
			}
		}
	}

	entries, err = os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("chunkstore: re-read dir %s: %w", root, err)
	}
	if len(entries) == 0 {
		if err := os.Remove(root); err != nil {
			return fmt.Errorf("chunkstore: remove empty dir %s: %w", root, err)
		}
	}
	return nil
}
