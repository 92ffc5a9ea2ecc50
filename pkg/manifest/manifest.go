// Package manifest models the two manifest shapes defined in §3: the user
// blob manifest a large file is replaced with in the repository, and the
// chunk-manifest filename convention used under the chunkroot.
package manifest

import (
	"fmt"
	"strings"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
)

// ChunkFilename returns the chunk-manifest leaf name for hash, e.g.
// "<hash>.cdc". The stem of this name must always equal hash (§3 invariant).
func ChunkFilename(hash string) string {
	return hash + chunkstore.Suffix
}

// StemOf returns the hash a chunk-manifest filename or line stands for,
// stripping the .cdc suffix the way the original tool's Path.stem does.
func StemOf(filename string) string {
	return strings.TrimSuffix(strings.TrimSpace(filename), chunkstore.Suffix)
}

// UserBlobManifest is the in-repository representation of a large binary
// file after cleaning: an ordered list of chunk hashes, one per line of the
// manifest text, in the order the chunks appear in the original file.
type UserBlobManifest struct {
	Hashes []string
}

// Format renders the manifest as the newline-separated text git stores under
// the user's pathname — one "<hash>.cdc" line per chunk, in order.
func (m UserBlobManifest) Format() string {
	var b strings.Builder
	for _, h := range m.Hashes {
		b.WriteString(h)
		b.WriteString(chunkstore.Suffix)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseUserBlobManifest parses manifest text into an ordered list of chunk
// hashes, skipping blank lines as the original tool's smudge handler does.
func ParseUserBlobManifest(text string) UserBlobManifest {
	var m UserBlobManifest
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m.Hashes = append(m.Hashes, StemOf(line))
	}
	return m
}

// ValidateChunkLine checks that a manifest line has the well-formed shape
// "<hexhash>.cdc", matching the testable property in §8. hashWidth is the
// expected hex width of the host DVCS's hash algorithm (64 for sha256).
func ValidateChunkLine(line string, hashWidth int) error {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, chunkstore.Suffix) {
		return fmt.Errorf("manifest line %q missing %s suffix", line, chunkstore.Suffix)
	}
	stem := StemOf(trimmed)
	if len(stem) != hashWidth {
		return fmt.Errorf("manifest line %q has hash of width %d, want %d", line, len(stem), hashWidth)
	}
	for _, r := range stem {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isHex {
			return fmt.Errorf("manifest line %q has non-hex character %q", line, r)
		}
	}
	return nil
}
