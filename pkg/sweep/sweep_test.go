package sweep

import (
	"context"
	"path"
	"testing"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
	"github.com/ganwell/git-fastcdc-go/pkg/gitgw"
	"github.com/ganwell/git-fastcdc-go/pkg/manifest"
)

func TestPruneDeletesOnlyUnreferencedChunks(t *testing.T) {
	dir := t.TempDir()
	store := chunkstore.New(dir, ".cdc")

	liveHash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	deadHash := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	if _, err := store.Materialize(liveHash); err != nil {
		t.Fatalf("seed live chunk: %v", err)
	}
	if _, err := store.Materialize(deadHash); err != nil {
		t.Fatalf("seed dead chunk: %v", err)
	}

	gw := gitgw.NewFakeGateway(dir)
	m := manifest.UserBlobManifest{Hashes: []string{liveHash}}
	gw.StageContent("big.bin", []byte(m.Format()))

	attrText := "*.bin filter=git_fastcdc\n"
	sweeper := New(gw, store, ".gitattributes", func() (string, error) { return attrText, nil })

	deleted, err := sweeper.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	entries, err := store.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("chunk store has %d files after prune, want 1: %v", len(entries), entries)
	}
	if stem := manifest.StemOf(path.Base(entries[0])); stem != liveHash {
		t.Errorf("surviving chunk is for hash %q, want %q", stem, liveHash)
	}
}

func TestPruneIgnoresUnmatchedTrackedPaths(t *testing.T) {
	dir := t.TempDir()
	store := chunkstore.New(dir, ".cdc")

	hash := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	if _, err := store.Materialize(hash); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}

	gw := gitgw.NewFakeGateway(dir)
	gw.StageContent("notes.txt", []byte("plain text, not filter-bound\n"))

	sweeper := New(gw, store, ".gitattributes", func() (string, error) { return "", nil })

	deleted, err := sweeper.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (no glob binds notes.txt, so the live set stays empty)", deleted)
	}
}

