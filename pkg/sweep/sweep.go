// Package sweep implements the Reference Sweep pass described in §4.6: the
// "prune" entrypoint that deletes chunk files no longer referenced by any
// tracked, filter-bound blob manifest.
package sweep

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
	"github.com/ganwell/git-fastcdc-go/pkg/gitattr"
	"github.com/ganwell/git-fastcdc-go/pkg/gitgw"
	"github.com/ganwell/git-fastcdc-go/pkg/manifest"
)

// maxConcurrentShows bounds how many show-staged-blob calls run at once
// while building the live set, mirroring the teacher's own bounded fan-out
// over many small blocking gateway calls.
const maxConcurrentShows = 8

// Sweeper runs the Reference Sweep over a single repository.
type Sweeper struct {
	gw         gitgw.Gateway
	store      *chunkstore.Store
	attrPath   string // repo-root-relative path of the attribute file
	attrLoader func() (string, error)
}

// New returns a Sweeper. attrText is a function returning the current
// contents of the attribute file (injected so tests don't need a real
// filesystem attribute file); attrPath is its tracked-path name, normally
// ".gitattributes".
func New(gw gitgw.Gateway, store *chunkstore.Store, attrPath string, attrText func() (string, error)) *Sweeper {
	return &Sweeper{gw: gw, store: store, attrPath: attrPath, attrLoader: attrText}
}

// Prune runs the five-step procedure in §4.6 and returns the number of
// chunk files deleted.
func (s *Sweeper) Prune(ctx context.Context) (deleted int, err error) {
	tracked, err := s.gw.ListTrackedPaths()
	if err != nil {
		return 0, fmt.Errorf("sweep: list tracked paths: %w", err)
	}
	tracked = s.discardReserved(tracked)

	attrText, err := s.attrLoader()
	if err != nil {
		return 0, fmt.Errorf("sweep: read attribute file: %w", err)
	}
	globs := gitattr.ParseFilterBoundGlobs(attrText)

	matched := matchTrackedPaths(tracked, globs)

	liveSet, err := s.buildLiveSet(ctx, matched)
	if err != nil {
		return 0, err
	}

	existing, err := s.store.Enumerate()
	if err != nil {
		return 0, fmt.Errorf("sweep: enumerate chunk store: %w", err)
	}

	for _, relPath := range existing {
		leaf := manifest.StemOf(baseName(relPath))
		if liveSet[leaf+".cdc"] {
			continue
		}
		if err := s.store.Delete(relPath); err != nil {
			return deleted, fmt.Errorf("sweep: delete %s: %w", relPath, err)
		}
		deleted++
	}

	if err := chunkstore.PruneEmptyDirs(s.store.RootPath()); err != nil {
		return deleted, fmt.Errorf("sweep: prune empty directories: %w", err)
	}

	if s.store.Exists() {
		if err := s.gw.StagePaths(s.store.Root); err != nil {
			return deleted, fmt.Errorf("sweep: stage chunkroot: %w", err)
		}
	}

	return deleted, nil
}

// discardReserved drops paths under the chunkroot and any attribute file
// (root or nested) from the tracked-path list, per §4.6 step 1. The original
// tool discards by substring match against ".gitattributes"
// (original_source/git_fastcdc.py's `".gitattributes" in entry`), which also
// catches nested attribute files like "sub/.gitattributes"; mirrored here as
// a path-or-suffix match rather than exact equality against the repo root's.
func (s *Sweeper) discardReserved(tracked []string) []string {
	prefix := s.store.Root + "/"
	out := make([]string, 0, len(tracked))
	for _, p := range tracked {
		if strings.HasPrefix(p, prefix) {
			continue
		}
		if p == s.attrPath || strings.HasSuffix(p, "/"+s.attrPath) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// buildLiveSet stages each matched path and reads its staged manifest,
// collecting every "<hash>.cdc" line into the live set, bounding concurrency
// with an errgroup the way the teacher bounds concurrent content fetches.
func (s *Sweeper) buildLiveSet(ctx context.Context, matched []string) (map[string]bool, error) {
	live := make(map[string]bool)
	if len(matched) == 0 {
		return live, nil
	}

	var mu sync.Mutex
	// stageMu serializes StagePaths: concurrent `git add` runs contend on the
	// index lock and fail.
	var stageMu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentShows)

	for _, path := range matched {
		path := path
		g.Go(func() error {
			stageMu.Lock()
			err := s.gw.StagePaths(path)
			stageMu.Unlock()
			if err != nil {
				return fmt.Errorf("sweep: stage %s: %w", path, err)
			}
			blob, err := s.gw.ShowStagedBlob(path)
			if err != nil {
				return fmt.Errorf("sweep: show staged blob %s: %w", path, err)
			}
			lines := collectChunkLines(string(blob))

			mu.Lock()
			for _, l := range lines {
				live[l] = true
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return live, nil
}

func collectChunkLines(text string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasSuffix(line, chunkstore.Suffix) {
			out = append(out, line)
		}
	}
	return out
}

func matchTrackedPaths(tracked []string, globs []string) []string {
	var out []string
	for _, path := range tracked {
		for _, g := range globs {
			if gitattr.MatchGlob(g, path) {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

func baseName(relPath string) string {
	idx := strings.LastIndexByte(relPath, '/')
	if idx < 0 {
		return relPath
	}
	return relPath[idx+1:]
}
