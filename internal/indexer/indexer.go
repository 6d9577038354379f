// Package indexer walks a local sync tree and produces the "current"
// manifest (spec §4.B), honoring .ignore markers and reusing prior
// fingerprints when (mtime, size) are unchanged since the last index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/Xornent/sync/internal/manifest"
)

// ignoreFileName is the marker file whose presence in a directory excludes
// that directory and all its descendants from indexing.
const ignoreFileName = ".ignore"

// Indexer walks a sync root and builds the current manifest, reusing the
// previous last-local manifest's fingerprints as an incremental-hash
// optimization (spec §4.B).
type Indexer struct {
	logger *slog.Logger
}

// New creates an Indexer. A nil logger falls back to an error-level text
// handler on stderr, matching the rest of the stack's constructor idiom.
func New(logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &Indexer{logger: logger}
}

// walkState accumulates results across the recursive walk.
type walkState struct {
	entries         []manifest.FileEntry
	ignoredPrefixes []string
	now             func() float64
}

// Index walks root, producing the current manifest. last is the previous
// last-local manifest (or an empty one); its entries are consulted for the
// incremental-hash fast path.
func (ix *Indexer) Index(ctx context.Context, root string, last *manifest.Manifest) (*manifest.Manifest, error) {
	lastByPath := last.ByPath()

	st := &walkState{now: nowSeconds}

	if err := ix.walk(ctx, root, "", st, lastByPath); err != nil {
		return nil, err
	}

	for _, prefix := range st.ignoredPrefixes {
		markerPath := prefix + "/" + ignoreFileName
		syncTime := st.now()

		if prior, ok := lastByPath[markerPath]; ok {
			syncTime = prior.SyncTime
		}

		st.entries = append(st.entries, manifest.FileEntry{
			Hash:     manifest.HashEmpty(),
			Size:     0,
			Mtime:    0,
			SyncTime: syncTime,
			Path:     markerPath,
		})
	}

	return &manifest.Manifest{Entries: st.entries}, nil
}

// walk performs a depth-first, top-down traversal of dir (root + relPath).
// A directory containing a ".ignore" file is recorded as an ignored prefix
// and never descended into: its files and subtrees are not indexed, and a
// ".ignore" created deeper inside it is never seen (spec §8 boundary case).
func (ix *Indexer) walk(
	ctx context.Context, root, relPath string, st *walkState, lastByPath map[string]*manifest.FileEntry,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full := filepath.Join(root, relPath)

	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("indexer: reading directory %q: %w", full, err)
	}

	hasMarker := false

	for _, e := range entries {
		if !e.IsDir() && e.Name() == ignoreFileName {
			hasMarker = true
			break
		}
	}

	if hasMarker {
		prefix := "/" + relPath
		if relPath == "" {
			prefix = ""
		}

		st.ignoredPrefixes = append(st.ignoredPrefixes, prefix)
		ix.logger.Debug("indexer: directory ignored", "path", prefix)

		return nil
	}

	// Sort for deterministic manifest order across platforms.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := norm.NFC.String(e.Name())
		childRel := name

		if relPath != "" {
			childRel = relPath + "/" + name
		}

		resolved, err := ix.resolveEntry(full, e)
		if err != nil {
			ix.logger.Warn("indexer: skipping entry", "path", childRel, "error", err)
			continue
		}

		if resolved == nil {
			continue // broken or skipped symlink
		}

		if e.Type()&os.ModeSymlink != 0 {
			// Follow a symlink only when its target resolves inside root.
			target, tErr := filepath.EvalSymlinks(filepath.Join(full, e.Name()))
			realRoot, rErr := filepath.EvalSymlinks(root)
			rel, relErr := filepath.Rel(realRoot, target)
			if tErr != nil || rErr != nil || relErr != nil || !filepath.IsLocal(rel) {
				ix.logger.Debug("indexer: skipping symlink outside root", "path", childRel)
				continue
			}
		}

		if resolved.IsDir() {
			if err := ix.walk(ctx, root, childRel, st, lastByPath); err != nil {
				return err
			}

			continue
		}

		if err := ix.indexFile(root, childRel, resolved, st, lastByPath); err != nil {
			return err
		}
	}

	return nil
}

// resolveEntry returns the os.FileInfo to index for a directory entry,
// following symlinks only when the target is a regular file or directory
// within root. A nil result (with nil error) means "skip this entry".
func (ix *Indexer) resolveEntry(dir string, e os.DirEntry) (os.FileInfo, error) {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Info()
	}

	target, err := os.Stat(filepath.Join(dir, e.Name()))
	if err != nil {
		return nil, nil //nolint:nilnil // broken symlink: skip, do not fail the walk
	}

	if target.IsDir() || target.Mode().IsRegular() {
		return target, nil
	}

	return nil, nil //nolint:nilnil // symlink to something else (device, socket...): skip
}

// indexFile applies the (mtime,size) fast path, else hashes the file fresh.
func (ix *Indexer) indexFile(
	root, relPath string, info os.FileInfo, st *walkState, lastByPath map[string]*manifest.FileEntry,
) error {
	path := "/" + relPath

	if err := manifest.ValidatePath(path); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}

	size := info.Size()
	mtime := float64(info.ModTime().UnixNano()) / 1e9

	if prior, ok := lastByPath[path]; ok && prior.Size == size && sameMtime(prior.Mtime, mtime) {
		st.entries = append(st.entries, manifest.FileEntry{
			Hash:     prior.Hash,
			Size:     size,
			Mtime:    mtime,
			SyncTime: prior.SyncTime,
			Path:     path,
		})

		return nil
	}

	full := filepath.Join(root, relPath)

	hash, err := manifest.HashFile(full)
	if err != nil {
		return fmt.Errorf("indexer: hashing %q: %w", path, err)
	}

	st.entries = append(st.entries, manifest.FileEntry{
		Hash:     hash,
		Size:     size,
		Mtime:    mtime,
		SyncTime: st.now(),
		Path:     path,
	})

	ix.logger.Debug("indexer: indexed file", "path", path, "size", size)

	return nil
}

// sameMtime compares two mtimes with sub-millisecond tolerance. Different
// filesystems / OSes truncate mtime precision differently; the comparison
// only needs to be stable enough that a file untouched since the last index
// takes the fast path.
func sameMtime(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}

	return diff < 1e-6
}

// nowSeconds returns the current wall-clock time as seconds since epoch.
var nowSeconds = func() float64 {
	return float64(nowNano()) / 1e9
}
