package reconcile

import (
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/Xornent/sync/internal/manifest"
)

// Reconciler compares three manifests (current, last-local, remote) and
// classifies every path into exactly one Plan bucket (spec §4.C).
type Reconciler struct {
	logger *slog.Logger
}

// New creates a Reconciler. A nil logger falls back to an error-level text
// handler on stderr.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &Reconciler{logger: logger}
}

// Reconcile classifies every path present in current or remote.
func (r *Reconciler) Reconcile(current, lastLocal, remote *manifest.Manifest, dir Direction) *Plan {
	if lastLocal == nil {
		lastLocal = &manifest.Manifest{}
	}

	if remote == nil {
		remote = &manifest.Manifest{}
	}

	currentByPath := current.ByPath()
	lastByPath := lastLocal.ByPath()
	remoteByPath := remote.ByPath()
	remoteByHash := remote.ByHash()
	currentByHash := current.ByHash()

	plan := &Plan{}

	currentPaths := make([]string, 0, len(currentByPath))
	for path := range currentByPath {
		currentPaths = append(currentPaths, path)
	}

	sort.Strings(currentPaths)

	remotePaths := make([]string, 0, len(remoteByPath))
	for path := range remoteByPath {
		remotePaths = append(remotePaths, path)
	}

	sort.Strings(remotePaths)

	for _, path := range currentPaths {
		c := currentByPath[path]
		if rem, inRemote := remoteByPath[path]; inRemote {
			r.classifyPresentBoth(plan, path, c, rem, lastByPath[path], dir)
		}
	}

	switch dir {
	case Push:
		r.classifyPushOnly(plan, currentPaths, remotePaths, currentByPath, remoteByPath, lastByPath, remoteByHash)
	case Fetch:
		r.classifyFetchOnly(plan, currentPaths, remotePaths, currentByPath, remoteByPath, lastByPath, currentByHash)
	}

	r.logger.Debug("reconcile complete",
		"unchanged", len(plan.Unchanged),
		"local_newer_upload", len(plan.LocalNewerUpload),
		"remote_newer_download", len(plan.RemoteNewerDownload),
		"conflicts", len(plan.Conflicts),
		"rename_candidates", len(plan.RenameCandidates),
		"copy_candidates", len(plan.CopyCandidates),
		"pure_uploads", len(plan.PureUploads),
		"locally_deleted", len(plan.LocallyDeleted),
		"local_move_candidates", len(plan.LocalMoveCandidates),
		"local_copy_candidates", len(plan.LocalCopyCandidates),
		"local_deletion_candidates", len(plan.LocalDeletionCandidates),
	)

	return plan
}

// classifyPushOnly handles the local-only (C\R) and remote-only (R\C) paths
// for a push reconciliation: rename/copy/pure-upload candidates from the
// local side, informational LocallyDeleted rows from the remote side minus
// whatever a rename consumed as its source.
func (r *Reconciler) classifyPushOnly(
	plan *Plan, currentPaths, remotePaths []string,
	currentByPath, remoteByPath map[string]*manifest.FileEntry,
	lastByPath map[string]*manifest.FileEntry, remoteByHash map[string][]*manifest.FileEntry,
) {
	renameSources := make(map[string]bool)

	for _, path := range currentPaths {
		if _, inRemote := remoteByPath[path]; inRemote {
			continue
		}

		c := currentByPath[path]
		if src := r.classifyLocalOnly(plan, path, c, currentByPath, remoteByHash); src != "" {
			renameSources[src] = true
		}
	}

	for _, path := range remotePaths {
		if _, inCurrent := currentByPath[path]; inCurrent {
			continue
		}

		if renameSources[path] {
			continue
		}

		plan.LocallyDeleted = append(plan.LocallyDeleted, Action{
			Type: LocallyDeleted, Path: path, Remote: remoteByPath[path], LastLocal: lastByPath[path],
		})
	}
}

// classifyFetchOnly is classifyPushOnly's mirror image for a fetch
// reconciliation (original ground truth: original_source/tasks/filesystem.py
// fetch()). Remote-only paths are checked against the local tree's own
// content hashes first (local-move/local-copy), since it's cheaper to
// rename or copy an existing local file than download it again; whatever
// isn't a local-move/local-copy candidate falls through to LocallyDeleted
// exactly as on push. Local-only paths are a fetch-specific bucket with no push
// equivalent: a local file the remote no longer has, offered for deletion
// unless it was just claimed as a local-move source.
func (r *Reconciler) classifyFetchOnly(
	plan *Plan, currentPaths, remotePaths []string,
	currentByPath, remoteByPath map[string]*manifest.FileEntry,
	lastByPath map[string]*manifest.FileEntry, currentByHash map[string][]*manifest.FileEntry,
) {
	moveSources := make(map[string]bool)

	for _, path := range remotePaths {
		if _, inCurrent := currentByPath[path]; inCurrent {
			continue
		}

		rem := remoteByPath[path]
		if src := r.classifyRemoteOnly(plan, path, rem, lastByPath[path], remoteByPath, currentByHash); src != "" {
			moveSources[src] = true
		}
	}

	for _, path := range currentPaths {
		if _, inRemote := remoteByPath[path]; inRemote {
			continue
		}

		if moveSources[path] {
			continue
		}

		plan.LocalDeletionCandidates = append(plan.LocalDeletionCandidates, Action{
			Type: LocalDeletionCandidate, Path: path, Current: currentByPath[path], LastLocal: lastByPath[path],
		})
	}
}

// classifyPresentBoth handles a path that exists in both current and remote.
func (r *Reconciler) classifyPresentBoth(
	plan *Plan, path string, c, rem, last *manifest.FileEntry, dir Direction,
) {
	if c.Hash == rem.Hash && c.Size == rem.Size {
		plan.Unchanged = append(plan.Unchanged, Action{Type: Unchanged, Path: path, Current: c, LastLocal: last, Remote: rem})
		return
	}

	// Content differs. Decide between an unattended transfer and a conflict.
	//
	// Push: the remote hasn't moved since our last agreement (R.sync_time <=
	// L.sync_time) means the divergence is entirely ours to push.
	//
	// Fetch is the symmetric case: local hasn't moved since our last
	// agreement. The indexer only mints a fresh sync_time when it detects a
	// real content change (spec §4.B), so C.sync_time <= L.sync_time means
	// this machine's copy is exactly what it agreed to last time, and the
	// remote's divergence is safe to pull down unattended.
	if last != nil {
		switch dir {
		case Push:
			if rem.SyncTime <= last.SyncTime {
				plan.LocalNewerUpload = append(plan.LocalNewerUpload, Action{
					Type: LocalNewerUpload, Path: path, Current: c, LastLocal: last, Remote: rem,
				})
				return
			}
		case Fetch:
			if c.SyncTime <= last.SyncTime {
				plan.RemoteNewerDownload = append(plan.RemoteNewerDownload, Action{
					Type: RemoteNewerDownload, Path: path, Current: c, LastLocal: last, Remote: rem,
				})
				return
			}
		}
	}

	plan.Conflicts = append(plan.Conflicts, Action{
		Type: Conflict, Path: path, Current: c, LastLocal: last, Remote: rem, ConflictID: uuid.NewString(),
	})
}

// classifyLocalOnly handles a path that exists locally but not remotely:
// rename candidate, copy candidate, or a brand-new pure upload. Returns the
// consumed remote source path when it classifies a rename, so the caller can
// exclude that source from the LocallyDeleted bucket (it's being moved, not
// orphaned).
func (r *Reconciler) classifyLocalOnly(
	plan *Plan, path string, c *manifest.FileEntry,
	currentByPath map[string]*manifest.FileEntry, remoteByHash map[string][]*manifest.FileEntry,
) string {
	if c.Hash == manifest.EmptyHash {
		plan.PureUploads = append(plan.PureUploads, Action{Type: PureUpload, Path: path, Current: c})
		return ""
	}

	candidates, ok := remoteByHash[c.Hash]
	if !ok || len(candidates) == 0 {
		plan.PureUploads = append(plan.PureUploads, Action{Type: PureUpload, Path: path, Current: c})
		return ""
	}

	// First match in manifest order decides move-vs-copy, full stop (original
	// ground truth: original_source/tasks/filesystem.py:387, index-based
	// lookup, not a "prefer move over copy" scan).
	cand := candidates[0]

	if _, stillLocal := currentByPath[cand.Path]; !stillLocal {
		plan.RenameCandidates = append(plan.RenameCandidates, Action{
			Type: RenameCandidate, Path: path, SourcePath: cand.Path, Current: c, Remote: cand,
		})
		return cand.Path
	}

	plan.CopyCandidates = append(plan.CopyCandidates, Action{
		Type: CopyCandidate, Path: path, SourcePath: cand.Path, Current: c, Remote: cand,
	})

	return ""
}

// classifyRemoteOnly handles a path that exists remotely but not locally, on
// a fetch reconciliation: local-move candidate, local-copy candidate, or a
// plain download (LocallyDeleted, resolved further by the executor/resolver
// into an unattended download or a confirmed-absence decision). Returns the
// consumed local source path when it classifies a local-move, so the caller
// can exclude that source from LocalDeletionCandidates (it's being renamed
// in place, not orphaned).
func (r *Reconciler) classifyRemoteOnly(
	plan *Plan, path string, rem *manifest.FileEntry, last *manifest.FileEntry,
	remoteByPath map[string]*manifest.FileEntry, currentByHash map[string][]*manifest.FileEntry,
) string {
	if rem.Hash != manifest.EmptyHash {
		if candidates, ok := currentByHash[rem.Hash]; ok && len(candidates) > 0 {
			// Same first-match-by-manifest-order discipline as
			// classifyLocalOnly, mirrored: the match decides move-vs-copy by
			// whether ITS path still exists remotely (original ground truth:
			// original_source/tasks/filesystem.py:663-677).
			cand := candidates[0]

			if _, stillRemote := remoteByPath[cand.Path]; !stillRemote {
				plan.LocalMoveCandidates = append(plan.LocalMoveCandidates, Action{
					Type: LocalMoveCandidate, Path: path, SourcePath: cand.Path, Current: cand, Remote: rem,
				})
				return cand.Path
			}

			plan.LocalCopyCandidates = append(plan.LocalCopyCandidates, Action{
				Type: LocalCopyCandidate, Path: path, SourcePath: cand.Path, Current: cand, Remote: rem,
			})

			return ""
		}
	}

	plan.LocallyDeleted = append(plan.LocallyDeleted, Action{
		Type: LocallyDeleted, Path: path, Remote: rem, LastLocal: last,
	})

	return ""
}
