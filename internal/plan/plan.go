// Package plan implements the executor (spec §4.E): it applies the
// reconciler's classified actions, filtered through the resolver's
// decisions, against the object-store, then produces the manifest that
// becomes the new last-local.
package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/objectstore"
	"github.com/Xornent/sync/internal/reconcile"
)

// Decisions carries the resolver's yes/no vectors back into the executor,
// keyed the way each bucket is naturally addressed: conflicts by their
// generated ID (several paths could theoretically share a path across
// retries), rename/copy candidates and pending local-deletion confirmations
// by path.
type Decisions struct {
	Conflicts        map[string]bool
	RenameCandidates map[string]bool
	CopyCandidates   map[string]bool
	KeepDeleted      map[string]bool // fetch only: true = accept the local absence, don't re-download

	// LocalMoveCandidates/LocalCopyCandidates: fetch only. True = perform the
	// proposed local filesystem rename/copy instead of downloading.
	LocalMoveCandidates map[string]bool
	LocalCopyCandidates map[string]bool

	// LocalDeletionCandidates: fetch only. True = delete the local file that
	// the remote no longer has; false = keep it for a future push.
	LocalDeletionCandidates map[string]bool
}

// Failure records a per-row transfer failure. Per spec §7, failures are
// isolated per row: the row is simply dropped from the emitted last-local,
// so the next run re-detects the divergence, and the rest of the plan keeps
// executing.
type Failure struct {
	Path string
	Err  error
}

// Report summarizes one Execute call.
type Report struct {
	Uploaded   []string
	Downloaded []string
	Moved      []string
	Copied     []string
	Deleted    []string
	Failures   []Failure
}

// Executor applies a reconciled, resolved plan.
type Executor struct {
	store    objectstore.Store
	destRoot string
	logger   *slog.Logger
	now      func() float64
}

// New creates an Executor. destRoot is the local sync tree root; store is
// the object-store driver actions are issued against.
func New(store objectstore.Store, destRoot string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &Executor{
		store:    store,
		destRoot: destRoot,
		logger:   logger,
		now:      func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Execute applies p in the order spec §4.E prescribes and returns the
// manifest rows that belong in the new last-local manifest, plus a report.
// It never returns an error itself: every failure is isolated to its row
// (Report.Failures) so the caller can still persist whatever succeeded.
func (ex *Executor) Execute(
	ctx context.Context, p *reconcile.Plan, d Decisions, dir reconcile.Direction,
) (*manifest.Manifest, *Report) {
	out := &manifest.Manifest{}
	report := &Report{}

	for _, a := range p.Unchanged {
		out.Entries = append(out.Entries, *a.Remote)
	}

	switch dir {
	case reconcile.Push:
		ex.executePush(ctx, p, d, out, report)
	case reconcile.Fetch:
		ex.executeFetch(ctx, p, d, out, report)
	}

	ex.logger.Info("executor: done",
		"direction", dir,
		"uploaded", len(report.Uploaded),
		"downloaded", len(report.Downloaded),
		"moved", len(report.Moved),
		"copied", len(report.Copied),
		"deleted", len(report.Deleted),
		"failures", len(report.Failures),
	)

	return out, report
}

func (ex *Executor) executePush(
	ctx context.Context, p *reconcile.Plan, d Decisions, out *manifest.Manifest, report *Report,
) {
	// 1. Unattended modifications.
	for _, a := range p.LocalNewerUpload {
		ex.uploadAction(ctx, a, out, report)
	}

	// 2. Confirmed conflict resolutions.
	for _, a := range p.Conflicts {
		if !d.Conflicts[a.ConflictID] {
			continue
		}

		ex.uploadAction(ctx, a, out, report)
	}

	// 3. Rename/copy candidates, else fall back to upload.
	for _, a := range p.RenameCandidates {
		if d.RenameCandidates[a.Path] {
			ex.renameAction(ctx, a, out, report)
			continue
		}

		ex.uploadAction(ctx, a, out, report)
	}

	for _, a := range p.CopyCandidates {
		if d.CopyCandidates[a.Path] {
			ex.copyAction(ctx, a, out, report)
			continue
		}

		ex.uploadAction(ctx, a, out, report)
	}

	// 4. Pure uploads.
	for _, a := range p.PureUploads {
		ex.uploadAction(ctx, a, out, report)
	}

	// 5. LocallyDeleted: informational only on push. The remote row is
	// carried forward unchanged — our agreement about this path's remote
	// content doesn't change just because our local copy is gone.
	for _, a := range p.LocallyDeleted {
		if a.Remote != nil {
			out.Entries = append(out.Entries, *a.Remote)
		}
	}
}

func (ex *Executor) executeFetch(
	ctx context.Context, p *reconcile.Plan, d Decisions, out *manifest.Manifest, report *Report,
) {
	// 1. Unattended modifications.
	for _, a := range p.RemoteNewerDownload {
		ex.downloadAction(ctx, a, out, report)
	}

	// 2. Confirmed conflict resolutions.
	for _, a := range p.Conflicts {
		if !d.Conflicts[a.ConflictID] {
			continue
		}

		ex.downloadAction(ctx, a, out, report)
	}

	// 3. Local-move/local-copy candidates, else fall back to download — the
	// remote content still needs to land on disk at a.Path either way.
	for _, a := range p.LocalMoveCandidates {
		if d.LocalMoveCandidates[a.Path] {
			ex.localMoveAction(a, out, report)
			continue
		}

		ex.downloadAction(ctx, a, out, report)
	}

	for _, a := range p.LocalCopyCandidates {
		if d.LocalCopyCandidates[a.Path] {
			ex.localCopyAction(a, out, report)
			continue
		}

		ex.downloadAction(ctx, a, out, report)
	}

	// 4. LocallyDeleted: distinguish "never fetched yet" (download) from a
	// genuine, previously-agreed local deletion (ask before restoring).
	for _, a := range p.LocallyDeleted {
		ex.fetchLocallyDeleted(ctx, a, d, out, report)
	}

	// 5. Confirmed local deletions: a local file the remote no longer has.
	// Declining keeps the file on disk, carried forward so a later push can
	// still offer it.
	for _, a := range p.LocalDeletionCandidates {
		if d.LocalDeletionCandidates[a.Path] {
			ex.localDeletionAction(a, report)
			continue
		}

		out.Entries = append(out.Entries, *a.Current)
	}
}

func (ex *Executor) fetchLocallyDeleted(
	ctx context.Context, a reconcile.Action, d Decisions, out *manifest.Manifest, report *Report,
) {
	isFreshToUs := a.LastLocal == nil || a.Remote == nil || a.LastLocal.Hash != a.Remote.Hash

	if isFreshToUs {
		ex.downloadAction(ctx, a, out, report)
		return
	}

	if d.KeepDeleted[a.Path] {
		// Record the agreement: remote content unchanged, we choose to stay
		// without a local copy. Persisting the remote row (not omitting it)
		// keeps the next run recognizing this as the same confirmed state
		// instead of re-offering it as brand new.
		out.Entries = append(out.Entries, *a.Remote)
		return
	}

	ex.downloadAction(ctx, a, out, report)
}

func (ex *Executor) uploadAction(ctx context.Context, a reconcile.Action, out *manifest.Manifest, report *Report) {
	if err := ex.store.UploadRel(ctx, trimLeadingSlash(a.Path), a.Path); err != nil {
		ex.recordFailure(report, a.Path, err)
		return
	}

	report.Uploaded = append(report.Uploaded, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Current.Hash, Size: a.Current.Size, Mtime: a.Current.Mtime, SyncTime: ex.now(), Path: a.Path,
	})
}

func (ex *Executor) downloadAction(ctx context.Context, a reconcile.Action, out *manifest.Manifest, report *Report) {
	if err := ex.store.DownloadRel(ctx, a.Path, trimLeadingSlash(a.Path)); err != nil {
		ex.recordFailure(report, a.Path, err)
		return
	}

	local := filepath.Join(ex.destRoot, filepath.FromSlash(a.Path))
	mtime := time.Unix(0, int64(a.Remote.Mtime*1e9))

	if err := os.Chtimes(local, mtime, mtime); err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("setting mtime: %w", err))
		return
	}

	report.Downloaded = append(report.Downloaded, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Remote.Hash, Size: a.Remote.Size, Mtime: a.Remote.Mtime, SyncTime: a.Remote.SyncTime, Path: a.Path,
	})
}

func (ex *Executor) renameAction(ctx context.Context, a reconcile.Action, out *manifest.Manifest, report *Report) {
	if err := ex.store.RemoteMove(ctx, a.SourcePath, a.Path); err != nil {
		ex.recordFailure(report, a.Path, err)
		return
	}

	report.Moved = append(report.Moved, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Current.Hash, Size: a.Current.Size, Mtime: a.Current.Mtime, SyncTime: ex.now(), Path: a.Path,
	})
}

func (ex *Executor) copyAction(ctx context.Context, a reconcile.Action, out *manifest.Manifest, report *Report) {
	if err := ex.store.RemoteCopy(ctx, a.SourcePath, a.Path); err != nil {
		ex.recordFailure(report, a.Path, err)
		return
	}

	report.Copied = append(report.Copied, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Current.Hash, Size: a.Current.Size, Mtime: a.Current.Mtime, SyncTime: ex.now(), Path: a.Path,
	})
}

// localMoveAction renames an existing local file into place instead of
// downloading it, since its content already matches a.Remote (spec §4.E,
// fetch-direction local-move). It operates entirely within destRoot via
// os.Rename — the object-store is never consulted, because both ends of the
// move already agree on the content.
func (ex *Executor) localMoveAction(a reconcile.Action, out *manifest.Manifest, report *Report) {
	src := filepath.Join(ex.destRoot, filepath.FromSlash(a.SourcePath))
	dst := filepath.Join(ex.destRoot, filepath.FromSlash(a.Path))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("preparing destination: %w", err))
		return
	}

	if err := os.Rename(src, dst); err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("local move: %w", err))
		return
	}

	report.Moved = append(report.Moved, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Remote.Hash, Size: a.Remote.Size, Mtime: a.Current.Mtime, SyncTime: a.Remote.SyncTime, Path: a.Path,
	})
}

// localCopyAction copies an existing local file instead of downloading it;
// the source file also still exists remotely, so it's left in place.
func (ex *Executor) localCopyAction(a reconcile.Action, out *manifest.Manifest, report *Report) {
	src := filepath.Join(ex.destRoot, filepath.FromSlash(a.SourcePath))
	dst := filepath.Join(ex.destRoot, filepath.FromSlash(a.Path))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("preparing destination: %w", err))
		return
	}

	mtime, err := copyFileContents(src, dst)
	if err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("local copy: %w", err))
		return
	}

	report.Copied = append(report.Copied, a.Path)
	out.Entries = append(out.Entries, manifest.FileEntry{
		Hash: a.Remote.Hash, Size: a.Remote.Size, Mtime: mtime, SyncTime: a.Remote.SyncTime, Path: a.Path,
	})
}

// localDeletionAction removes a local file the remote no longer has, once
// the user has confirmed the deletion.
func (ex *Executor) localDeletionAction(a reconcile.Action, report *Report) {
	full := filepath.Join(ex.destRoot, filepath.FromSlash(a.Path))

	if err := os.Remove(full); err != nil {
		ex.recordFailure(report, a.Path, fmt.Errorf("local delete: %w", err))
		return
	}

	report.Deleted = append(report.Deleted, a.Path)
}

// copyFileContents copies src to dst and returns dst's resulting mtime
// (seconds since epoch) for the caller to record in the manifest.
func copyFileContents(src, dst string) (float64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return 0, err
	}

	if err := out.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}

	return float64(info.ModTime().UnixNano()) / 1e9, nil
}

func (ex *Executor) recordFailure(report *Report, path string, err error) {
	ex.logger.Warn("executor: action failed", "path", path, "error", err)
	report.Failures = append(report.Failures, Failure{Path: path, Err: err})
}

// trimLeadingSlash strips the leading "/" a manifest path always carries,
// since the object-store's *Rel operations expect a path relative to the
// configured destination.
func trimLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}

	return p
}
