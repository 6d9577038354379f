// Package blobsync implements the database-dump sync variant (spec §4.F):
// the same three-way reconciliation as the tree sync, applied to a single
// synthetic row (the dump) instead of a manifest of many paths.
package blobsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Xornent/sync/internal/dumpdriver"
	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/objectstore"
	"github.com/Xornent/sync/internal/reconcile"
	"github.com/Xornent/sync/internal/resolve"
)

// ErrRemoteEmpty is returned by Fetch when no remote manifest row exists.
// For Push, the equivalent condition is normal and triggers the initial
// unattended upload instead of an error.
var ErrRemoteEmpty = errors.New("blobsync: remote manifest not found")

// ErrUserCancelled is returned when the resolver declines a conflict. Unlike
// the tree executor, which skips just that row, blob sync has only the one
// row: declining cancels the entire operation (spec §5).
var ErrUserCancelled = errors.New("blobsync: user declined the conflict")

// Paths is the local on-disk layout for one blob task (spec §6).
type Paths struct {
	CurrentManifest   string // database.current
	LastLocalManifest string // database.last-local
	DumpFile          string // database.sql
	BackupFile        string // database.backup.sql
}

// Remote is the object-store layout for one blob task, per database name
// (spec §6): "/database.DB.checksum.tsv" and "/database.DB.sql".
type Remote struct {
	ManifestKey string
	DumpKey     string
}

// Status classifies the comparison between the current, last-local and
// remote blob entries, mirroring the tree reconciler's bucket names where a
// single-row equivalent exists.
type Status int

const (
	StatusUnchanged Status = iota
	StatusLocalNewerUpload
	StatusRemoteNewerDownload
	StatusConflict
	StatusRemoteEmpty
)

func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusLocalNewerUpload:
		return "local-newer-upload"
	case StatusRemoteNewerDownload:
		return "remote-newer-download"
	case StatusConflict:
		return "conflict"
	case StatusRemoteEmpty:
		return "remote-empty"
	default:
		return "unknown"
	}
}

// Report summarizes one Push or Fetch call.
type Report struct {
	Status    Status
	Cancelled bool
}

// DiffResult is the outcome of a Diff call: the comparison with no
// transfers performed.
type DiffResult struct {
	Current   *manifest.BlobEntry
	LastLocal *manifest.BlobEntry
	Remote    *manifest.BlobEntry
	Status    Status
}

// Sync drives one blob task end to end.
type Sync struct {
	store    objectstore.Store
	dump     dumpdriver.Driver
	paths    Paths
	remote   Remote
	prompter resolve.Prompter
	logger   *slog.Logger
	now      func() float64
}

// New creates a Sync. prompter defaults to resolve.DefaultsPrompter{} (auto
// decline, matching the conflict bucket's off-by-default policy) when nil.
func New(store objectstore.Store, dump dumpdriver.Driver, paths Paths, remote Remote, prompter resolve.Prompter, logger *slog.Logger) *Sync {
	if prompter == nil {
		prompter = resolve.DefaultsPrompter{}
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &Sync{
		store: store, dump: dump, paths: paths, remote: remote, prompter: prompter, logger: logger,
		now: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Push implements spec §4.F's push sequence.
func (s *Sync) Push(ctx context.Context) (*Report, error) {
	current, err := s.dumpAndFingerprint(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	if remote == nil {
		if err := s.uploadBlobAndManifest(ctx, current); err != nil {
			return nil, err
		}

		s.logger.Info("blobsync: initial push")

		return &Report{Status: StatusRemoteEmpty}, nil
	}

	lastLocal, err := manifest.LoadBlobFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("blobsync: loading last-local manifest: %w", err)
	}

	status := classify(reconcile.Push, current, lastLocal, remote)

	switch status {
	case StatusUnchanged:
		s.logger.Debug("blobsync: push no-op, hashes match")
		return &Report{Status: status}, nil

	case StatusLocalNewerUpload:
		s.logger.Debug("blobsync: unattended push")

	case StatusConflict:
		confirmed, err := s.promptConflict(ctx, "database push conflict", current, lastLocal, remote)
		if err != nil {
			return nil, err
		}

		if !confirmed {
			return &Report{Status: status, Cancelled: true}, ErrUserCancelled
		}
	}

	if err := s.uploadBlobAndManifest(ctx, current); err != nil {
		return nil, err
	}

	return &Report{Status: status}, nil
}

// Fetch implements spec §4.F's symmetric fetch sequence: one extra step
// (backup the local dump) precedes the import, and Implementers must not
// replicate the source's buggy backup-after-overwrite ordering (spec §9):
// dump local → copy to backup → download remote → import.
func (s *Sync) Fetch(ctx context.Context) (*Report, error) {
	current, err := s.dumpAndFingerprint(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	if remote == nil {
		return nil, ErrRemoteEmpty
	}

	lastLocal, err := manifest.LoadBlobFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("blobsync: loading last-local manifest: %w", err)
	}

	status := classify(reconcile.Fetch, current, lastLocal, remote)

	switch status {
	case StatusUnchanged:
		s.logger.Debug("blobsync: fetch no-op, hashes match")
		return &Report{Status: status}, nil

	case StatusRemoteNewerDownload:
		s.logger.Debug("blobsync: unattended fetch")

	case StatusConflict:
		confirmed, err := s.promptConflict(ctx, "database fetch conflict", current, lastLocal, remote)
		if err != nil {
			return nil, err
		}

		if !confirmed {
			return &Report{Status: status, Cancelled: true}, ErrUserCancelled
		}
	}

	if err := s.backupThenDownloadAndImport(ctx); err != nil {
		return nil, err
	}

	if err := manifest.SaveBlobFile(s.paths.LastLocalManifest, remote); err != nil {
		return nil, fmt.Errorf("blobsync: saving last-local manifest: %w", err)
	}

	return &Report{Status: status}, nil
}

// Diff implements spec §4.F's diff sequence: the same comparison, no
// transfers, no manifest mutation.
func (s *Sync) Diff(ctx context.Context) (*DiffResult, error) {
	current, err := s.dumpAndFingerprint(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	lastLocal, err := manifest.LoadBlobFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("blobsync: loading last-local manifest: %w", err)
	}

	if remote == nil {
		return &DiffResult{Current: current, LastLocal: lastLocal, Status: StatusRemoteEmpty}, nil
	}

	return &DiffResult{
		Current: current, LastLocal: lastLocal, Remote: remote,
		Status: classify(reconcile.Push, current, lastLocal, remote),
	}, nil
}

// classify applies the push or fetch unattended-transfer test (spec §4.F;
// the fetch direction mirrors internal/reconcile's resolved swapped
// condition). A missing lastLocal is treated as negative infinity so the
// threshold test always fails closed into Conflict, never into an
// unattended transfer with no record of prior agreement.
func classify(dir reconcile.Direction, current, lastLocal, remote *manifest.BlobEntry) Status {
	if remote == nil {
		return StatusRemoteEmpty
	}

	if current.Hash == remote.Hash {
		return StatusUnchanged
	}

	lastSync := math.Inf(-1)
	if lastLocal != nil {
		lastSync = lastLocal.SyncTime
	}

	switch dir {
	case reconcile.Push:
		if remote.SyncTime <= lastSync {
			return StatusLocalNewerUpload
		}
	case reconcile.Fetch:
		if current.SyncTime <= lastSync {
			return StatusRemoteNewerDownload
		}
	}

	return StatusConflict
}

func (s *Sync) promptConflict(ctx context.Context, label string, current, lastLocal, remote *manifest.BlobEntry) (bool, error) {
	row := resolve.Row{
		Path:      "database",
		Current:   blobToFileEntry(current),
		LastLocal: blobToFileEntry(lastLocal),
		Remote:    blobToFileEntry(remote),
		Default:   false,
	}

	decisions, err := s.prompter.Select(ctx, label, []resolve.Row{row})
	if err != nil {
		return false, fmt.Errorf("blobsync: prompting conflict: %w", err)
	}

	return decisions[0], nil
}

func blobToFileEntry(e *manifest.BlobEntry) *manifest.FileEntry {
	if e == nil {
		return nil
	}

	return &manifest.FileEntry{Hash: e.Hash, Size: e.Size, Mtime: e.Mtime, SyncTime: e.SyncTime, Path: "database"}
}

// dumpAndFingerprint invokes the dump driver, fingerprints the result and
// writes the current manifest (spec §4.F steps 1-2).
func (s *Sync) dumpAndFingerprint(ctx context.Context) (*manifest.BlobEntry, error) {
	if err := s.dump.Dump(ctx, s.paths.DumpFile); err != nil {
		return nil, fmt.Errorf("blobsync: dumping: %w", err)
	}

	info, err := os.Stat(s.paths.DumpFile)
	if err != nil {
		return nil, fmt.Errorf("blobsync: %w: %v", manifest.ErrMalformedManifest, err)
	}

	hash, err := manifest.HashFile(s.paths.DumpFile)
	if err != nil {
		return nil, fmt.Errorf("blobsync: hashing dump: %w", err)
	}

	current := &manifest.BlobEntry{
		Hash: hash, Size: info.Size(), Mtime: float64(info.ModTime().UnixNano()) / 1e9, SyncTime: s.now(),
	}

	if err := manifest.SaveBlobFile(s.paths.CurrentManifest, current); err != nil {
		return nil, fmt.Errorf("blobsync: saving current manifest: %w", err)
	}

	return current, nil
}

// loadRemoteManifest downloads the remote manifest row, tolerating absence
// (spec's RemoteEmpty: fatal for fetch, normal for push).
func (s *Sync) loadRemoteManifest(ctx context.Context) (*manifest.BlobEntry, error) {
	tmp := s.paths.CurrentManifest + ".remote-fetch.tmp"
	defer os.Remove(tmp)

	if err := s.store.DownloadAbs(ctx, s.remote.ManifestKey, tmp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("blobsync: downloading remote manifest: %w", err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("blobsync: reading downloaded remote manifest: %w", err)
	}

	return manifest.DecodeBlob(data)
}

func (s *Sync) uploadBlobAndManifest(ctx context.Context, current *manifest.BlobEntry) error {
	if err := s.store.UploadAbs(ctx, s.paths.DumpFile, s.remote.DumpKey); err != nil {
		return fmt.Errorf("blobsync: uploading dump: %w", err)
	}

	if err := s.store.UploadAbs(ctx, s.paths.CurrentManifest, s.remote.ManifestKey); err != nil {
		return fmt.Errorf("blobsync: uploading manifest: %w", err)
	}

	if err := manifest.SaveBlobFile(s.paths.LastLocalManifest, current); err != nil {
		return fmt.Errorf("blobsync: saving last-local manifest: %w", err)
	}

	return nil
}

// backupThenDownloadAndImport is the corrected ordering spec §9 prescribes:
// dump local → copy local dump to *.backup.sql → download remote dump →
// import, never backing up a file the download has already overwritten.
func (s *Sync) backupThenDownloadAndImport(ctx context.Context) error {
	if err := copyFileAtomic(s.paths.DumpFile, s.paths.BackupFile); err != nil {
		return fmt.Errorf("blobsync: backing up local dump: %w", err)
	}

	if err := s.store.DownloadAbs(ctx, s.remote.DumpKey, s.paths.DumpFile); err != nil {
		return fmt.Errorf("blobsync: downloading remote dump: %w", err)
	}

	if err := s.dump.Import(ctx, s.paths.DumpFile); err != nil {
		return fmt.Errorf("blobsync: importing dump: %w", err)
	}

	return nil
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".blobsync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying %q to %q: %w", src, dst, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("renaming into %q: %w", dst, err)
	}

	succeeded = true

	return nil
}
