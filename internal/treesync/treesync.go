// Package treesync is the tree-variant sync engine: it composes the
// indexer, reconciler, resolver and executor (spec §2's components A-E)
// into the three verbs push/fetch/diff, the same way internal/blobsync does
// for the single-blob variant.
package treesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Xornent/sync/internal/indexer"
	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/objectstore"
	"github.com/Xornent/sync/internal/plan"
	"github.com/Xornent/sync/internal/reconcile"
	"github.com/Xornent/sync/internal/resolve"
)

// ErrRemoteEmpty is returned by Fetch when no remote manifest object
// exists. Fatal for fetch; for push the same condition is the normal
// initial-commit path (spec §7).
var ErrRemoteEmpty = errors.New("treesync: remote manifest not found")

// Paths is the local on-disk layout for one tree task (spec §6).
type Paths struct {
	CurrentManifest   string // filesystem.current
	LastLocalManifest string // filesystem.last-local
}

// Remote is the object-store layout for one tree task (spec §6).
type Remote struct {
	ManifestKey string // "/filesystem.checksum.tsv"
}

// Report summarizes one Push or Fetch call: the reconciler's classification
// plus the executor's per-row outcome.
type Report struct {
	Direction reconcile.Direction
	Plan      *reconcile.Plan
	Exec      *plan.Report
}

// Sync drives one tree task end to end.
type Sync struct {
	store      objectstore.Store
	indexer    *indexer.Indexer
	reconciler *reconcile.Reconciler
	executor   *plan.Executor
	prompter   resolve.Prompter
	localRoot  string
	paths      Paths
	remote     Remote
	logger     *slog.Logger
}

// New creates a Sync. prompter defaults to resolve.DefaultsPrompter{} when
// nil (unattended: rename/copy candidates accepted, conflicts and
// deletions declined).
func New(store objectstore.Store, localRoot string, paths Paths, remote Remote, prompter resolve.Prompter, logger *slog.Logger) *Sync {
	if prompter == nil {
		prompter = resolve.DefaultsPrompter{}
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &Sync{
		store:      store,
		indexer:    indexer.New(logger),
		reconciler: reconcile.New(logger),
		executor:   plan.New(store, localRoot, logger),
		prompter:   prompter,
		localRoot:  localRoot,
		paths:      paths,
		remote:     remote,
		logger:     logger,
	}
}

// Push implements spec §4.E's push sequence: index, reconcile against the
// downloaded remote, resolve conflicts/candidates, execute, then upload the
// resulting manifest as the new remote state before replacing last-local.
func (s *Sync) Push(ctx context.Context) (*Report, error) {
	lastLocal, err := manifest.LoadFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("treesync: loading last-local manifest: %w", err)
	}

	current, err := s.indexer.Index(ctx, s.localRoot, lastLocal)
	if err != nil {
		return nil, fmt.Errorf("treesync: indexing: %w", err)
	}

	if err := manifest.SaveFile(s.paths.CurrentManifest, current); err != nil {
		return nil, fmt.Errorf("treesync: saving current manifest: %w", err)
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	p := s.reconciler.Reconcile(current, lastLocal, remote, reconcile.Push)

	decisions, err := s.resolveDecisions(ctx, p, reconcile.Push)
	if err != nil {
		return nil, err
	}

	newManifest, execReport := s.executor.Execute(ctx, p, decisions, reconcile.Push)

	if err := s.finalizePush(ctx, newManifest); err != nil {
		return nil, err
	}

	return &Report{Direction: reconcile.Push, Plan: p, Exec: execReport}, nil
}

// Fetch implements spec §4.E's fetch sequence. Unlike Push, the resulting
// manifest simply becomes the new last-local: nothing is uploaded.
func (s *Sync) Fetch(ctx context.Context) (*Report, error) {
	lastLocal, err := manifest.LoadFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("treesync: loading last-local manifest: %w", err)
	}

	current, err := s.indexer.Index(ctx, s.localRoot, lastLocal)
	if err != nil {
		return nil, fmt.Errorf("treesync: indexing: %w", err)
	}

	if err := manifest.SaveFile(s.paths.CurrentManifest, current); err != nil {
		return nil, fmt.Errorf("treesync: saving current manifest: %w", err)
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	if remote == nil {
		return nil, ErrRemoteEmpty
	}

	p := s.reconciler.Reconcile(current, lastLocal, remote, reconcile.Fetch)

	decisions, err := s.resolveDecisions(ctx, p, reconcile.Fetch)
	if err != nil {
		return nil, err
	}

	newManifest, execReport := s.executor.Execute(ctx, p, decisions, reconcile.Fetch)

	if err := manifest.SaveFile(s.paths.LastLocalManifest, newManifest); err != nil {
		return nil, fmt.Errorf("treesync: saving last-local manifest: %w", err)
	}

	return &Report{Direction: reconcile.Fetch, Plan: p, Exec: execReport}, nil
}

// Diff implements spec §4.E's diff sequence: the same three-way comparison,
// shown from the push perspective, with no resolver involvement and no
// transfers (mirrors internal/blobsync.Diff's choice of reconcile.Push as
// the display basis).
func (s *Sync) Diff(ctx context.Context) (*reconcile.Plan, error) {
	lastLocal, err := manifest.LoadFile(s.paths.LastLocalManifest)
	if err != nil {
		return nil, fmt.Errorf("treesync: loading last-local manifest: %w", err)
	}

	current, err := s.indexer.Index(ctx, s.localRoot, lastLocal)
	if err != nil {
		return nil, fmt.Errorf("treesync: indexing: %w", err)
	}

	if err := manifest.SaveFile(s.paths.CurrentManifest, current); err != nil {
		return nil, fmt.Errorf("treesync: saving current manifest: %w", err)
	}

	remote, err := s.loadRemoteManifest(ctx)
	if err != nil {
		return nil, err
	}

	return s.reconciler.Reconcile(current, lastLocal, remote, reconcile.Push), nil
}

// resolveDecisions prompts for every bucket that needs a human decision,
// skipping buckets direction doesn't apply to: the push-direction
// RenameCandidates/CopyCandidates buckets only ever get populated on a push
// reconciliation (see reconcile.Reconcile), and their fetch-direction
// counterparts (LocalMoveCandidates/LocalCopyCandidates) only on a fetch
// one. LocallyDeleted is only prompted on fetch, and only for rows where
// last-local and remote already agreed (a genuine earlier confirmation, not
// a path this machine has simply never fetched).
func (s *Sync) resolveDecisions(ctx context.Context, p *reconcile.Plan, dir reconcile.Direction) (plan.Decisions, error) {
	d := plan.Decisions{
		Conflicts:               map[string]bool{},
		RenameCandidates:        map[string]bool{},
		CopyCandidates:          map[string]bool{},
		KeepDeleted:             map[string]bool{},
		LocalMoveCandidates:     map[string]bool{},
		LocalCopyCandidates:     map[string]bool{},
		LocalDeletionCandidates: map[string]bool{},
	}

	if len(p.Conflicts) > 0 {
		label := "push conflicts"
		if dir == reconcile.Fetch {
			label = "fetch conflicts"
		}

		decisions, err := s.prompter.Select(ctx, label, resolve.ConflictRows(p.Conflicts))
		if err != nil {
			return d, fmt.Errorf("treesync: resolving conflicts: %w", err)
		}

		for i, a := range p.Conflicts {
			d.Conflicts[a.ConflictID] = decisions[i]
		}
	}

	if dir == reconcile.Push {
		if len(p.RenameCandidates) > 0 {
			decisions, err := s.prompter.Select(ctx, "rename candidates", resolve.CandidateRows(p.RenameCandidates))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving rename candidates: %w", err)
			}

			for i, a := range p.RenameCandidates {
				d.RenameCandidates[a.Path] = decisions[i]
			}
		}

		if len(p.CopyCandidates) > 0 {
			decisions, err := s.prompter.Select(ctx, "copy candidates", resolve.CandidateRows(p.CopyCandidates))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving copy candidates: %w", err)
			}

			for i, a := range p.CopyCandidates {
				d.CopyCandidates[a.Path] = decisions[i]
			}
		}
	}

	if dir == reconcile.Fetch {
		if len(p.LocalMoveCandidates) > 0 {
			decisions, err := s.prompter.Select(ctx, "local move candidates", resolve.CandidateRows(p.LocalMoveCandidates))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving local move candidates: %w", err)
			}

			for i, a := range p.LocalMoveCandidates {
				d.LocalMoveCandidates[a.Path] = decisions[i]
			}
		}

		if len(p.LocalCopyCandidates) > 0 {
			decisions, err := s.prompter.Select(ctx, "local copy candidates", resolve.CandidateRows(p.LocalCopyCandidates))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving local copy candidates: %w", err)
			}

			for i, a := range p.LocalCopyCandidates {
				d.LocalCopyCandidates[a.Path] = decisions[i]
			}
		}

		var confirmRows []reconcile.Action

		for _, a := range p.LocallyDeleted {
			isFreshToUs := a.LastLocal == nil || a.Remote == nil || a.LastLocal.Hash != a.Remote.Hash
			if !isFreshToUs {
				confirmRows = append(confirmRows, a)
			}
		}

		if len(confirmRows) > 0 {
			decisions, err := s.prompter.Select(ctx, "confirm remote-absent restores", resolve.DeletedRows(confirmRows))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving local deletions: %w", err)
			}

			for i, a := range confirmRows {
				d.KeepDeleted[a.Path] = decisions[i]
			}
		}

		if len(p.LocalDeletionCandidates) > 0 {
			decisions, err := s.prompter.Select(ctx, "confirm local deletions", resolve.LocalDeletionRows(p.LocalDeletionCandidates))
			if err != nil {
				return d, fmt.Errorf("treesync: resolving local deletion candidates: %w", err)
			}

			for i, a := range p.LocalDeletionCandidates {
				d.LocalDeletionCandidates[a.Path] = decisions[i]
			}
		}
	}

	return d, nil
}

// loadRemoteManifest downloads the remote manifest object, tolerating
// absence (spec's RemoteEmpty).
func (s *Sync) loadRemoteManifest(ctx context.Context) (*manifest.Manifest, error) {
	tmp := s.paths.CurrentManifest + ".remote-fetch.tmp"
	defer os.Remove(tmp)

	if err := s.store.DownloadAbs(ctx, s.remote.ManifestKey, tmp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("treesync: downloading remote manifest: %w", err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("treesync: reading downloaded remote manifest: %w", err)
	}

	return manifest.Decode(bytes.NewReader(data))
}

// finalizePush uploads the manifest executor produced as the new remote
// state, then atomically replaces the on-disk last-local file — in that
// order, so a failed upload never advances last-local past what the remote
// actually holds (spec §4.E: "additionally upload the new last-local as
// the remote manifest; then atomically replace the on-disk last-local
// file").
func (s *Sync) finalizePush(ctx context.Context, m *manifest.Manifest) error {
	tmp := s.paths.LastLocalManifest + ".upload.tmp"
	defer os.Remove(tmp)

	if err := os.WriteFile(tmp, manifest.Encode(m), 0o644); err != nil {
		return fmt.Errorf("treesync: writing manifest for upload: %w", err)
	}

	if err := s.store.UploadAbs(ctx, tmp, s.remote.ManifestKey); err != nil {
		return fmt.Errorf("treesync: uploading manifest: %w", err)
	}

	if err := manifest.SaveFile(s.paths.LastLocalManifest, m); err != nil {
		return fmt.Errorf("treesync: saving last-local manifest: %w", err)
	}

	return nil
}
