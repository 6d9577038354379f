// Package reconcile implements the three-way comparison between a current,
// last-local and remote manifest, classifying every path into one of a fixed
// set of buckets and emitting the corresponding action plan.
package reconcile

import "github.com/Xornent/sync/internal/manifest"

// Direction distinguishes a push (local → remote) run from a fetch
// (remote → local) run. It decides the unattended-transfer rule, the fate of
// LocallyDeleted rows, and which candidate buckets are detected: rename,
// copy and pure-upload candidates on push; local-move, local-copy and
// local-deletion candidates on fetch.
type Direction int

const (
	Push Direction = iota
	Fetch
)

// ActionType names the bucket a path was classified into (spec §4.C).
type ActionType int

const (
	// Unchanged: hash and size agree between current and remote. No transfer;
	// the remote row is carried forward into the next last-local manifest.
	Unchanged ActionType = iota

	// LocalNewerUpload: content differs, remote hasn't moved since our last
	// agreement. Unattended upload (push only).
	LocalNewerUpload

	// RemoteNewerDownload: content differs, local hasn't moved since our last
	// agreement. Unattended download (fetch only).
	RemoteNewerDownload

	// Conflict: content differs and neither side can be trusted as stable.
	// Requires a user decision.
	Conflict

	// RenameCandidate: path is new locally, but its content hash matches a
	// remote path that no longer exists locally. Proposes a move.
	RenameCandidate

	// CopyCandidate: path is new locally, its content hash matches a remote
	// path that ALSO still exists locally. Proposes a copy.
	CopyCandidate

	// PureUpload: path is new locally with no matching remote content.
	PureUpload

	// LocallyDeleted: path exists remotely but not locally, and (on fetch)
	// its content has no match anywhere in the current local tree.
	// Informational on push; an unattended download or a "keep the
	// confirmed absence" decision on fetch (spec §4.E).
	LocallyDeleted

	// LocalMoveCandidate: fetch only. A remote path that's new to this
	// machine has the same content hash as an existing local file that is
	// itself absent from the remote manifest. Proposes a local rename
	// instead of a download.
	LocalMoveCandidate

	// LocalCopyCandidate: fetch only. Same hash match as LocalMoveCandidate,
	// but the matched local file is ALSO still present remotely. Proposes a
	// local copy instead of a download.
	LocalCopyCandidate

	// LocalDeletionCandidate: fetch only. Path exists locally but not
	// remotely, and wasn't claimed by a LocalMoveCandidate as its source.
	// Proposes deleting the local copy (declining keeps it for a future
	// push).
	LocalDeletionCandidate
)

// Action describes one path's disposition plus enough context (the three
// entries as seen) for the resolver to display it and the executor to act on
// it without re-deriving anything.
type Action struct {
	Type ActionType
	Path string

	// SourcePath is set for RenameCandidate/CopyCandidate (the remote path
	// whose content is proposed to be moved/copied to Path) and for
	// LocalMoveCandidate/LocalCopyCandidate (the local path whose file is
	// proposed to be moved/copied to Path).
	SourcePath string

	Current   *manifest.FileEntry
	LastLocal *manifest.FileEntry
	Remote    *manifest.FileEntry

	// ConflictID uniquely identifies a Conflict row across the resolver and
	// executor stages.
	ConflictID string
}

// Plan groups classified actions by bucket, in the order the executor
// expects to consider them (spec §4.E enumerates the same order, though
// application order is the executor's responsibility, not this package's).
type Plan struct {
	Unchanged           []Action
	LocalNewerUpload    []Action
	RemoteNewerDownload []Action
	Conflicts           []Action
	RenameCandidates    []Action
	CopyCandidates      []Action
	PureUploads         []Action
	LocallyDeleted      []Action

	// LocalMoveCandidates, LocalCopyCandidates and LocalDeletionCandidates
	// are populated on a fetch reconciliation only (see their ActionType
	// docs); a push reconciliation leaves them empty.
	LocalMoveCandidates     []Action
	LocalCopyCandidates     []Action
	LocalDeletionCandidates []Action
}

// TotalActions counts every action requiring a decision or transfer,
// excluding Unchanged.
func (p *Plan) TotalActions() int {
	return len(p.LocalNewerUpload) + len(p.RemoteNewerDownload) + len(p.Conflicts) +
		len(p.RenameCandidates) + len(p.CopyCandidates) + len(p.PureUploads) + len(p.LocallyDeleted) +
		len(p.LocalMoveCandidates) + len(p.LocalCopyCandidates) + len(p.LocalDeletionCandidates)
}
