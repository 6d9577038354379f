package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xornent/sync/internal/manifest"
)

func entry(path, hash string, size int64, syncTime float64) manifest.FileEntry {
	return manifest.FileEntry{Path: path, Hash: hash, Size: size, SyncTime: syncTime}
}

func oneEntryManifest(e manifest.FileEntry) *manifest.Manifest {
	return &manifest.Manifest{Entries: []manifest.FileEntry{e}}
}

// Scenario 1: L = R = {a: h1}, C = {a: h1} -> Unchanged, no transfers.
func TestScenario1Unchanged(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h1", 5, 1))
	l := oneEntryManifest(entry("/a", "h1", 5, 1))
	rem := oneEntryManifest(entry("/a", "h1", 5, 1))

	plan := New(nil).Reconcile(c, l, rem, Push)

	require.Len(t, plan.Unchanged, 1)
	assert.Equal(t, 0, plan.TotalActions())
}

// Scenario 2: L = R = {a: h1}, C = {a: h2}, R.sync_time = L.sync_time ->
// LocalNewerUpload(a).
func TestScenario2LocalNewerUpload(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h2", 6, 99))
	l := oneEntryManifest(entry("/a", "h1", 5, 10))
	rem := oneEntryManifest(entry("/a", "h1", 5, 10))

	plan := New(nil).Reconcile(c, l, rem, Push)

	require.Len(t, plan.LocalNewerUpload, 1)
	assert.Equal(t, "/a", plan.LocalNewerUpload[0].Path)
	assert.Empty(t, plan.Conflicts)
}

// Scenario 3: L = {a: h1 @ t=10}, R = {a: h3 @ sync=20}, C = {a: h2} -> Conflict.
func TestScenario3Conflict(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h2", 6, 99))
	l := oneEntryManifest(entry("/a", "h1", 5, 10))
	rem := oneEntryManifest(entry("/a", "h3", 7, 20))

	plan := New(nil).Reconcile(c, l, rem, Push)

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "/a", plan.Conflicts[0].Path)
	assert.NotEmpty(t, plan.Conflicts[0].ConflictID)
}

// Scenario 4: L = R = {a: h1}, C = {b: h1} (renamed a -> b) -> RenameCandidate(a->b).
func TestScenario4RenameCandidate(t *testing.T) {
	c := oneEntryManifest(entry("/b", "h1", 5, 50))
	l := oneEntryManifest(entry("/a", "h1", 5, 1))
	rem := oneEntryManifest(entry("/a", "h1", 5, 1))

	plan := New(nil).Reconcile(c, l, rem, Push)

	require.Len(t, plan.RenameCandidates, 1)
	assert.Equal(t, "/b", plan.RenameCandidates[0].Path)
	assert.Equal(t, "/a", plan.RenameCandidates[0].SourcePath)
	assert.Empty(t, plan.PureUploads)
	assert.Empty(t, plan.LocallyDeleted, "the source path is consumed by the rename, not reported as a separate deletion")
}

// Scenario 5: L = R = {a: h1}, C = {a: h1, b: h1} -> CopyCandidate(a->b).
func TestScenario5CopyCandidate(t *testing.T) {
	c := &manifest.Manifest{Entries: []manifest.FileEntry{
		entry("/a", "h1", 5, 1),
		entry("/b", "h1", 5, 50),
	}}
	l := oneEntryManifest(entry("/a", "h1", 5, 1))
	rem := oneEntryManifest(entry("/a", "h1", 5, 1))

	plan := New(nil).Reconcile(c, l, rem, Push)

	require.Len(t, plan.Unchanged, 1)
	require.Len(t, plan.CopyCandidates, 1)
	assert.Equal(t, "/b", plan.CopyCandidates[0].Path)
	assert.Equal(t, "/a", plan.CopyCandidates[0].SourcePath)
}

func TestPureUploadWhenNoHashMatch(t *testing.T) {
	c := oneEntryManifest(entry("/new.txt", "hnew", 5, 1))
	rem := &manifest.Manifest{}

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, rem, Push)

	require.Len(t, plan.PureUploads, 1)
	assert.Equal(t, "/new.txt", plan.PureUploads[0].Path)
}

func TestEmptyHashNeverMatchesForRenameOrCopy(t *testing.T) {
	c := oneEntryManifest(entry("/empty-new.txt", manifest.EmptyHash, 0, 1))
	rem := oneEntryManifest(entry("/empty-old.txt", manifest.EmptyHash, 0, 1))

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, rem, Push)

	assert.Empty(t, plan.RenameCandidates)
	assert.Empty(t, plan.CopyCandidates)
	require.Len(t, plan.PureUploads, 1)
	require.Len(t, plan.LocallyDeleted, 1)
}

func TestLocallyDeletedWhenPathOnlyInRemote(t *testing.T) {
	rem := oneEntryManifest(entry("/gone.txt", "h1", 5, 1))

	plan := New(nil).Reconcile(&manifest.Manifest{}, &manifest.Manifest{}, rem, Fetch)

	require.Len(t, plan.LocallyDeleted, 1)
	assert.Equal(t, "/gone.txt", plan.LocallyDeleted[0].Path)
}

func TestConflictWhenNoLastLocalEntry(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h2", 6, 99))
	rem := oneEntryManifest(entry("/a", "h3", 7, 5))

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, rem, Push)

	require.Len(t, plan.Conflicts, 1)
}

func TestFetchUnattendedDownloadWhenLocalUnchangedSinceLastSync(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h1", 5, 10))
	l := oneEntryManifest(entry("/a", "h1", 5, 10))
	rem := oneEntryManifest(entry("/a", "h2", 6, 99))

	plan := New(nil).Reconcile(c, l, rem, Fetch)

	require.Len(t, plan.RemoteNewerDownload, 1)
	assert.Empty(t, plan.Conflicts)
}

func TestFetchConflictWhenLocalAlsoChanged(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h2", 6, 50))
	l := oneEntryManifest(entry("/a", "h1", 5, 10))
	rem := oneEntryManifest(entry("/a", "h3", 7, 40))

	plan := New(nil).Reconcile(c, l, rem, Fetch)

	require.Len(t, plan.Conflicts, 1)
}

func TestRenameTieBreakPicksFirstInManifestOrder(t *testing.T) {
	c := oneEntryManifest(entry("/new.txt", "h1", 5, 1))
	rem := &manifest.Manifest{Entries: []manifest.FileEntry{
		entry("/first.txt", "h1", 5, 1),
		entry("/second.txt", "h1", 5, 1),
	}}

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, rem, Push)

	require.Len(t, plan.RenameCandidates, 1)
	assert.Equal(t, "/first.txt", plan.RenameCandidates[0].SourcePath)
}

// Counterexample: remote has {/a: h1} then {/b: h1} in that manifest order.
// Current still has /a unchanged plus a brand-new /c at hash h1. The first
// match in manifest order is /a, and /a is still locally present, so this
// must classify as a copy from /a — never a rename from /b, even though /b
// is also a same-hash candidate and isn't locally present.
func TestRenameCopyTieBreakUsesFirstMatchRegardlessOfStillLocalStatus(t *testing.T) {
	c := &manifest.Manifest{Entries: []manifest.FileEntry{
		entry("/a", "h1", 5, 1),
		entry("/c", "h1", 5, 50),
	}}
	l := oneEntryManifest(entry("/a", "h1", 5, 1))
	rem := &manifest.Manifest{Entries: []manifest.FileEntry{
		entry("/a", "h1", 5, 1),
		entry("/b", "h1", 5, 1),
	}}

	plan := New(nil).Reconcile(c, l, rem, Push)

	assert.Empty(t, plan.RenameCandidates)
	require.Len(t, plan.CopyCandidates, 1)
	assert.Equal(t, "/c", plan.CopyCandidates[0].Path)
	assert.Equal(t, "/a", plan.CopyCandidates[0].SourcePath)
}

// Fetch mirror of scenario 4: a remote path that's new to this machine has
// the same hash as an existing local file that's itself gone from the
// remote manifest -> LocalMoveCandidate, not a download.
func TestFetchLocalMoveCandidate(t *testing.T) {
	c := oneEntryManifest(entry("/old.txt", "h1", 5, 1))
	rem := oneEntryManifest(entry("/new.txt", "h1", 5, 1))

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, rem, Fetch)

	require.Len(t, plan.LocalMoveCandidates, 1)
	assert.Equal(t, "/new.txt", plan.LocalMoveCandidates[0].Path)
	assert.Equal(t, "/old.txt", plan.LocalMoveCandidates[0].SourcePath)
	assert.Empty(t, plan.LocalDeletionCandidates, "the move source is consumed, not reported as a separate deletion candidate")
}

// Fetch mirror of scenario 5: the matched local file is ALSO still present
// remotely -> LocalCopyCandidate, and the source stays untouched (it's
// present in both current and remote, so it's Unchanged, not a deletion
// candidate).
func TestFetchLocalCopyCandidate(t *testing.T) {
	c := oneEntryManifest(entry("/a", "h1", 5, 1))
	rem := &manifest.Manifest{Entries: []manifest.FileEntry{
		entry("/a", "h1", 5, 1),
		entry("/b", "h1", 5, 1),
	}}

	plan := New(nil).Reconcile(c, oneEntryManifest(entry("/a", "h1", 5, 1)), rem, Fetch)

	require.Len(t, plan.Unchanged, 1)
	require.Len(t, plan.LocalCopyCandidates, 1)
	assert.Equal(t, "/b", plan.LocalCopyCandidates[0].Path)
	assert.Equal(t, "/a", plan.LocalCopyCandidates[0].SourcePath)
	assert.Empty(t, plan.LocalDeletionCandidates)
}

// A local-only path on a fetch (C\R, no remote content matches it at all)
// is a confirmed local deletion candidate, distinct from the remote-only
// LocallyDeleted bucket (original ground truth:
// original_source/tasks/filesystem.py:615-619, built from the local side).
func TestFetchLocalDeletionCandidateWhenPathOnlyInCurrent(t *testing.T) {
	c := oneEntryManifest(entry("/orphan.txt", "h1", 5, 1))

	plan := New(nil).Reconcile(c, &manifest.Manifest{}, &manifest.Manifest{}, Fetch)

	require.Len(t, plan.LocalDeletionCandidates, 1)
	assert.Equal(t, "/orphan.txt", plan.LocalDeletionCandidates[0].Path)
	assert.Empty(t, plan.LocallyDeleted)
}
