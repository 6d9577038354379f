// Package cli renders reconciler/executor results for a terminal. It is
// deliberately thin — spec.md §1 excludes terminal rendering and
// single-key input from the core — but a runnable CLI still needs a
// read-only view of what push/fetch/diff found, the supplemented feature
// from original_source/tasks/filesystem.py's per-bucket count summary
// (SPEC_FULL.md §4).
package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/Xornent/sync/internal/blobsync"
	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/plan"
	"github.com/Xornent/sync/internal/reconcile"
	"github.com/Xornent/sync/internal/treesync"
)

// PrintTreeDiff renders a tree diff's count summary followed by per-bucket
// detail. diff never prompts, so this is the complete output for that verb.
func PrintTreeDiff(w io.Writer, p *reconcile.Plan) {
	fmt.Fprintf(w, "unchanged=%d new=%d modified-local=%d modified-remote=%d "+
		"conflict=%d renamed=%d copied=%d deleted=%d\n",
		len(p.Unchanged), len(p.PureUploads), len(p.LocalNewerUpload), len(p.RemoteNewerDownload),
		len(p.Conflicts), len(p.RenameCandidates), len(p.CopyCandidates), len(p.LocallyDeleted))

	printBucket(w, "new (local only)", p.PureUploads)
	printBucket(w, "modified locally", p.LocalNewerUpload)
	printBucket(w, "modified remotely", p.RemoteNewerDownload)
	printBucket(w, "conflicts", p.Conflicts)
	printRenameBucket(w, "renamed", p.RenameCandidates)
	printRenameBucket(w, "copied", p.CopyCandidates)
	printBucket(w, "remote-only (locally deleted)", p.LocallyDeleted)
}

func printBucket(w io.Writer, label string, actions []reconcile.Action) {
	if len(actions) == 0 {
		return
	}

	fmt.Fprintf(w, "%s:\n", label)

	for _, a := range actions {
		fmt.Fprintf(w, "  %s%s\n", a.Path, sizeSuffix(a))
	}
}

func printRenameBucket(w io.Writer, label string, actions []reconcile.Action) {
	if len(actions) == 0 {
		return
	}

	fmt.Fprintf(w, "%s:\n", label)

	for _, a := range actions {
		fmt.Fprintf(w, "  %s -> %s%s\n", a.SourcePath, a.Path, sizeSuffix(a))
	}
}

func sizeSuffix(a reconcile.Action) string {
	e := a.Current
	if e == nil {
		e = a.Remote
	}

	if e == nil {
		return ""
	}

	return fmt.Sprintf(" (%s)", humanize.Bytes(uint64(e.Size)))
}

// PrintTreeReport renders the outcome of a tree push or fetch: what the
// reconciler classified, followed by what the executor actually did.
func PrintTreeReport(w io.Writer, r *treesync.Report) {
	fmt.Fprintf(w, "%s: %d action(s)\n", directionLabel(r.Direction), r.Plan.TotalActions())
	printExecReport(w, r.Exec)
}

func printExecReport(w io.Writer, r *plan.Report) {
	if len(r.Uploaded) > 0 {
		fmt.Fprintf(w, "  uploaded: %d\n", len(r.Uploaded))
	}

	if len(r.Downloaded) > 0 {
		fmt.Fprintf(w, "  downloaded: %d\n", len(r.Downloaded))
	}

	if len(r.Moved) > 0 {
		fmt.Fprintf(w, "  moved: %d\n", len(r.Moved))
	}

	if len(r.Copied) > 0 {
		fmt.Fprintf(w, "  copied: %d\n", len(r.Copied))
	}

	if len(r.Deleted) > 0 {
		fmt.Fprintf(w, "  deleted: %d\n", len(r.Deleted))
	}

	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAILED %s: %v\n", f.Path, f.Err)
	}
}

func directionLabel(dir reconcile.Direction) string {
	if dir == reconcile.Fetch {
		return "fetch"
	}

	return "push"
}

// PrintBlobDiff renders a database diff: the current/last-local/remote
// triplet and the classification, no transfers.
func PrintBlobDiff(w io.Writer, r *blobsync.DiffResult) {
	fmt.Fprintf(w, "status: %s\n", r.Status)
	printBlobEntry(w, "current", r.Current)
	printBlobEntry(w, "last-local", r.LastLocal)
	printBlobEntry(w, "remote", r.Remote)
}

func printBlobEntry(w io.Writer, label string, e *manifest.BlobEntry) {
	if e == nil {
		fmt.Fprintf(w, "  %s: <none>\n", label)
		return
	}

	fmt.Fprintf(w, "  %s: %s %s\n", label, shortHash(e.Hash), humanize.Bytes(uint64(e.Size)))
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}

	return h
}

// PrintBlobReport renders the outcome of a database push or fetch.
func PrintBlobReport(w io.Writer, r *blobsync.Report) {
	fmt.Fprintf(w, "status: %s", r.Status)

	if r.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}

	fmt.Fprintln(w)
}
