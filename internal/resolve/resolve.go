// Package resolve models the interactive decision point between the
// reconciler and the plan executor (spec §4.D). It deliberately stops short
// of terminal rendering and single-key input, which are out of scope: a
// Prompter receives a flat list of selectable rows with sensible defaults
// and returns a parallel boolean vector. Real cursor-driven list UIs are an
// external concern layered on top of this interface.
package resolve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/reconcile"
)

// Row is one selectable line presented to the user: a conflict, a rename
// candidate, or a copy candidate, with enough of the three-way tuple to
// describe the decision.
type Row struct {
	Path       string
	SourcePath string // set for rename/copy rows
	Current    *manifest.FileEntry
	LastLocal  *manifest.FileEntry
	Remote     *manifest.FileEntry
	Default    bool
}

// Prompter collects user decisions for one bucket of rows. It returns a
// boolean vector the same length as rows; true means "apply this row."
// Cancellation (the user says no to everything) is modeled as an
// all-false vector, not an error.
type Prompter interface {
	Select(ctx context.Context, label string, rows []Row) ([]bool, error)
}

// ConflictRows builds the selectable rows for the Conflicts bucket.
// Upload-style conflicts default off (spec §4.D: "upload-conflicts default
// off"); the label still shows the actual last-local tuple, not the
// current tuple mislabeled as "pushed" (spec §9 resolves this explicitly).
func ConflictRows(actions []reconcile.Action) []Row {
	rows := make([]Row, len(actions))

	for i, a := range actions {
		rows[i] = Row{
			Path:      a.Path,
			Current:   a.Current,
			LastLocal: a.LastLocal,
			Remote:    a.Remote,
			Default:   false,
		}
	}

	return rows
}

// CandidateRows builds the selectable rows for rename/copy candidates,
// which default on.
func CandidateRows(actions []reconcile.Action) []Row {
	rows := make([]Row, len(actions))

	for i, a := range actions {
		rows[i] = Row{
			Path:       a.Path,
			SourcePath: a.SourcePath,
			Current:    a.Current,
			Remote:     a.Remote,
			Default:    true,
		}
	}

	return rows
}

// DeletedRows builds the selectable rows for a fetch's LocallyDeleted
// bucket, once it's been narrowed to paths where last-local and remote
// already agreed (a genuine previous confirmation, not a never-seen path).
// Defaults off: declining restores the file by downloading it, the safer
// default when a row goes unanswered.
func DeletedRows(actions []reconcile.Action) []Row {
	rows := make([]Row, len(actions))

	for i, a := range actions {
		rows[i] = Row{
			Path:      a.Path,
			LastLocal: a.LastLocal,
			Remote:    a.Remote,
			Default:   false,
		}
	}

	return rows
}

// LocalDeletionRows builds the selectable rows for a fetch's
// LocalDeletionCandidate bucket: a local file the remote no longer has.
// Defaults off — declining keeps the file on disk for a future push, the
// safer default for a destructive local delete.
func LocalDeletionRows(actions []reconcile.Action) []Row {
	rows := make([]Row, len(actions))

	for i, a := range actions {
		rows[i] = Row{
			Path:      a.Path,
			Current:   a.Current,
			LastLocal: a.LastLocal,
			Default:   false,
		}
	}

	return rows
}

// DefaultsPrompter applies each row's Default without blocking on any input.
// Useful for scripted/unattended invocations that still want rename/copy
// candidates auto-accepted and conflicts auto-skipped.
type DefaultsPrompter struct{}

// Select implements Prompter by returning each row's Default.
func (DefaultsPrompter) Select(_ context.Context, _ string, rows []Row) ([]bool, error) {
	decisions := make([]bool, len(rows))
	for i, row := range rows {
		decisions[i] = row.Default
	}

	return decisions, nil
}

// StdPrompter is a line-oriented concrete Prompter: one yes/no question per
// row read from stdin, with humanized sizes and the last-local tuple shown
// alongside the current/remote ones. When stdin is not a terminal, every
// row is treated as cancelled rather than blocking (spec's "cancellation is
// modeled as select none").
type StdPrompter struct {
	in     *bufio.Reader
	out    io.Writer
	isTerm func(fd uintptr) bool
	logger *slog.Logger
}

// NewStdPrompter builds a Prompter reading from in and writing prompts to
// out. Passing nil for either defaults to os.Stdin/os.Stdout.
func NewStdPrompter(in io.Reader, out io.Writer, logger *slog.Logger) *StdPrompter {
	if in == nil {
		in = os.Stdin
	}

	if out == nil {
		out = os.Stdout
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &StdPrompter{in: bufio.NewReader(in), out: out, isTerm: isatty.IsTerminal, logger: logger}
}

// Select implements Prompter.
func (p *StdPrompter) Select(ctx context.Context, label string, rows []Row) ([]bool, error) {
	decisions := make([]bool, len(rows))

	if len(rows) == 0 {
		return decisions, nil
	}

	if !p.isTerm(os.Stdin.Fd()) {
		p.logger.Info("resolver: non-interactive stdin, cancelling all rows", "bucket", label, "rows", len(rows))
		return decisions, nil
	}

	fmt.Fprintf(p.out, "%s (%d):\n", label, len(rows))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return decisions, err
		}

		defaultHint := "y/N"
		if row.Default {
			defaultHint = "Y/n"
		}

		fmt.Fprintf(p.out, "  %s\n", describeRow(row))
		fmt.Fprintf(p.out, "  apply? [%s] ", defaultHint)

		line, err := p.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return decisions, fmt.Errorf("resolve: reading decision for %q: %w", row.Path, err)
		}

		decisions[i] = parseYesNo(strings.TrimSpace(line), row.Default)
	}

	return decisions, nil
}

func describeRow(row Row) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s", row.Path)

	if row.SourcePath != "" {
		fmt.Fprintf(&b, " (from %s)", row.SourcePath)
	}

	if row.Current != nil {
		fmt.Fprintf(&b, " current=%s/%s", row.Current.Hash[:min(8, len(row.Current.Hash))], humanize.Bytes(uint64(row.Current.Size)))
	}

	if row.LastLocal != nil {
		fmt.Fprintf(&b, " last-local=%s/%s", row.LastLocal.Hash[:min(8, len(row.LastLocal.Hash))], humanize.Bytes(uint64(row.LastLocal.Size)))
	} else {
		fmt.Fprintf(&b, " last-local=<none>")
	}

	if row.Remote != nil {
		fmt.Fprintf(&b, " remote=%s/%s", row.Remote.Hash[:min(8, len(row.Remote.Hash))], humanize.Bytes(uint64(row.Remote.Size)))
	}

	return b.String()
}

func parseYesNo(input string, def bool) bool {
	switch strings.ToLower(input) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
