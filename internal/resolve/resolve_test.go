package resolve

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xornent/sync/internal/manifest"
	"github.com/Xornent/sync/internal/reconcile"
)

func TestConflictRowsDefaultOff(t *testing.T) {
	actions := []reconcile.Action{
		{Path: "/a", Current: &manifest.FileEntry{Hash: "h1", Size: 1}, LastLocal: &manifest.FileEntry{Hash: "h0", Size: 1}},
	}

	rows := ConflictRows(actions)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Default)
	assert.Equal(t, "/a", rows[0].Path)
	assert.NotNil(t, rows[0].LastLocal, "conflict rows must carry the actual last-local tuple, not the current one mislabeled")
}

func TestCandidateRowsDefaultOn(t *testing.T) {
	actions := []reconcile.Action{
		{Path: "/b", SourcePath: "/a", Current: &manifest.FileEntry{Hash: "h1", Size: 1}},
	}

	rows := CandidateRows(actions)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Default)
	assert.Equal(t, "/a", rows[0].SourcePath)
}

func TestLocalDeletionRowsDefaultOff(t *testing.T) {
	actions := []reconcile.Action{
		{Path: "/orphan.txt", Current: &manifest.FileEntry{Hash: "h1", Size: 1}},
	}

	rows := LocalDeletionRows(actions)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Default)
	assert.Equal(t, "/orphan.txt", rows[0].Path)
}

func TestDefaultsPrompterAppliesDefaults(t *testing.T) {
	rows := []Row{{Path: "/a", Default: true}, {Path: "/b", Default: false}}

	decisions, err := DefaultsPrompter{}.Select(context.Background(), "test", rows)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, decisions)
}

func TestStdPrompterNonInteractiveCancelsAllRows(t *testing.T) {
	var out bytes.Buffer

	p := NewStdPrompter(nil, &out, nil)
	p.isTerm = func(uintptr) bool { return false }

	rows := []Row{{Path: "/a", Default: true}}

	decisions, err := p.Select(context.Background(), "conflicts", rows)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, decisions, "non-interactive stdin must cancel, never block")
	assert.Empty(t, out.String(), "nothing should be written when cancelling non-interactively")
}

func TestStdPrompterReadsYesNo(t *testing.T) {
	in := bytes.NewBufferString("y\nn\n\n")
	var out bytes.Buffer

	p := NewStdPrompter(in, &out, nil)
	p.isTerm = func(uintptr) bool { return true }

	rows := []Row{
		{Path: "/a", Default: false},
		{Path: "/b", Default: false},
		{Path: "/c", Default: true},
	}

	decisions, err := p.Select(context.Background(), "conflicts", rows)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, decisions, "blank input falls back to the row's default")
}

func TestStdPrompterEmptyRowsNoPrompt(t *testing.T) {
	var out bytes.Buffer

	p := NewStdPrompter(nil, &out, nil)
	p.isTerm = func(uintptr) bool { return true }

	decisions, err := p.Select(context.Background(), "conflicts", nil)
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Empty(t, out.String())
}
