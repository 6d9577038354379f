package blobsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xornent/sync/internal/objectstore"
	"github.com/Xornent/sync/internal/resolve"
)

// acceptAllPrompter confirms every row, standing in for a user who answers
// yes at the conflict prompt.
type acceptAllPrompter struct{}

func (acceptAllPrompter) Select(_ context.Context, _ string, rows []resolve.Row) ([]bool, error) {
	decisions := make([]bool, len(rows))
	for i := range decisions {
		decisions[i] = true
	}

	return decisions, nil
}

// fakeDriver treats the database as a single file it copies in and out of
// the dump path, standing in for a real engine's VACUUM INTO/restore.
type fakeDriver struct {
	dbPath string
}

func (d *fakeDriver) Dump(_ context.Context, dumpPath string) error {
	data, err := os.ReadFile(d.dbPath)
	if os.IsNotExist(err) {
		data = []byte("")
	} else if err != nil {
		return err
	}

	return os.WriteFile(dumpPath, data, 0o644)
}

func (d *fakeDriver) Import(_ context.Context, dumpPath string) error {
	data, err := os.ReadFile(dumpPath)
	if err != nil {
		return err
	}

	return os.WriteFile(d.dbPath, data, 0o644)
}

func newTaskLayout(t *testing.T) (confDir, dbPath string) {
	t.Helper()

	root := t.TempDir()
	confDir = filepath.Join(root, "conf")
	require.NoError(t, os.MkdirAll(confDir, 0o755))

	return confDir, filepath.Join(root, "app.db")
}

func newBlobSync(confDir, dbPath, bucketRoot string) *Sync {
	store := objectstore.NewLocalStore(bucketRoot, confDir, nil)
	driver := &fakeDriver{dbPath: dbPath}

	return New(store, driver, Paths{
		CurrentManifest:   filepath.Join(confDir, "database.current"),
		LastLocalManifest: filepath.Join(confDir, "database.last-local"),
		DumpFile:          filepath.Join(confDir, "database.sql"),
		BackupFile:        filepath.Join(confDir, "database.backup.sql"),
	}, Remote{
		ManifestKey: "/database.app.checksum.tsv",
		DumpKey:     "/database.app.sql",
	}, nil, nil)
}

func TestPushInitialThenPushNoOpIsUnchanged(t *testing.T) {
	ctx := context.Background()
	bucketRoot := t.TempDir()
	confDir, dbPath := newTaskLayout(t)

	require.NoError(t, os.WriteFile(dbPath, []byte("row one"), 0o644))

	s := newBlobSync(confDir, dbPath, bucketRoot)

	report1, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRemoteEmpty, report1.Status)

	report2, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, report2.Status)
}

func TestPushThenFetchFromEmptyCopiesDump(t *testing.T) {
	ctx := context.Background()
	bucketRoot := t.TempDir()

	aConf, aDB := newTaskLayout(t)
	require.NoError(t, os.WriteFile(aDB, []byte("original data"), 0o644))

	a := newBlobSync(aConf, aDB, bucketRoot)
	_, err := a.Push(ctx)
	require.NoError(t, err)

	bConf, bDB := newTaskLayout(t)
	b := newBlobSync(bConf, bDB, bucketRoot)
	// B has no last-local record, so its differing dump is a conflict that
	// must be confirmed before the remote dump replaces it.
	b.prompter = acceptAllPrompter{}

	report, err := b.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, report.Status)

	got, err := os.ReadFile(bDB)
	require.NoError(t, err)
	assert.Equal(t, "original data", string(got))
}

func TestFetchWithNoRemoteManifestIsFatal(t *testing.T) {
	ctx := context.Background()
	bucketRoot := t.TempDir()
	confDir, dbPath := newTaskLayout(t)

	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	s := newBlobSync(confDir, dbPath, bucketRoot)

	_, err := s.Fetch(ctx)
	require.ErrorIs(t, err, ErrRemoteEmpty)
}

func TestFetchBacksUpLocalDumpBeforeOverwriting(t *testing.T) {
	ctx := context.Background()
	bucketRoot := t.TempDir()

	aConf, aDB := newTaskLayout(t)
	require.NoError(t, os.WriteFile(aDB, []byte("remote version"), 0o644))
	a := newBlobSync(aConf, aDB, bucketRoot)
	_, err := a.Push(ctx)
	require.NoError(t, err)

	bConf, bDB := newTaskLayout(t)
	require.NoError(t, os.WriteFile(bDB, []byte("stale local version"), 0o644))
	b := newBlobSync(bConf, bDB, bucketRoot)
	b.prompter = acceptAllPrompter{} // no last-local record: the fetch is a conflict to confirm

	_, err = b.Fetch(ctx)
	require.NoError(t, err)

	backup, err := os.ReadFile(filepath.Join(bConf, "database.backup.sql"))
	require.NoError(t, err)
	assert.Equal(t, "stale local version", string(backup))

	current, err := os.ReadFile(bDB)
	require.NoError(t, err)
	assert.Equal(t, "remote version", string(current))
}

func TestDiffReportsRemoteEmptyWithoutTransferring(t *testing.T) {
	ctx := context.Background()
	bucketRoot := t.TempDir()
	confDir, dbPath := newTaskLayout(t)

	require.NoError(t, os.WriteFile(dbPath, []byte("untouched"), 0o644))

	s := newBlobSync(confDir, dbPath, bucketRoot)

	result, err := s.Diff(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRemoteEmpty, result.Status)

	_, err = os.Stat(filepath.Join(bucketRoot, "database.app.sql"))
	assert.True(t, os.IsNotExist(err))
}
