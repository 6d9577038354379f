package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreUploadThenDownload(t *testing.T) {
	bucket := t.TempDir()
	destRoot := t.TempDir()
	localSrc := t.TempDir()

	srcFile := filepath.Join(localSrc, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	store := NewLocalStore(bucket, destRoot, nil)
	ctx := context.Background()

	require.NoError(t, store.UploadAbs(ctx, srcFile, "/a.txt"))

	dlPath := filepath.Join(t.TempDir(), "downloaded.txt")
	require.NoError(t, store.DownloadAbs(ctx, "/a.txt", dlPath))

	got, err := os.ReadFile(dlPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestLocalStoreUploadOverwritesExisting(t *testing.T) {
	bucket := t.TempDir()
	localSrc := t.TempDir()

	store := NewLocalStore(bucket, t.TempDir(), nil)
	ctx := context.Background()

	f1 := filepath.Join(localSrc, "a.txt")
	require.NoError(t, os.WriteFile(f1, []byte("v1"), 0o644))
	require.NoError(t, store.UploadAbs(ctx, f1, "/a.txt"))

	f2 := filepath.Join(localSrc, "b.txt")
	require.NoError(t, os.WriteFile(f2, []byte("v2"), 0o644))
	require.NoError(t, store.UploadAbs(ctx, f2, "/a.txt"))

	got, err := os.ReadFile(filepath.Join(bucket, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestLocalStoreRemoteMoveLeavesSourceInPlace(t *testing.T) {
	bucket := t.TempDir()
	localSrc := t.TempDir()

	store := NewLocalStore(bucket, t.TempDir(), nil)
	ctx := context.Background()

	f := filepath.Join(localSrc, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("content"), 0o644))
	require.NoError(t, store.UploadAbs(ctx, f, "/a.txt"))

	require.NoError(t, store.RemoteMove(ctx, "/a.txt", "/b.txt"))

	_, err := os.Stat(filepath.Join(bucket, "a.txt"))
	assert.NoError(t, err, "remote-move is copy-then-leave: source must still exist")

	got, err := os.ReadFile(filepath.Join(bucket, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestLocalStoreDownloadRelPrefixesDestRoot(t *testing.T) {
	bucket := t.TempDir()
	destRoot := t.TempDir()
	localSrc := t.TempDir()

	store := NewLocalStore(bucket, destRoot, nil)
	ctx := context.Background()

	f := filepath.Join(localSrc, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("rel"), 0o644))
	require.NoError(t, store.UploadAbs(ctx, f, "/sub/a.txt"))

	require.NoError(t, store.DownloadRel(ctx, "/sub/a.txt", "sub/a.txt"))

	got, err := os.ReadFile(filepath.Join(destRoot, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "rel", string(got))
}
