package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := &Manifest{Entries: []FileEntry{
		{Hash: "abc123", Size: 10, Mtime: 1700000000.5, SyncTime: 1700000001, Path: "/a/b.txt"},
		{Hash: EmptyHash, Size: 0, Mtime: 0, SyncTime: 1700000002, Path: "/a/.ignore"},
	}}

	encoded := Encode(m)
	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, m.Entries, decoded.Entries)
}

func TestDecodeToleratesCRLF(t *testing.T) {
	data := "hash1\t5\t1.0\t2.0\t/x\r\n"
	decoded, err := Decode(bytes.NewReader([]byte(data)))
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, "/x", decoded.Entries[0].Path)
}

func TestDecodeRejectsMalformedRow(t *testing.T) {
	data := "hash1\t5\t1.0\n" // missing sync_time and path
	_, err := Decode(bytes.NewReader([]byte(data)))
	require.ErrorIs(t, err, ErrMalformedManifest)
}

func TestBlobEncodeDecodeRoundTrip(t *testing.T) {
	e := &BlobEntry{Hash: "deadbeef", Size: 123, Mtime: 1.5, SyncTime: 2.25}
	encoded := EncodeBlob(e)
	assert.NotContains(t, string(encoded), "\n")

	decoded, err := DecodeBlob(encoded)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", decoded.Hash)
	assert.Equal(t, int64(123), decoded.Size)
	assert.InDelta(t, 1.5, decoded.Mtime, 0.001)
	assert.InDelta(t, 2.25, decoded.SyncTime, 0.001)
}

func TestBlobDecodeMalformed(t *testing.T) {
	_, err := DecodeBlob([]byte("only\ttwo"))
	require.ErrorIs(t, err, ErrMalformedManifest)
}

func TestSaveLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "filesystem.current")

	m := &Manifest{Entries: []FileEntry{
		{Hash: "h1", Size: 1, Mtime: 1, SyncTime: 1, Path: "/a"},
	}}

	require.NoError(t, SaveFile(path, m))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Entries, loaded.Entries)

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	m, err := LoadFile(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
}

func TestLoadBlobFileMissingIsNil(t *testing.T) {
	e, err := LoadBlobFile(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestManifestByHashExcludesNothingItself(t *testing.T) {
	m := &Manifest{Entries: []FileEntry{
		{Hash: "h1", Path: "/a"},
		{Hash: "h1", Path: "/b"},
		{Hash: EmptyHash, Path: "/c"},
	}}

	byHash := m.ByHash()
	assert.Len(t, byHash["h1"], 2)
	assert.Len(t, byHash[EmptyHash], 1)
}

func TestValidatePathRejectsTabsAndNewlines(t *testing.T) {
	require.NoError(t, ValidatePath("/a/b"))
	require.Error(t, ValidatePath("/a\tb"))
	require.Error(t, ValidatePath("/a\nb"))
}

func TestIsIgnoreMarker(t *testing.T) {
	assert.True(t, IsIgnoreMarker("/vendor/.ignore"))
	assert.False(t, IsIgnoreMarker("/vendor/file.txt"))
}
