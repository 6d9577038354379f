package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// treeColumns is the number of tab-separated fields in a tree manifest row:
// hash, size, mtime, sync_time, path.
const treeColumns = 5

// blobColumns is the number of tab-separated fields in a blob manifest row:
// hash, size, mtime, sync_time.
const blobColumns = 4

// manifestFilePermissions matches the permissions the rest of the stack uses
// for its own on-disk state files.
const manifestFilePermissions = 0o644

// manifestDirPermissions is used when creating the task conf directory.
const manifestDirPermissions = 0o755

// Encode renders a tree manifest to its canonical tab-separated form:
// hash<TAB>size<TAB>mtime<TAB>sync_time<TAB>path<NL> per row.
func Encode(m *Manifest) []byte {
	var b strings.Builder

	for _, e := range m.Entries {
		fmt.Fprintf(&b, "%s\t%d\t%s\t%s\t%s\n",
			e.Hash, e.Size, formatFloat(e.Mtime), formatFloat(e.SyncTime), e.Path)
	}

	return []byte(b.String())
}

// formatFloat prints a timestamp with full precision, trimming a trailing
// ".0" the way a bare integer second would render. Tree-row precision is
// not wire-critical (spec §4.A): only the blob encoding commits to 3 decimals.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

// Decode parses a tree manifest from its canonical tab-separated form.
// Tolerant of trailing CR (Windows line endings) on each row.
func Decode(r io.Reader) (*Manifest, error) {
	m := &Manifest{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != treeColumns {
			return nil, fmt.Errorf("%w: expected %d columns, got %d: %q",
				ErrMalformedManifest, treeColumns, len(fields), line)
		}

		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad size %q: %w", ErrMalformedManifest, fields[1], err)
		}

		mtime, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad mtime %q: %w", ErrMalformedManifest, fields[2], err)
		}

		syncTime, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad sync_time %q: %w", ErrMalformedManifest, fields[3], err)
		}

		m.Entries = append(m.Entries, FileEntry{
			Hash:     fields[0],
			Size:     size,
			Mtime:    mtime,
			SyncTime: syncTime,
			Path:     fields[4],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scanning: %w", err)
	}

	return m, nil
}

// EncodeBlob renders a blob manifest row: hash<TAB>size<TAB>mtime<TAB>sync_time
// with no trailing newline, times printed to 3 decimal places (spec §4.A).
func EncodeBlob(e *BlobEntry) []byte {
	s := fmt.Sprintf("%s\t%d\t%s\t%s",
		e.Hash, e.Size, strconv.FormatFloat(e.Mtime, 'f', 3, 64),
		strconv.FormatFloat(e.SyncTime, 'f', 3, 64))

	return []byte(s)
}

// DecodeBlob parses a blob manifest row, tolerating CR/LF at the end.
func DecodeBlob(data []byte) (*BlobEntry, error) {
	line := strings.TrimRight(string(data), "\r\n")
	if line == "" {
		return nil, fmt.Errorf("%w: empty blob manifest", ErrMalformedManifest)
	}

	fields := strings.Split(line, "\t")
	if len(fields) != blobColumns {
		return nil, fmt.Errorf("%w: expected %d columns, got %d: %q",
			ErrMalformedManifest, blobColumns, len(fields), line)
	}

	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad size %q: %w", ErrMalformedManifest, fields[1], err)
	}

	mtime, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad mtime %q: %w", ErrMalformedManifest, fields[2], err)
	}

	syncTime, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad sync_time %q: %w", ErrMalformedManifest, fields[3], err)
	}

	return &BlobEntry{Hash: fields[0], Size: size, Mtime: mtime, SyncTime: syncTime}, nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by fsync + rename, so a crash mid-write never corrupts the
// previous manifest (spec §5, §9 — "manifest-as-file is the durability
// boundary"). Grounded on the teacher's atomicWriteFile idiom.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, manifestDirPermissions); err != nil {
		return fmt.Errorf("manifest: creating directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("manifest: writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("manifest: syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("manifest: closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, manifestFilePermissions); err != nil {
		return fmt.Errorf("manifest: setting permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("manifest: renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}

// LoadFile reads and decodes a tree manifest from path. A missing file is
// not an error: it yields an empty manifest (spec's "last-local-or-empty").
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}

		return nil, fmt.Errorf("manifest: opening %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// SaveFile encodes and atomically writes a tree manifest to path.
func SaveFile(path string, m *Manifest) error {
	return WriteFileAtomic(path, Encode(m))
}

// LoadBlobFile reads and decodes a blob manifest row from path. A missing
// file yields (nil, nil) — the spec's RemoteEmpty / "no last-local yet" case.
func LoadBlobFile(path string) (*BlobEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("manifest: opening %s: %w", path, err)
	}

	return DecodeBlob(data)
}

// SaveBlobFile encodes and atomically writes a blob manifest row to path.
func SaveBlobFile(path string, e *BlobEntry) error {
	return WriteFileAtomic(path, EncodeBlob(e))
}
