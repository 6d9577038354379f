// Package manifest implements the tab-separated manifest codec and the
// fingerprinting rule shared by every sync task (tree or blob).
package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// EmptyHash is the MD5 digest of the empty byte string. It is excluded from
// rename/copy matching because every zero-length file would otherwise match
// every other zero-length file.
const EmptyHash = "d41d8cd98f00b204e9800998ecf8427e"

// FileEntry is a single row of a tree manifest.
type FileEntry struct {
	Hash     string
	Size     int64
	Mtime    float64
	SyncTime float64
	Path     string // forward-slash delimited, begins with "/"
}

// BlobEntry is the single synthetic row of a blob (database dump) manifest.
type BlobEntry struct {
	Hash     string
	Size     int64
	Mtime    float64
	SyncTime float64
}

// ErrMalformedManifest is returned by Decode/DecodeBlob when a row does not
// have the expected column count.
var ErrMalformedManifest = errors.New("manifest: malformed row")

// Manifest is an ordered sequence of tree entries. Order is insertion order
// from the directory walk that produced it; reconciliation only needs the
// (path, hash, size) triples, but callers that rewrite a manifest to disk
// should preserve order for diff-friendliness.
type Manifest struct {
	Entries []FileEntry
}

// ByPath returns the manifest's entries indexed by path.
func (m *Manifest) ByPath() map[string]*FileEntry {
	out := make(map[string]*FileEntry, len(m.Entries))
	for i := range m.Entries {
		out[m.Entries[i].Path] = &m.Entries[i]
	}

	return out
}

// ByHash returns the manifest's entries grouped by content hash, preserving
// manifest order within each group. The empty-hash sentinel is never
// excluded here — callers doing rename/copy matching must exclude it
// themselves (spec: "excluded from rename/copy matching").
func (m *Manifest) ByHash() map[string][]*FileEntry {
	out := make(map[string][]*FileEntry)

	for i := range m.Entries {
		e := &m.Entries[i]
		out[e.Hash] = append(out[e.Hash], e)
	}

	return out
}

// Get returns the entry at path, or nil if absent.
func (m *Manifest) Get(path string) *FileEntry {
	for i := range m.Entries {
		if m.Entries[i].Path == path {
			return &m.Entries[i]
		}
	}

	return nil
}

// ValidatePath rejects paths containing tabs or newlines, which would
// corrupt the tab-separated codec.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, "\t\n\r") {
		return fmt.Errorf("manifest: path %q contains a tab or newline", path)
	}

	return nil
}

// IsIgnoreMarker reports whether path is the synthetic ".ignore" sentinel
// entry for an ignored directory (spec §3).
func IsIgnoreMarker(path string) bool {
	return strings.HasSuffix(path, "/.ignore")
}
