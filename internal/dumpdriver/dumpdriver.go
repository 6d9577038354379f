// Package dumpdriver defines the external database dump/restore capability
// (spec §6): two opaque operations the blob-sync core consumes without
// caring which database engine backs them.
package dumpdriver

import "context"

// Driver is the dump/restore capability. Dump must be byte-deterministic
// for identical database state — no embedded timestamps — so that two
// machines holding the same data produce an identical blob hash.
type Driver interface {
	// Dump writes a dump file at path, overwriting it if present.
	Dump(ctx context.Context, path string) error

	// Import drops the target database and re-creates it from the dump at
	// path.
	Import(ctx context.Context, path string) error
}
