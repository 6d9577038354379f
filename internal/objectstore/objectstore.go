// Package objectstore defines the external object-store driver capability
// (spec §6): six synchronous operations the core consumes without caring
// which provider backs them. The core never imports a specific provider
// package directly — only this interface.
package objectstore

import "context"

// Store is the six-operation object-store driver capability. Remote paths
// are rooted at "/"; a driver joins them to its configured bucket. Failures
// are reported as errors; callers additionally rely on presence/absence of
// the resulting local or remote object for error detection, per spec §6.
type Store interface {
	// DownloadAbs fetches remotePath to the exact localPath, overwriting it
	// if present.
	DownloadAbs(ctx context.Context, remotePath, localPath string) error

	// DownloadRel fetches remotePath to relativePath, which the driver
	// prefixes with its configured local destination.
	DownloadRel(ctx context.Context, remotePath, relativePath string) error

	// UploadAbs removes remotePath if present, then uploads localPath to it.
	UploadAbs(ctx context.Context, localPath, remotePath string) error

	// UploadRel is UploadAbs with a destination-relative local path.
	UploadRel(ctx context.Context, relativePath, remotePath string) error

	// RemoteMove is modeled as remove(dst) + copy(src, dst): the source is
	// left in place, so a wrong move guess never loses data (spec §9).
	RemoteMove(ctx context.Context, src, dst string) error

	// RemoteCopy removes dst if present, then copies src to dst.
	RemoteCopy(ctx context.Context, src, dst string) error
}
