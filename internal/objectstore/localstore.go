package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore is a filesystem-backed Store rooted at a directory that stands
// in for a remote bucket. It exists so the engine is runnable and testable
// without a live cloud credential, and as the natural driver for a
// same-machine or NFS-mounted "remote."
type LocalStore struct {
	bucketRoot string
	destRoot   string
	logger     *slog.Logger
}

// NewLocalStore creates a LocalStore. bucketRoot is where remote paths are
// rooted; destRoot is the local destination DownloadRel/UploadRel paths are
// relative to.
func NewLocalStore(bucketRoot, destRoot string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &LocalStore{bucketRoot: bucketRoot, destRoot: destRoot, logger: logger}
}

func (s *LocalStore) remotePath(p string) string {
	return filepath.Join(s.bucketRoot, filepath.FromSlash(p))
}

// DownloadAbs implements Store.
func (s *LocalStore) DownloadAbs(_ context.Context, remotePath, localPath string) error {
	return copyFile(s.remotePath(remotePath), localPath)
}

// DownloadRel implements Store.
func (s *LocalStore) DownloadRel(ctx context.Context, remotePath, relativePath string) error {
	return s.DownloadAbs(ctx, remotePath, filepath.Join(s.destRoot, filepath.FromSlash(relativePath)))
}

// UploadAbs implements Store.
func (s *LocalStore) UploadAbs(_ context.Context, localPath, remotePath string) error {
	dst := s.remotePath(remotePath)

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: removing existing %q: %w", dst, err)
	}

	return copyFile(localPath, dst)
}

// UploadRel implements Store.
func (s *LocalStore) UploadRel(ctx context.Context, relativePath, remotePath string) error {
	return s.UploadAbs(ctx, filepath.Join(s.destRoot, filepath.FromSlash(relativePath)), remotePath)
}

// RemoteMove implements Store: remove(dst) then copy(src, dst), leaving src
// in place (spec §9 — "remote-move is defined as copy-then-leave").
func (s *LocalStore) RemoteMove(ctx context.Context, src, dst string) error {
	return s.RemoteCopy(ctx, src, dst)
}

// RemoteCopy implements Store.
func (s *LocalStore) RemoteCopy(_ context.Context, src, dst string) error {
	srcAbs := s.remotePath(src)
	dstAbs := s.remotePath(dst)

	if err := os.Remove(dstAbs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: removing existing %q: %w", dstAbs, err)
	}

	return copyFile(srcAbs, dstAbs)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("objectstore: opening %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("objectstore: creating %q: %w", filepath.Dir(dst), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".objectstore-*.tmp")
	if err != nil {
		return fmt.Errorf("objectstore: creating temp file: %w", err)
	}

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("objectstore: copying %q to %q: %w", src, dst, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("objectstore: syncing %q: %w", dst, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("objectstore: closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("objectstore: renaming into %q: %w", dst, err)
	}

	succeeded = true

	return nil
}
