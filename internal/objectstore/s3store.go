package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store is a Store backed by an S3-compatible bucket. Remote paths (rooted
// at "/") are used as object keys directly, with the leading slash trimmed.
type S3Store struct {
	client   *s3.Client
	bucket   string
	destRoot string
	logger   *slog.Logger
}

// NewS3Store wraps an already-configured s3.Client. destRoot is the local
// destination DownloadRel/UploadRel paths are relative to.
func NewS3Store(client *s3.Client, bucket, destRoot string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &S3Store{client: client, bucket: bucket, destRoot: destRoot, logger: logger}
}

func objectKey(remotePath string) string {
	return strings.TrimPrefix(remotePath, "/")
}

// DownloadAbs implements Store.
func (s *S3Store) DownloadAbs(ctx context.Context, remotePath, localPath string) error {
	key := objectKey(remotePath)

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("objectstore: getting object %q: %w", key, os.ErrNotExist)
		}

		return fmt.Errorf("objectstore: getting object %q: %w", key, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("objectstore: creating %q: %w", filepath.Dir(localPath), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".objectstore-*.tmp")
	if err != nil {
		return fmt.Errorf("objectstore: creating temp file: %w", err)
	}

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("objectstore: writing %q: %w", localPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("objectstore: closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return fmt.Errorf("objectstore: renaming into %q: %w", localPath, err)
	}

	succeeded = true
	s.logger.Debug("objectstore: downloaded", "key", key, "local", localPath)

	return nil
}

// DownloadRel implements Store.
func (s *S3Store) DownloadRel(ctx context.Context, remotePath, relativePath string) error {
	return s.DownloadAbs(ctx, remotePath, filepath.Join(s.destRoot, filepath.FromSlash(relativePath)))
}

// UploadAbs implements Store: removes remotePath if present, then uploads.
func (s *S3Store) UploadAbs(ctx context.Context, localPath, remotePath string) error {
	key := objectKey(remotePath)

	if err := s.deleteIfPresent(ctx, key); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("objectstore: opening %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("objectstore: stat %q: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("objectstore: putting object %q: %w", key, err)
	}

	s.logger.Debug("objectstore: uploaded", "key", key, "local", localPath)

	return nil
}

// UploadRel implements Store.
func (s *S3Store) UploadRel(ctx context.Context, relativePath, remotePath string) error {
	return s.UploadAbs(ctx, filepath.Join(s.destRoot, filepath.FromSlash(relativePath)), remotePath)
}

// RemoteMove implements Store as copy-then-leave (spec §9): the source
// object is never removed, so a wrong move guess cannot lose data.
func (s *S3Store) RemoteMove(ctx context.Context, src, dst string) error {
	return s.RemoteCopy(ctx, src, dst)
}

// RemoteCopy implements Store.
func (s *S3Store) RemoteCopy(ctx context.Context, src, dst string) error {
	srcKey := objectKey(src)
	dstKey := objectKey(dst)

	if err := s.deleteIfPresent(ctx, dstKey); err != nil {
		return err
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(fmt.Sprintf("%s/%s", s.bucket, srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return fmt.Errorf("objectstore: copying %q to %q: %w", srcKey, dstKey, err)
	}

	return nil
}

func (s *S3Store) deleteIfPresent(ctx context.Context, key string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("objectstore: checking for existing object %q: %w", key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("objectstore: deleting existing object %q: %w", key, err)
	}

	return nil
}
