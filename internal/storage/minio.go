package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/spec-kit/helpdesk/internal/config"
)

// ObjectStore is the subset of *minio.Client the sink uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioSink stores blobs in a MinIO bucket.
type MinioSink struct {
	client ObjectStore
	bucket string
}

// NewMinioClient connects to the configured endpoint.
func NewMinioClient(cfg config.StorageConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

// NewMinioSink binds client to bucket, creating the bucket when missing.
func NewMinioSink(ctx context.Context, client ObjectStore, bucket string) (*MinioSink, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioSink{client: client, bucket: bucket}, nil
}

// Put implements Sink.
func (s *MinioSink) Put(ctx context.Context, path string, content []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}
