// internal/storage/minio.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"prediagnostic-back/internal/apperrors"
	"prediagnostic-back/internal/config"
)

// MinIOClient stores original X-ray bytes keyed by generated object names.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(cfg *config.Config) (*MinIOClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Create bucket if it doesn't exist
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOClient{
		client: client,
		bucket: cfg.MinioBucket,
	}, nil
}

// UploadBytes writes a blob under objectName and returns the reference that
// gets persisted on the case record.
func (m *MinIOClient) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", apperrors.ErrStorage, objectName, err)
	}
	return objectName, nil
}

// PresignedURL generates a time-limited download URL for a stored X-ray.
func (m *MinIOClient) PresignedURL(ctx context.Context, objectName string) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", apperrors.ErrStorage, objectName, err)
	}
	return url.String(), nil
}
