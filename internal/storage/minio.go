package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shenikar/incident_reporting_system/internal/config"
)

// MinioStore хранит вложения в S3-совместимом бакете
type MinioStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
	baseURL  string
}

// NewMinioStore подключается к MinIO и создает бакет, если его нет
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.MinioBucket, err)
		}
	}

	return &MinioStore{
		client:   cli,
		bucket:   cfg.MinioBucket,
		endpoint: cfg.MinioEndpoint,
		useSSL:   cfg.MinioUseSSL,
		baseURL:  cfg.MinioPublicBase,
	}, nil
}

// Save загружает объект и возвращает его публичный URL
func (m *MinioStore) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put object %q: %w", name, err)
	}
	return m.PublicURL(name), nil
}

// Delete удаляет объект по URL, который вернул Save
func (m *MinioStore) Delete(ctx context.Context, url string) error {
	key := path.Base(url)
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %q: %w", key, err)
	}
	return nil
}

func (m *MinioStore) PublicURL(key string) string {
	if m.baseURL != "" {
		return strings.TrimRight(m.baseURL, "/") + "/" + key
	}
	scheme := "http://"
	if m.useSSL {
		scheme = "https://"
	}
	return scheme + m.endpoint + "/" + m.bucket + "/" + key
}
