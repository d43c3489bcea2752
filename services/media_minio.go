package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/creeps/board/config"
)

// MinioStore keeps images in an S3 compatible bucket. Object names are the public id
// plus the sniffed file extension.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

func NewMinioStore(cfg config.AppConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	base := cfg.MinioPublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.MinioEndpoint
	}
	return &MinioStore{client: client, bucket: cfg.MinioBucket, publicBase: strings.TrimRight(base, "/")}, nil
}

func (s *MinioStore) Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	mt := mimetype.Detect(data)
	objectName := publicID + mt.Extension()

	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: mt.String(),
			UserMetadata: map[string]string{
				"public-id": publicID,
			},
		})
	if err != nil {
		return nil, fmt.Errorf("minio upload: %w", err)
	}
	return &UploadResult{
		URL:      fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucket, objectName),
		PublicID: publicID,
	}, nil
}

// Destroy removes every object stored for publicID, whatever its extension.
func (s *MinioStore) Destroy(ctx context.Context, publicID string) error {
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: publicID, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("minio list %s: %w", publicID, obj.Err)
		}
		if obj.Key != publicID && !strings.HasPrefix(obj.Key, publicID+".") {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("minio remove %s: %w", obj.Key, err)
		}
	}
	return nil
}
