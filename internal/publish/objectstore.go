package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/docsmith/docsync/internal/docgen"
)

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ObjectStore publishes documents to an S3-compatible store. PutObject fully
// replaces the object, so re-publishing the same content is idempotent.
type ObjectStore struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig, logger zerolog.Logger) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object store endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "publish").Logger(),
	}, nil
}

func (s *ObjectStore) Publish(ctx context.Context, doc docgen.Document, target Target) error {
	key := fmt.Sprintf("tenants/%d/projects/%s", target.TenantID, target.ProjectSlug)
	if err := s.put(ctx, key+"/README.md", doc.Markdown, "text/markdown"); err != nil {
		return &PublishError{Target: target, Err: err}
	}
	if doc.HTML != "" {
		if err := s.put(ctx, key+"/index.html", doc.HTML, "text/html"); err != nil {
			return &PublishError{Target: target, Err: err}
		}
	}
	s.logger.Info().Int64("tenant_id", target.TenantID).Str("key", key).Msg("documentation published")
	return nil
}

func (s *ObjectStore) put(ctx context.Context, key, content, contentType string) error {
	reader := strings.NewReader(content)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}
