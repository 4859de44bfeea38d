package particlesource

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	internalerrors "github.com/scalfmm-go/fmm/internal/errors"
	"github.com/scalfmm-go/fmm/internal/logger"
)

// GCSBackend reads and writes particle datasets as objects in a Google
// Cloud Storage bucket.
type GCSBackend struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
}

// GCSConfig configures a GCSBackend.
type GCSConfig struct {
	BucketName      string
	CredentialsFile string
}

// NewGCSBackend connects a backend to cfg.BucketName.
func NewGCSBackend(ctx context.Context, cfg *GCSConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("particlesource: gcs client: %w", err)
	}
	bucket := client.Bucket(cfg.BucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("particlesource: gcs bucket %s unreachable: %w", cfg.BucketName, err)
	}

	logger.Info("particlesource: GCS backend bound to bucket %s", cfg.BucketName)
	return &GCSBackend{client: client, bucket: bucket, bucketName: cfg.BucketName}, nil
}

func (g *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, internalerrors.NewSourceUnavailableError("gcs:"+key, err)
		}
		return nil, fmt.Errorf("particlesource: gcs get %s: %w", key, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (g *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	writer := g.bucket.Object(key).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("particlesource: gcs put %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("particlesource: gcs put %s: %w", key, err)
	}
	logger.Debug("particlesource: wrote %s to gcs bucket %s", key, g.bucketName)
	return nil
}

func (g *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("particlesource: gcs list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (g *GCSBackend) Type() string { return "gcs" }

var _ Backend = (*GCSBackend)(nil)
