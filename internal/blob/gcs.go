package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // optional; application default credentials otherwise
}

// GCS is a Store backed by a Cloud Storage bucket
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

// NewGCS connects to Cloud Storage
func NewGCS(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: empty bucket name")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	logger.Info("Cloud Storage client initialized", slog.String("bucket", cfg.Bucket))
	return &GCS{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		logger: logger,
	}, nil
}

// Upload streams r into the bucket and returns the object's public URL
func (g *GCS) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload of %s: %w", key, err)
	}

	g.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.Int64("size", w.Attrs().Size),
	)
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.name, key), nil
}

// Download copies the object into w
func (g *GCS) Download(ctx context.Context, key string, w io.Writer) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL
func (g *GCS) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	url, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return url, nil
}

// Close releases the storage client
func (g *GCS) Close() error {
	return g.client.Close()
}
