package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig selects the bucket and how to reach it.
type GCSConfig struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>, e.g. a CDN.
	PublicBaseURL string
	// Credentials is a path to a service account file or the JSON itself.
	Credentials string
	Timeout     time.Duration
}

// GCS is a Store on Google Cloud Storage.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
	timeout time.Duration
}

var _ Store = (*GCS)(nil)

func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: missing bucket name")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := strings.TrimSpace(cfg.Credentials); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GCS{client: client, bucket: cfg.Bucket, baseURL: base, timeout: timeout}, nil
}

func (g *GCS) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: close writer %q: %w", key, err)
	}
	return nil
}

func (g *GCS) PublicURL(key string) string {
	return g.baseURL + "/" + key
}

func (g *GCS) Remove(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var errs []error
	for _, key := range keys {
		err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("storage: delete %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (g *GCS) Close() error { return g.client.Close() }
