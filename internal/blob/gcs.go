package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS uses application default credentials, or the JSON in
// GCS_CREDENTIALS_JSON when set.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Driver() string { return DriverGCS }

func (g *GCS) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(key)
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	wc := g.object(key).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := io.Copy(wc, r); err != nil {
		wc.Close()
		return fmt.Errorf("writing gcs object %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing gcs object %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	rc, err := g.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("reading gcs object %s: %w", key, err)
	}
	return rc, rc.Attrs.ContentType, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := g.object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting gcs object %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Move(ctx context.Context, from, to string) error {
	if _, err := g.object(to).CopierFrom(g.object(from)).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("copying gcs object %s: %w", from, err)
	}
	return g.Delete(ctx, from)
}
