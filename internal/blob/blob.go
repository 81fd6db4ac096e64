// Package blob stores binary objects (item images, scanned clearance forms)
// behind a driver-neutral interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/erazemk/zaloga/internal/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// Drivers.
const (
	DriverFS     = "fs"
	DriverMemory = "memory"
	DriverS3     = "s3"
	DriverGCS    = "gcs"
)

// Store is a flat key/value object store.
type Store interface {
	Driver() string
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	// Move renames an object. The destination is overwritten.
	Move(ctx context.Context, from, to string) error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case DriverFS, "":
		return NewFS(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverGCS:
		return NewGCS(ctx, cfg.GCSBucket)
	}
	return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
}

// NewKey returns a fresh key under prefix with extension ext (".jpg").
func NewKey(prefix, ext string) string {
	return path.Join(prefix, uuid.NewString()+ext)
}

// ArchivedKey is where an object lives while its owner is archived.
func ArchivedKey(key string) string {
	return path.Join("archived", key)
}
