package storage

import (
	"context"
	"io"
)

// Storage is one writable blob namespace. Primary and conflictive asset
// photos each get their own instance so the two categories never share a
// directory or key prefix.
type Storage interface {
	Upload(ctx context.Context, name string, data io.Reader) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}
