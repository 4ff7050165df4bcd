package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// ImageStore persists rendered scan-code images.
type ImageStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
