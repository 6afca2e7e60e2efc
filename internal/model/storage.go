package model

import (
	"context"
	"io"
)

// Object is a blob written to or read from object storage.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Storage interface {
	Upload(ctx context.Context, obj Object) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
