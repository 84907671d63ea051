package storage

import (
	"context"
	"io"
)

// DefaultPageSize is the listing page size used by Clear.
const DefaultPageSize = 1000

// Page is one listing page. Cursor is empty when no more pages follow.
type Page struct {
	Keys   []string
	Cursor string
}

// PutOptions controls a single object upload.
type PutOptions struct {
	ContentType string
	// Multipart selects a multi-part upload with PartSize parts;
	// otherwise the object is sent in a single request.
	Multipart bool
	PartSize  uint64
}

// ObjectStore is the destination bucket as the synchronizer needs it.
type ObjectStore interface {
	ListPage(ctx context.Context, cursor string) (Page, error)
	DeleteObjects(ctx context.Context, keys []string) error
	PutObject(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error
}
