// Package blobstore is the object-store capability used by the content store,
// the asset uploader and the usage reporter: list, get, put and delete of named
// objects that are publicly resolvable by URL.
//
// [S3Store] talks to AWS S3 or any S3-compatible provider. Keys handed to and
// returned from a Store are logical keys, the configured prefix is applied
// internally.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// DefaultPageSize is the page size used by callers that walk the whole store.
const DefaultPageSize = 1000

type Object struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// ListPage is one page of a listing. Cursor is empty on the last page.
type ListPage struct {
	Objects []Object
	Cursor  string
}

type Store interface {
	// List returns up to limit objects whose key starts with prefix, continuing
	// from cursor ("" for the first page).
	List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error)

	// Get opens the object for reading, bypassing any intermediate cache.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)

	Delete(ctx context.Context, key string) error

	// URL is the public URL for key.
	URL(key string) string

	// KeyFromURL reports the key behind a public URL of this store. ok is false
	// for URLs that belong elsewhere.
	KeyFromURL(u string) (key string, ok bool)
}
