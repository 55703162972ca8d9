// Package storage defines the Gateway interface and common types shared by every
// catalog backend.
//
// A backend is one concrete source of folders and files: a local directory tree,
// a Google Drive account, or an object-store bucket. Callers depend only on Gateway;
// the concrete backend is chosen once at startup through the factory and never
// switched at runtime.
//
// New backends are added by implementing Gateway and registering with the factory
// via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Gateway, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"io"
)

// Entry identifies a folder or a file.
//
// ID is backend-native (a Drive file id, an object key, or a path relative to the
// local root) and must be treated as opaque by callers. ID is unique within a
// backend; Name is the human-facing label and is not guaranteed unique.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Gateway is the read-only capability set every backend satisfies.
type Gateway interface {
	// Name returns the registered backend name ("local", "drive", ...).
	Name() string

	// ListFolders returns every folder visible to the backend. Pagination is
	// drained internally.
	ListFolders(ctx context.Context) ([]Entry, error)

	// ListFiles returns files scoped to folderID, or every file when folderID is
	// empty. Remote backends order by creation time descending; the local backend
	// returns filesystem traversal order.
	ListFiles(ctx context.Context, folderID string) ([]Entry, error)

	// GetFile returns the full content of one file. Intended for small payloads
	// such as transcript JSON; use StreamMedia or DownloadTo for media.
	GetFile(ctx context.Context, id string) ([]byte, error)

	// DownloadTo writes the full content of one file into w.
	DownloadTo(ctx context.Context, id string, w io.Writer) error

	// StreamMedia opens a lazily produced, strictly ordered chunk sequence.
	// The returned stream is bound to ctx.
	StreamMedia(ctx context.Context, id string) (ChunkStream, error)

	// Search returns raw names matching a free-text query.
	Search(ctx context.Context, query string) ([]string, error)
}

// ChunkStream yields the bytes of one file in order. Chunk boundaries are
// backend-defined and carry no meaning. Next returns io.EOF once every byte has
// been yielded; every non-nil chunk is non-empty.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}
