// Package catalog is the caller-facing facade over a storage.Gateway. It owns the
// process-wide derived state: the filtered folder snapshot and the NameIndex used
// to resolve transcripts by title. Both are rebuilt off to the side and swapped
// in atomically, so readers never observe a partially built mapping.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/zahid0/audio-app/internal/storage"
)

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search query must not be empty")

// Options configure a Catalog.
type Options struct {
	// FoldersToShow restricts visible folders by name; empty shows all.
	FoldersToShow []string
	// TempDir holds scoped downloads; empty means os.TempDir().
	TempDir string
}

// Catalog serves folders, files, transcripts and media from one backend.
type Catalog struct {
	gw      storage.Gateway
	filter  FolderFilter
	tempDir string
	index   *NameIndex

	folders atomic.Pointer[folderSnapshot]
	group   singleflight.Group

	remove func(string) error
}

// New returns a Catalog over gw. Nothing is listed until the first call that
// needs it, or Warm.
func New(gw storage.Gateway, opts Options) *Catalog {
	return &Catalog{
		gw:      gw,
		filter:  NewFolderFilter(opts.FoldersToShow),
		tempDir: opts.TempDir,
		index:   NewNameIndex(gw),
		remove:  os.Remove,
	}
}

// Backend returns the name of the underlying backend.
func (c *Catalog) Backend() string { return c.gw.Name() }

// Index exposes the NameIndex.
func (c *Catalog) Index() *NameIndex { return c.index }

// Warm loads the folder snapshot and the NameIndex.
func (c *Catalog) Warm(ctx context.Context) error {
	if _, err := c.RefreshFolders(ctx); err != nil {
		return fmt.Errorf("failed to load folders: %w", err)
	}
	if err := c.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to build name index: %w", err)
	}
	return nil
}

// Loaded reports whether a folder snapshot is available.
func (c *Catalog) Loaded() bool { return c.folders.Load() != nil }

// RefreshFolders lists folders, applies the filter, and swaps in the result.
// Concurrent refreshes share one listing.
func (c *Catalog) RefreshFolders(ctx context.Context) ([]storage.Entry, error) {
	ch := c.group.DoChan("folders", func() (any, error) {
		folders, err := c.gw.ListFolders(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		snap := newFolderSnapshot(c.filter.Apply(folders))
		c.folders.Store(snap)
		slog.Info("folders refreshed", "backend", c.gw.Name(), "listed", len(folders), "visible", len(snap.list))
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*folderSnapshot).list, nil
	}
}

// Folders returns the current snapshot, or nil before the first refresh.
func (c *Catalog) Folders() []storage.Entry {
	if snap := c.folders.Load(); snap != nil {
		return snap.list
	}
	return nil
}

// FolderName returns the name of a visible folder.
func (c *Catalog) FolderName(id string) (string, bool) {
	snap := c.folders.Load()
	if snap == nil {
		return "", false
	}
	name, ok := snap.byID[id]
	return name, ok
}

// Files lists a visible folder. An id missing from the snapshot triggers one
// refresh; if it is still missing the folder is storage.ErrNotFound.
func (c *Catalog) Files(ctx context.Context, folderID string) ([]storage.Entry, error) {
	if _, ok := c.FolderName(folderID); !ok {
		if _, err := c.RefreshFolders(ctx); err != nil {
			return nil, err
		}
		if _, ok := c.FolderName(folderID); !ok {
			return nil, storage.NewError(c.gw.Name(), "list_files", folderID, storage.ErrNotFound,
				errors.New("folder not found"))
		}
	}
	return c.gw.ListFiles(ctx, folderID)
}

// Search returns the raw names matching query.
func (c *Catalog) Search(ctx context.Context, query string) ([]string, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return c.gw.Search(ctx, query)
}

// Transcript resolves title through the NameIndex and returns the joined
// segment text.
func (c *Catalog) Transcript(ctx context.Context, title string) (string, error) {
	id, err := c.index.Lookup(ctx, title+TranscriptSuffix)
	if err != nil {
		return "", err
	}
	data, err := c.gw.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	return JoinTranscript(data)
}

// Stream opens a chunk stream of one file. The caller must Close it.
func (c *Catalog) Stream(ctx context.Context, id string) (storage.ChunkStream, error) {
	return c.gw.StreamMedia(ctx, id)
}
