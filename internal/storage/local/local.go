// Package local implements the local filesystem backend. Folders are the immediate
// subdirectories of the root; a file's id is its slash-separated path relative to
// the root. This backend suits development and single-node deployments where the
// recordings sit on a mounted volume.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/storage"
)

const backendName = "local"

func init() {
	storage.Register(backendName, func(cfg *config.Config) (storage.Gateway, error) {
		return New(&cfg.Storage.Local)
	})
}

// Backend implements storage.Gateway over a directory tree.
type Backend struct {
	root      string
	blockSize int
}

// New creates a local backend rooted at cfg.BasePath, creating the directory if
// it does not exist yet.
func New(cfg *config.LocalStorageConfig) (*Backend, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is empty")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Backend{root: cfg.BasePath, blockSize: storage.DefaultBlockSize}, nil
}

// Name implements storage.Gateway.
func (b *Backend) Name() string { return backendName }

// resolve maps an id to a path under the root. Ids that would escape the root
// are reported as not found.
func (b *Backend) resolve(op, id string) (string, error) {
	rel := filepath.FromSlash(id)
	if !filepath.IsLocal(rel) {
		return "", storage.NewError(backendName, op, id, storage.ErrNotFound,
			fmt.Errorf("id is not a path inside the storage root"))
	}
	return filepath.Join(b.root, rel), nil
}

// classify maps filesystem errors to storage error kinds.
func classify(op, id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
	}
	return storage.Wrap(backendName, op, id, storage.ErrBackendUnavailable, err)
}

// ListFolders returns the directories directly under the root, in name order.
func (b *Backend) ListFolders(ctx context.Context) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, classify("list_folders", "", err)
	}

	folders := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		if !b.isDir(e) {
			continue
		}
		folders = append(folders, storage.Entry{ID: e.Name(), Name: e.Name()})
	}
	return folders, nil
}

// isDir reports whether e is a directory, following symlinks.
func (b *Backend) isDir(e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(b.root, e.Name()))
	return err == nil && info.IsDir()
}

// ListFiles walks the root, or the subtree named by folderID, and returns every
// file in traversal order. A folder reached through a symlink is walked like any
// other, and symlinks to regular files count as files. Below the top level,
// symlinked directories are not entered.
func (b *Backend) ListFiles(ctx context.Context, folderID string) ([]storage.Entry, error) {
	dir := b.root
	if folderID != "" {
		var err error
		if dir, err = b.resolve("list_files", folderID); err != nil {
			return nil, err
		}
	}

	var files []storage.Entry
	if err := b.walk(ctx, dir, folderID, folderID == "", &files); err != nil {
		return nil, classify("list_files", folderID, err)
	}
	slog.Debug("local listing walked", "folder", folderID, "files", len(files))
	return files, nil
}

// walk appends the files under dir to files, with ids of the form prefix/rel.
// When followTop is set, symlinked directories directly under dir are walked too,
// so the unscoped listing covers every folder ListFolders reports.
func (b *Backend) walk(ctx context.Context, dir, prefix string, followTop bool, files *[]storage.Entry) error {
	start, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(start, p)
		if err != nil {
			return err
		}
		id := path.Join(prefix, filepath.ToSlash(rel))

		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil {
				// Dangling link.
				return nil
			}
			if info.IsDir() {
				if followTop && filepath.Dir(p) == start {
					return b.walk(ctx, p, id, false, files)
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		*files = append(*files, storage.Entry{ID: id, Name: d.Name()})
		return nil
	})
}

// GetFile reads a whole file.
func (b *Backend) GetFile(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve("get_file", id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	return data, nil
}

// DownloadTo reads the whole file and writes it to w in one call.
func (b *Backend) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	data, err := b.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return storage.Wrap(backendName, "download_to", id, storage.ErrBackendUnavailable, err)
	}
	return nil
}

// StreamMedia opens the file and yields fixed-size blocks until EOF. The file
// must exist when StreamMedia is called.
func (b *Backend) StreamMedia(ctx context.Context, id string) (storage.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve("stream_media", id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, classify("stream_media", id, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, storage.NewError(backendName, "stream_media", id, storage.ErrNotFound,
			fmt.Errorf("%s is a directory", id))
	}
	return &fileStream{ctx: ctx, id: id, ChunkStream: storage.NewReaderStream(f, b.blockSize)}, nil
}

// fileStream stops yielding once its context is done.
type fileStream struct {
	storage.ChunkStream
	ctx context.Context
	id  string
}

func (s *fileStream) Next() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	chunk, err := s.ChunkStream.Next()
	if err != nil && err != io.EOF {
		return nil, classify("stream_media", s.id, err)
	}
	return chunk, err
}

// Search returns the names of files whose basename contains query,
// case-insensitively. This is a plain substring match over the full tree, not
// an index.
func (b *Backend) Search(ctx context.Context, query string) ([]string, error) {
	files, err := b.ListFiles(ctx, "")
	if err != nil {
		return nil, err
	}
	return storage.MatchNames(files, query), nil
}
