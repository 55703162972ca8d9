// Package storagetest provides an in-memory storage.Gateway for tests of code
// built on top of the storage layer.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"sync"

	"github.com/zahid0/audio-app/internal/storage"
)

// File is one fake file. Folder is the id of its parent folder.
type File struct {
	ID     string
	Folder string
	Data   []byte
}

// Fake is a concurrency-safe in-memory backend. Files are listed in insertion
// order. Every method honors ctx and counts its calls.
type Fake struct {
	mu      sync.Mutex
	folders []storage.Entry
	files   []File
	calls   map[string]int

	// ChunkSize bounds StreamMedia chunks; 0 means 4.
	ChunkSize int
	// FailCopyAfter, when > 0, makes DownloadTo fail after that many bytes.
	FailCopyAfter int
	// Errs forces an error from the named operation ("list_files", ...).
	Errs map[string]error
	// ListHook, when set, runs inside ListFiles before the listing is taken.
	ListHook func()
	// ListedHook, when set, runs inside ListFiles after the listing is taken.
	ListedHook func()
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{calls: map[string]int{}, Errs: map[string]error{}}
}

// Name implements storage.Gateway.
func (f *Fake) Name() string { return "fake" }

// AddFolder adds a folder.
func (f *Fake) AddFolder(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, storage.Entry{ID: id, Name: name})
}

// AddFile adds a file whose id is folder/name.
func (f *Fake) AddFile(folder, name string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := path.Join(folder, name)
	f.files = append(f.files, File{ID: id, Folder: folder, Data: data})
	return id
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Errs[op]
}

func (f *Fake) find(op, id string) (File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.ID == id {
			return file, nil
		}
	}
	return File{}, storage.NewError("fake", op, id, storage.ErrNotFound, errors.New("no such file"))
}

// ListFolders implements storage.Gateway.
func (f *Fake) ListFolders(ctx context.Context) ([]storage.Entry, error) {
	if err := f.enter(ctx, "list_folders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.folders), nil
}

// ListFiles implements storage.Gateway.
func (f *Fake) ListFiles(ctx context.Context, folderID string) ([]storage.Entry, error) {
	if err := f.enter(ctx, "list_files"); err != nil {
		return nil, err
	}
	if f.ListHook != nil {
		f.ListHook()
	}
	out := f.entries(folderID)
	if f.ListedHook != nil {
		f.ListedHook()
	}
	return out, nil
}

func (f *Fake) entries(folderID string) []storage.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Entry
	for _, file := range f.files {
		if folderID == "" || file.Folder == folderID {
			out = append(out, storage.Entry{ID: file.ID, Name: path.Base(file.ID)})
		}
	}
	return out
}

// GetFile implements storage.Gateway.
func (f *Fake) GetFile(ctx context.Context, id string) ([]byte, error) {
	if err := f.enter(ctx, "get_file"); err != nil {
		return nil, err
	}
	file, err := f.find("get_file", id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(file.Data), nil
}

// DownloadTo implements storage.Gateway.
func (f *Fake) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	if err := f.enter(ctx, "download_to"); err != nil {
		return err
	}
	file, err := f.find("download_to", id)
	if err != nil {
		return err
	}
	if f.FailCopyAfter > 0 && f.FailCopyAfter < len(file.Data) {
		if _, err := w.Write(file.Data[:f.FailCopyAfter]); err != nil {
			return err
		}
		return storage.NewError("fake", "download_to", id, storage.ErrBackendUnavailable,
			fmt.Errorf("connection reset after %d bytes", f.FailCopyAfter))
	}
	_, err = io.Copy(w, bytes.NewReader(file.Data))
	return err
}

// StreamMedia implements storage.Gateway.
func (f *Fake) StreamMedia(ctx context.Context, id string) (storage.ChunkStream, error) {
	if err := f.enter(ctx, "stream_media"); err != nil {
		return nil, err
	}
	file, err := f.find("stream_media", id)
	if err != nil {
		return nil, err
	}
	size := f.ChunkSize
	if size <= 0 {
		size = 4
	}
	return storage.NewReaderStream(io.NopCloser(bytes.NewReader(file.Data)), size), nil
}

// Search implements storage.Gateway with a case-insensitive name match.
func (f *Fake) Search(ctx context.Context, query string) ([]string, error) {
	if err := f.enter(ctx, "search"); err != nil {
		return nil, err
	}
	return storage.MatchNames(f.entries(""), query), nil
}

var _ storage.Gateway = (*Fake)(nil)
