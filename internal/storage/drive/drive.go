// Package drive implements the Google Drive backend.
//
// Folders are Drive folders; a file's id is its Drive file id. Listings are
// drained page by page with storage.DrainPages and ordered by creation time,
// newest first. Media is fetched with ranged alt=media requests through the
// shared storage.ChunkDownloader, so at most one chunk of an object is held in
// memory regardless of its size.
//
// The backend never refreshes credentials itself. It is handed a *drive.Service
// whose HTTP client carries a token source; see LoadTokenSource for the token
// file collaborator used in production.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/storage"
)

const (
	backendName = "drive"

	folderMimeType = "application/vnd.google-apps.folder"
	listFields     = "nextPageToken, files(id, name)"
	searchFields   = "nextPageToken, files(name)"
	createdDesc    = "createdTime desc"
)

// Scopes are the read-only Drive scopes the backend needs.
var Scopes = []string{
	drivev3.DriveMetadataReadonlyScope,
	drivev3.DriveReadonlyScope,
}

func init() {
	storage.Register(backendName, func(cfg *config.Config) (storage.Gateway, error) {
		return New(context.Background(), &cfg.Storage.Drive, cfg.Storage.ChunkSize)
	})
}

// Backend implements storage.Gateway over the Drive v3 API.
type Backend struct {
	svc       *drivev3.Service
	chunkSize int64
}

// New loads the token file named in cfg and builds a Drive client over it.
func New(ctx context.Context, cfg *config.DriveStorageConfig, chunkSize int64) (*Backend, error) {
	ts, err := LoadTokenSource(ctx, cfg.TokenFile, Scopes...)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}

	slog.Info("drive backend ready", "token_file", cfg.TokenFile, "chunk_size", chunkSize)
	return NewWithService(svc, chunkSize), nil
}

// NewWithService wraps an already authenticated Drive client.
func NewWithService(svc *drivev3.Service, chunkSize int64) *Backend {
	if chunkSize <= 0 {
		chunkSize = storage.DefaultChunkSize
	}
	return &Backend{svc: svc, chunkSize: chunkSize}
}

// Name implements storage.Gateway.
func (b *Backend) Name() string { return backendName }

// classify maps Drive and OAuth errors to storage error kinds.
func classify(op, id string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return storage.NewError(backendName, op, id, storage.ErrAuthExpired, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
		case http.StatusUnauthorized:
			return storage.NewError(backendName, op, id, storage.ErrAuthExpired, err)
		}
	}
	return storage.Wrap(backendName, op, id, storage.ErrBackendUnavailable, err)
}

// quote renders s as a Drive query string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// listPage returns a PageFunc issuing files.list with the given query (empty for
// none) and field mask.
func (b *Backend) listPage(op, q string, fields googleapi.Field, orderBy string) storage.PageFunc[*drivev3.File] {
	return func(ctx context.Context, token string) ([]*drivev3.File, string, error) {
		call := b.svc.Files.List().Fields(fields).Context(ctx)
		if q != "" {
			call = call.Q(q)
		}
		if orderBy != "" {
			call = call.OrderBy(orderBy)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		if err != nil {
			return nil, "", classify(op, "", err)
		}
		slog.Debug("drive page fetched", "op", op, "files", len(res.Files), "more", res.NextPageToken != "")
		return res.Files, res.NextPageToken, nil
	}
}

func toEntries(files []*drivev3.File) []storage.Entry {
	entries := make([]storage.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, storage.Entry{ID: f.Id, Name: f.Name})
	}
	return entries
}

// ListFolders returns every folder in the account.
func (b *Backend) ListFolders(ctx context.Context) ([]storage.Entry, error) {
	files, err := storage.DrainPages(ctx, b.listPage("list_folders", "mimeType="+quote(folderMimeType), listFields, ""))
	if err != nil {
		return nil, err
	}
	return toEntries(files), nil
}

// ListFiles returns the children of folderID, or every file when folderID is
// empty, newest first.
func (b *Backend) ListFiles(ctx context.Context, folderID string) ([]storage.Entry, error) {
	q := ""
	if folderID != "" {
		q = quote(folderID) + " in parents"
	}
	files, err := storage.DrainPages(ctx, b.listPage("list_files", q, listFields, createdDesc))
	if err != nil {
		return nil, err
	}
	return toEntries(files), nil
}

// Search returns the names of non-trashed files whose name contains query.
func (b *Backend) Search(ctx context.Context, query string) ([]string, error) {
	q := "name contains " + quote(query) + " and trashed = false"
	files, err := storage.DrainPages(ctx, b.listPage("search", q, searchFields, ""))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// GetFile downloads a whole file in one request.
func (b *Backend) GetFile(ctx context.Context, id string) ([]byte, error) {
	resp, err := b.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	return data, nil
}

// DownloadTo copies a file into w one ranged chunk at a time.
func (b *Backend) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	d := storage.NewChunkDownloader(b.fetchRange(id), b.chunkSize)
	n, err := d.CopyTo(ctx, w)
	if err != nil {
		return classify("download_to", id, err)
	}
	slog.Debug("drive download complete", "id", id, "bytes", n)
	return nil
}

// StreamMedia returns a stream that requests the next range only once the
// previous one has been consumed.
func (b *Backend) StreamMedia(ctx context.Context, id string) (storage.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return storage.NewDownloaderStream(ctx, b.fetchRange(id), b.chunkSize), nil
}

// fetchRange issues alt=media requests with a Range header. Servers that ignore
// the header and answer 200 are handled by skipping to the offset.
func (b *Backend) fetchRange(id string) storage.ChunkFetcher {
	return func(ctx context.Context, offset, length int64) ([]byte, int64, error) {
		call := b.svc.Files.Get(id).Context(ctx)
		call.Header().Set("Range", storage.RangeHeader(offset, length))

		resp, err := call.Download()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusRequestedRangeNotSatisfiable {
				// Offset is at or past the end: the object is offset bytes long.
				return nil, offset, nil
			}
			return nil, 0, classify("get_media", id, err)
		}
		defer resp.Body.Close()

		contentRange := ""
		if resp.StatusCode == http.StatusPartialContent {
			contentRange = resp.Header.Get("Content-Range")
		}
		data, total, err := storage.ReadRangeBody(resp.Body, contentRange, resp.ContentLength, offset, length)
		if err != nil {
			return nil, 0, classify("get_media", id, err)
		}
		slog.Debug("drive chunk fetched", "id", id, "offset", offset, "bytes", len(data), "total", total)
		return data, total, nil
	}
}
