// Package gcs implements the Google Cloud Storage backend. Folders are the
// bucket's top-level prefixes and a file's id is its object name; media is read
// with ranged readers so only one chunk of an object is held at a time. Supports
// Application Default Credentials, service account JSON keys, and Workload
// Identity Federation for keyless authentication in GKE and GitHub Actions
// environments.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	appconfig "github.com/zahid0/audio-app/internal/config"
	appstorage "github.com/zahid0/audio-app/internal/storage"
)

const (
	backendName = "gcs"
	listPage    = 1000
)

func init() {
	appstorage.Register(backendName, func(cfg *appconfig.Config) (appstorage.Gateway, error) {
		return New(&cfg.Storage.GCS, cfg.Storage.ChunkSize)
	})
}

// Backend implements appstorage.Gateway for a GCS bucket.
type Backend struct {
	client    *storage.Client
	bucket    string
	chunkSize int64
}

// New creates a new Google Cloud Storage backend
//
// Authentication methods:
//   - "default" or empty: Uses Application Default Credentials (ADC)
//     This automatically supports:
//   - GOOGLE_APPLICATION_CREDENTIALS environment variable
//   - GCE/GKE metadata service
//   - Cloud Run/Cloud Functions service account
//   - gcloud auth application-default login
//   - "service_account": Uses a service account key file or JSON
//   - "workload_identity": Uses Workload Identity Federation (GKE, GitHub Actions, etc.)
func New(cfg *appconfig.GCSStorageConfig, chunkSize int64) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption

	// Set custom endpoint for GCS emulators or compatible services
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		} else {
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":
		// ADC covers both; no additional options needed

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return NewWithClient(client, cfg.Bucket, chunkSize), nil
}

// NewWithClient wraps an already configured GCS client.
func NewWithClient(client *storage.Client, bucket string, chunkSize int64) *Backend {
	if chunkSize <= 0 {
		chunkSize = appstorage.DefaultChunkSize
	}
	return &Backend{client: client, bucket: bucket, chunkSize: chunkSize}
}

// Name implements appstorage.Gateway.
func (b *Backend) Name() string { return backendName }

// Close closes the GCS client
func (b *Backend) Close() error {
	return b.client.Close()
}

func classify(op, id string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return appstorage.NewError(backendName, op, id, appstorage.ErrNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return appstorage.NewError(backendName, op, id, appstorage.ErrNotFound, err)
		case http.StatusUnauthorized:
			return appstorage.NewError(backendName, op, id, appstorage.ErrAuthExpired, err)
		}
	}
	return appstorage.Wrap(backendName, op, id, appstorage.ErrBackendUnavailable, err)
}

// page returns a PageFunc over one listing; each call resumes a fresh iterator
// from the page token so no iterator state outlives a page.
func (b *Backend) page(op string, q *storage.Query) appstorage.PageFunc[*storage.ObjectAttrs] {
	return func(ctx context.Context, token string) ([]*storage.ObjectAttrs, string, error) {
		it := b.client.Bucket(b.bucket).Objects(ctx, q)
		var attrs []*storage.ObjectAttrs
		next, err := iterator.NewPager(it, listPage, token).NextPage(&attrs)
		if err != nil {
			return nil, "", classify(op, q.Prefix, err)
		}
		slog.Debug("gcs page fetched", "op", op, "prefix", q.Prefix, "objects", len(attrs), "more", next != "")
		return attrs, next, nil
	}
}

// ListFolders returns the bucket's top-level prefixes.
func (b *Backend) ListFolders(ctx context.Context) ([]appstorage.Entry, error) {
	attrs, err := appstorage.DrainPages(ctx, b.page("list_folders", &storage.Query{Delimiter: "/"}))
	if err != nil {
		return nil, err
	}
	var folders []appstorage.Entry
	for _, a := range attrs {
		if a.Prefix != "" {
			folders = append(folders, appstorage.FolderFromPrefix(a.Prefix))
		}
	}
	return folders, nil
}

func (b *Backend) listObjects(ctx context.Context, op, prefix string) ([]appstorage.ObjectInfo, error) {
	attrs, err := appstorage.DrainPages(ctx, b.page(op, &storage.Query{Prefix: prefix}))
	if err != nil {
		return nil, err
	}
	objs := make([]appstorage.ObjectInfo, 0, len(attrs))
	for _, a := range attrs {
		objs = append(objs, appstorage.ObjectInfo{Key: a.Name, LastModified: a.Updated})
	}
	return objs, nil
}

// ListFiles returns every object under the folder prefix, newest first.
func (b *Backend) ListFiles(ctx context.Context, folderID string) ([]appstorage.Entry, error) {
	objs, err := b.listObjects(ctx, "list_files", appstorage.FolderPrefix(folderID))
	if err != nil {
		return nil, err
	}
	return appstorage.FilesFromObjects(objs), nil
}

// Search matches query against object basenames across the bucket.
func (b *Backend) Search(ctx context.Context, query string) ([]string, error) {
	objs, err := b.listObjects(ctx, "search", "")
	if err != nil {
		return nil, err
	}
	return appstorage.MatchNames(appstorage.FilesFromObjects(objs), query), nil
}

// GetFile reads a whole object.
func (b *Backend) GetFile(ctx context.Context, id string) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(id).NewReader(ctx)
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	return data, nil
}

// DownloadTo copies an object into w one ranged chunk at a time.
func (b *Backend) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	if _, err := appstorage.NewChunkDownloader(b.fetchRange(id), b.chunkSize).CopyTo(ctx, w); err != nil {
		return classify("download_to", id, err)
	}
	return nil
}

// StreamMedia returns a lazily fetched chunk stream of an object.
func (b *Backend) StreamMedia(ctx context.Context, id string) (appstorage.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return appstorage.NewDownloaderStream(ctx, b.fetchRange(id), b.chunkSize), nil
}

func (b *Backend) fetchRange(id string) appstorage.ChunkFetcher {
	return func(ctx context.Context, offset, length int64) ([]byte, int64, error) {
		reader, err := b.client.Bucket(b.bucket).Object(id).NewRangeReader(ctx, offset, length)
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusRequestedRangeNotSatisfiable {
				return nil, offset, nil
			}
			return nil, 0, classify("get_media", id, err)
		}
		defer reader.Close()

		data, err := io.ReadAll(io.LimitReader(reader, length))
		if err != nil {
			return nil, 0, classify("get_media", id, err)
		}
		return data, reader.Attrs.Size, nil
	}
}
