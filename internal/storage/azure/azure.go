// Package azure implements the Azure Blob Storage backend. Folders are the
// container's top-level virtual directories and a file's id is its blob name.
// Media is read with ranged DownloadStream calls so only one chunk of a blob is
// resident at a time.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/storage"
)

const backendName = "azure"

func init() {
	storage.Register(backendName, func(cfg *config.Config) (storage.Gateway, error) {
		return New(&cfg.Storage.Azure, cfg.Storage.ChunkSize)
	})
}

// Backend implements storage.Gateway for an Azure Blob container.
type Backend struct {
	container *container.Client
	chunkSize int64
}

// New creates a new Azure Blob Storage backend authenticated with a shared key.
func New(cfg *config.AzureStorageConfig, chunkSize int64) (*Backend, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return NewWithClient(client, cfg.ContainerName, chunkSize), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client *azblob.Client, containerName string, chunkSize int64) *Backend {
	if chunkSize <= 0 {
		chunkSize = storage.DefaultChunkSize
	}
	return &Backend{
		container: client.ServiceClient().NewContainerClient(containerName),
		chunkSize: chunkSize,
	}
}

// Name implements storage.Gateway.
func (b *Backend) Name() string { return backendName }

func classify(op, id string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.InvalidAuthenticationInfo):
		return storage.NewError(backendName, op, id, storage.ErrAuthExpired, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
	}
	return storage.Wrap(backendName, op, id, storage.ErrBackendUnavailable, err)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func marker(token string) *string {
	if token == "" {
		return nil
	}
	return to.Ptr(token)
}

// ListFolders returns the container's top-level virtual directories.
func (b *Backend) ListFolders(ctx context.Context) ([]storage.Entry, error) {
	return storage.DrainPages(ctx, func(ctx context.Context, token string) ([]storage.Entry, string, error) {
		pager := b.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Marker: marker(token)})
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, "", classify("list_folders", "", err)
		}
		var folders []storage.Entry
		if resp.Segment != nil {
			for _, p := range resp.Segment.BlobPrefixes {
				folders = append(folders, storage.FolderFromPrefix(deref(p.Name)))
			}
		}
		return folders, deref(resp.NextMarker), nil
	})
}

func (b *Backend) listObjects(ctx context.Context, op, prefix string) ([]storage.ObjectInfo, error) {
	return storage.DrainPages(ctx, func(ctx context.Context, token string) ([]storage.ObjectInfo, string, error) {
		opts := &container.ListBlobsFlatOptions{Marker: marker(token)}
		if prefix != "" {
			opts.Prefix = to.Ptr(prefix)
		}
		resp, err := b.container.NewListBlobsFlatPager(opts).NextPage(ctx)
		if err != nil {
			return nil, "", classify(op, prefix, err)
		}
		var objs []storage.ObjectInfo
		if resp.Segment != nil {
			for _, item := range resp.Segment.BlobItems {
				info := storage.ObjectInfo{Key: deref(item.Name)}
				if item.Properties != nil {
					info.LastModified = deref(item.Properties.LastModified)
				}
				objs = append(objs, info)
			}
		}
		slog.Debug("azure page fetched", "op", op, "prefix", prefix, "blobs", len(objs))
		return objs, deref(resp.NextMarker), nil
	})
}

// ListFiles returns every blob under the folder prefix, newest first.
func (b *Backend) ListFiles(ctx context.Context, folderID string) ([]storage.Entry, error) {
	objs, err := b.listObjects(ctx, "list_files", storage.FolderPrefix(folderID))
	if err != nil {
		return nil, err
	}
	return storage.FilesFromObjects(objs), nil
}

// Search matches query against blob basenames across the container.
func (b *Backend) Search(ctx context.Context, query string) ([]string, error) {
	objs, err := b.listObjects(ctx, "search", "")
	if err != nil {
		return nil, err
	}
	return storage.MatchNames(storage.FilesFromObjects(objs), query), nil
}

// GetFile reads a whole blob.
func (b *Backend) GetFile(ctx context.Context, id string) ([]byte, error) {
	resp, err := b.container.NewBlobClient(id).DownloadStream(ctx, nil)
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

// DownloadTo copies a blob into w one ranged chunk at a time.
func (b *Backend) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	if _, err := storage.NewChunkDownloader(b.fetchRange(id), b.chunkSize).CopyTo(ctx, w); err != nil {
		return classify("download_to", id, err)
	}
	return nil
}

// StreamMedia returns a lazily fetched chunk stream of a blob.
func (b *Backend) StreamMedia(ctx context.Context, id string) (storage.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return storage.NewDownloaderStream(ctx, b.fetchRange(id), b.chunkSize), nil
}

func (b *Backend) fetchRange(id string) storage.ChunkFetcher {
	return func(ctx context.Context, offset, length int64) ([]byte, int64, error) {
		resp, err := b.container.NewBlobClient(id).DownloadStream(ctx, &blob.DownloadStreamOptions{
			Range: blob.HTTPRange{Offset: offset, Count: length},
		})
		if err != nil {
			if bloberror.HasCode(err, bloberror.InvalidRange) {
				return nil, offset, nil
			}
			return nil, 0, classify("get_media", id, err)
		}
		defer resp.Body.Close()

		contentLength := int64(-1)
		if resp.ContentLength != nil {
			contentLength = *resp.ContentLength
		}
		data, total, err := storage.ReadRangeBody(resp.Body, deref(resp.ContentRange), contentLength, offset, length)
		if err != nil {
			return nil, 0, classify("get_media", id, err)
		}
		return data, total, nil
	}
}
