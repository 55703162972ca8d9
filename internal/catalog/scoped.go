package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/zahid0/audio-app/internal/telemetry"
	"github.com/zahid0/audio-app/pkg/checksum"
)

// ScopedDownload is a temporary local copy of one file. The owner must call
// Cleanup once it has finished reading Path; Cleanup removes the file exactly
// once no matter how many times it is called.
type ScopedDownload struct {
	ID   string
	Path string
	Size int64
	// ETag is the hex SHA-256 of the content.
	ETag string

	remove func(string) error
	once   sync.Once
	err    error
}

// Cleanup deletes the temporary file. Only the first call has any effect; later
// calls return the first call's result.
func (d *ScopedDownload) Cleanup() error {
	d.once.Do(func() {
		telemetry.ScopedDownloadsActive.Dec()
		if err := d.remove(d.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove scoped download", "id", d.ID, "path", d.Path, "error", err)
			d.err = err
		}
	})
	return d.err
}

// Download materializes id into a uniquely named temp file. On any failure the
// partial file is removed before returning.
func (c *Catalog) Download(ctx context.Context, id string) (*ScopedDownload, error) {
	f, err := os.CreateTemp(c.tempDir, "audio-*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	telemetry.ScopedDownloadsActive.Inc()
	d := &ScopedDownload{ID: id, Path: f.Name(), remove: c.remove}

	w := checksum.NewWriter(f)
	err = c.gw.DownloadTo(ctx, id, w)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err != nil {
		d.Cleanup()
		return nil, err
	}

	d.Size = w.Size()
	d.ETag = w.Sum()
	slog.Debug("scoped download ready", "id", id, "path", d.Path, "bytes", d.Size)
	return d, nil
}

// WithDownload materializes id, hands it to fn, and cleans up after fn returns
// or panics.
func (c *Catalog) WithDownload(ctx context.Context, id string, fn func(*ScopedDownload) error) error {
	d, err := c.Download(ctx, id)
	if err != nil {
		return err
	}
	defer d.Cleanup()
	return fn(d)
}
