package storage

import (
	"context"
	"io"
	"time"

	"github.com/zahid0/audio-app/internal/telemetry"
)

// instrumented records latency, error kinds, and streamed bytes for a Gateway.
type instrumented struct {
	Gateway
}

// Instrument wraps gw with Prometheus instrumentation.
func Instrument(gw Gateway) Gateway {
	if _, ok := gw.(*instrumented); ok {
		return gw
	}
	return &instrumented{Gateway: gw}
}

func (g *instrumented) observe(op string, start time.Time, err error) {
	backend := g.Gateway.Name()
	telemetry.StorageOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.StorageOperationErrorsTotal.WithLabelValues(backend, op, KindLabel(err)).Inc()
	}
}

func (g *instrumented) ListFolders(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	entries, err := g.Gateway.ListFolders(ctx)
	g.observe("list_folders", start, err)
	return entries, err
}

func (g *instrumented) ListFiles(ctx context.Context, folderID string) ([]Entry, error) {
	start := time.Now()
	entries, err := g.Gateway.ListFiles(ctx, folderID)
	g.observe("list_files", start, err)
	return entries, err
}

func (g *instrumented) GetFile(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	data, err := g.Gateway.GetFile(ctx, id)
	g.observe("get_file", start, err)
	return data, err
}

func (g *instrumented) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	start := time.Now()
	err := g.Gateway.DownloadTo(ctx, id, w)
	g.observe("download_to", start, err)
	return err
}

func (g *instrumented) StreamMedia(ctx context.Context, id string) (ChunkStream, error) {
	start := time.Now()
	s, err := g.Gateway.StreamMedia(ctx, id)
	g.observe("stream_media", start, err)
	if err != nil {
		return nil, err
	}
	return &countingStream{ChunkStream: s, g: g}, nil
}

func (g *instrumented) Search(ctx context.Context, query string) ([]string, error) {
	start := time.Now()
	names, err := g.Gateway.Search(ctx, query)
	g.observe("search", start, err)
	return names, err
}

type countingStream struct {
	ChunkStream
	g *instrumented
}

func (s *countingStream) Next() ([]byte, error) {
	chunk, err := s.ChunkStream.Next()
	if len(chunk) > 0 {
		telemetry.StorageStreamBytesTotal.WithLabelValues(s.g.Gateway.Name()).Add(float64(len(chunk)))
	}
	if err != nil && err != io.EOF {
		telemetry.StorageOperationErrorsTotal.WithLabelValues(s.g.Gateway.Name(), "stream_next", KindLabel(err)).Inc()
	}
	return chunk, err
}
