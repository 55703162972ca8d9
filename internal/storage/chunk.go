package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultChunkSize is the range length requested per remote chunk.
const DefaultChunkSize int64 = 1 << 20

// ChunkFetcher reads up to length bytes of a remote object starting at offset.
// total is the full object size when the remote side reports it, or -1.
// A fetcher may return fewer bytes than requested.
type ChunkFetcher func(ctx context.Context, offset, length int64) (data []byte, total int64, err error)

// DownloadState is the state of a ChunkDownloader.
type DownloadState int

const (
	Downloading DownloadState = iota
	Done
)

func (s DownloadState) String() string {
	if s == Done {
		return "done"
	}
	return "downloading"
}

// ChunkDownloader pulls a remote object range by range into a buffer and hands
// out the bytes appended since the last Drain.
//
// Invariants: 0 <= cursor <= len(buf); bytes before the cursor have been handed
// out exactly once; a fully drained buffer is released before the next fetch, so
// at most one chunk of unread data is resident at a time.
type ChunkDownloader struct {
	fetch     ChunkFetcher
	chunkSize int64

	state  DownloadState
	buf    []byte
	cursor int
	offset int64
	total  int64
}

// NewChunkDownloader returns a downloader in the Downloading state. A
// non-positive chunkSize selects DefaultChunkSize.
func NewChunkDownloader(fetch ChunkFetcher, chunkSize int64) *ChunkDownloader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkDownloader{fetch: fetch, chunkSize: chunkSize, total: -1}
}

// State reports whether more chunks remain to be fetched.
func (d *ChunkDownloader) State() DownloadState { return d.state }

// Offset is the number of bytes fetched so far.
func (d *ChunkDownloader) Offset() int64 { return d.offset }

// Total is the object size reported by the remote side, or -1.
func (d *ChunkDownloader) Total() int64 { return d.total }

// Pending is the number of fetched bytes not yet drained.
func (d *ChunkDownloader) Pending() int { return len(d.buf) - d.cursor }

// Step fetches the next chunk and appends it to the buffer. It is a no-op once
// the downloader is Done.
func (d *ChunkDownloader) Step(ctx context.Context) error {
	if d.state == Done {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.check(); err != nil {
		return err
	}

	if d.cursor == len(d.buf) {
		// Drop the drained buffer rather than reslicing it: slices handed out by
		// Drain must stay valid after the next append.
		d.buf = nil
		d.cursor = 0
	}

	length := d.chunkSize
	if d.total >= 0 && d.total-d.offset < length {
		length = d.total - d.offset
	}

	data, total, err := d.fetch(ctx, d.offset, length)
	if err != nil {
		return err
	}
	if total >= 0 {
		d.total = total
	}

	n := int64(len(data))
	if n > length {
		return NewError("chunk", "step", "", ErrStreamIntegrity,
			fmt.Errorf("fetch returned %d bytes for a %d byte range", n, length))
	}
	d.buf = append(d.buf, data...)
	d.offset += n

	switch {
	case d.total >= 0 && d.offset >= d.total:
		d.state = Done
	case n == 0 && d.total >= 0:
		return NewError("chunk", "step", "", ErrBackendUnavailable,
			fmt.Errorf("empty chunk at offset %d of %d", d.offset, d.total))
	case n == 0:
		d.state = Done
	case d.total < 0 && n < length:
		d.state = Done
	}
	return nil
}

// Drain returns every byte appended since the previous Drain and advances the
// cursor past them. It returns nil when nothing is pending.
func (d *ChunkDownloader) Drain() ([]byte, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.cursor == len(d.buf) {
		return nil, nil
	}
	out := d.buf[d.cursor:len(d.buf):len(d.buf)]
	d.cursor = len(d.buf)
	return out, nil
}

func (d *ChunkDownloader) check() error {
	if d.cursor < 0 || d.cursor > len(d.buf) {
		return NewError("chunk", "cursor", "", ErrStreamIntegrity,
			fmt.Errorf("cursor %d outside buffer of %d bytes", d.cursor, len(d.buf)))
	}
	return nil
}

// Next implements the pull loop shared by streaming and copying: it returns the
// next non-empty run of bytes, stepping the remote side only when everything
// already fetched has been drained. It returns io.EOF once Done and drained.
func (d *ChunkDownloader) Next(ctx context.Context) ([]byte, error) {
	for {
		chunk, err := d.Drain()
		if err != nil {
			return nil, err
		}
		if len(chunk) > 0 {
			return chunk, nil
		}
		if d.state == Done {
			return nil, io.EOF
		}
		if err := d.Step(ctx); err != nil {
			return nil, err
		}
	}
}

// CopyTo writes the whole object into w one chunk at a time.
func (d *ChunkDownloader) CopyTo(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	for {
		chunk, err := d.Next(ctx)
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
}

// downloaderStream adapts a ChunkDownloader to ChunkStream.
type downloaderStream struct {
	ctx    context.Context
	d      *ChunkDownloader
	closed bool
}

// NewDownloaderStream returns a ChunkStream that pulls from fetch under ctx.
func NewDownloaderStream(ctx context.Context, fetch ChunkFetcher, chunkSize int64) ChunkStream {
	return &downloaderStream{ctx: ctx, d: NewChunkDownloader(fetch, chunkSize)}
}

func (s *downloaderStream) Next() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}
	return s.d.Next(s.ctx)
}

func (s *downloaderStream) Close() error {
	s.closed = true
	return nil
}

// ParseContentRange parses a "bytes start-end/total" header. total is -1 when
// the header reports "*".
func ParseContentRange(h string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(h), "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed content range %q", h)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed content range %q", h)
	}

	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, 0, fmt.Errorf("malformed content range total %q: %w", h, err)
		}
	}
	if rng == "*" {
		return 0, -1, total, nil
	}

	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed content range %q", h)
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed content range start %q: %w", h, err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed content range end %q: %w", h, err)
	}
	return start, end, total, nil
}

// ReadRangeBody reads up to length bytes from the body of a ranged GET issued at
// offset. contentRange is the response's Content-Range value; when it is empty
// the server ignored the Range request and sent the whole object
// (contentLength bytes, or -1), so the body is advanced to offset first.
func ReadRangeBody(body io.Reader, contentRange string, contentLength, offset, length int64) ([]byte, int64, error) {
	total := contentLength
	if contentRange != "" {
		start, _, size, err := ParseContentRange(contentRange)
		if err != nil {
			return nil, 0, err
		}
		if start != offset {
			return nil, 0, fmt.Errorf("range starts at %d, requested %d", start, offset)
		}
		total = size
	} else if _, err := io.CopyN(io.Discard, body, offset); err != nil && err != io.EOF {
		return nil, 0, err
	}

	data, err := io.ReadAll(io.LimitReader(body, length))
	if err != nil {
		return nil, 0, err
	}
	return data, total, nil
}

// RangeHeader formats an HTTP Range header for length bytes at offset.
func RangeHeader(offset, length int64) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}
