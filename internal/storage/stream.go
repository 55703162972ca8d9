package storage

import (
	"errors"
	"io"
	"iter"
)

// DefaultBlockSize is the read size used when streaming from an io.Reader.
const DefaultBlockSize = 8192

// Chunks adapts a ChunkStream to a range-over-func sequence. The stream is
// closed when the sequence ends or the consumer stops early.
func Chunks(s ChunkStream) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// chunkReader adapts a ChunkStream to io.ReadCloser.
type chunkReader struct {
	s    ChunkStream
	rest []byte
	err  error
}

// NewChunkReader returns an io.ReadCloser that reads s in order.
func NewChunkReader(s ChunkStream) io.ReadCloser {
	return &chunkReader{s: s}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.rest, r.err = r.s.Next()
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	return r.s.Close()
}

// readerStream yields fixed-size blocks from an io.ReadCloser until EOF.
type readerStream struct {
	r         io.ReadCloser
	blockSize int
	done      bool
	closed    bool
}

// NewReaderStream returns a ChunkStream reading blockSize blocks from r. The
// stream owns r and closes it on Close.
func NewReaderStream(r io.ReadCloser, blockSize int) ChunkStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &readerStream{r: r, blockSize: blockSize}
}

func (s *readerStream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	buf := make([]byte, s.blockSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return buf[:n], nil
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, io.EOF
	default:
		return nil, err
	}
}

func (s *readerStream) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	return s.r.Close()
}
