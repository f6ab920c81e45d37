// Package gziputil provides pooled gzip decompression for HTTP request bodies.
package gziputil

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// MaxBodySize caps a decompressed request body so a small compressed
// payload cannot balloon into unbounded memory.
const MaxBodySize = 8 * 1024 * 1024 // 8 MB

// ErrBodyTooLarge is returned when a body decompresses past MaxBodySize.
var ErrBodyTooLarge = errors.New("decompressed body exceeds maximum size")

var readerPool = sync.Pool{
	New: func() any { return new(gzip.Reader) },
}

// Body wraps a gzip-compressed stream in a ReadCloser that enforces
// MaxBodySize and recycles the underlying gzip reader on Close. Returns an
// error immediately when the stream does not start with a gzip header.
func Body(r io.Reader) (io.ReadCloser, error) {
	gr := readerPool.Get().(*gzip.Reader)
	if err := gr.Reset(r); err != nil {
		readerPool.Put(gr)
		return nil, err
	}
	return &body{gr: gr, lr: io.LimitReader(gr, MaxBodySize+1)}, nil
}

type body struct {
	gr     *gzip.Reader
	lr     io.Reader
	read   int64
	closed bool
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.lr.Read(p)
	b.read += int64(n)
	if b.read > MaxBodySize {
		return n, ErrBodyTooLarge
	}
	return n, err
}

func (b *body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.gr.Close()
	readerPool.Put(b.gr)
	return err
}
