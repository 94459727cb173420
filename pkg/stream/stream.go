// Package stream provides the body stream abstraction shared by requests and
// responses, and the transfer codecs that sit between a connection and a
// message body: chunked and length-delimited framing, content decoding
// with bounded buffering, and content encoding for outgoing bodies.
//
// Streams are chunk oriented. Read returns the next chunk of bytes and io.EOF
// once the stream has ended. Every blocking operation takes a context;
// cancelling it while the operation waits closes the stream, so abandoned
// bodies never keep buffering.
package stream

import (
	"context"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// DefaultHighWaterMark bounds the bytes a MemoryStream buffers before
// Write blocks.
const DefaultHighWaterMark = 64 * 1024

// DefaultChunkSize is the read size used by streams over an io.Reader.
const DefaultChunkSize = 32 * 1024

// ErrClosed is returned by operations on a closed stream.
var ErrClosed = &errors.Error{Type: errors.ErrorTypeIO, Message: "stream closed"}

// ReadableStream is a finite, non-restartable sequence of byte chunks.
type ReadableStream interface {
	// Read returns the next chunk. It returns io.EOF after the last chunk.
	// A chunk returned with a nil error is never empty.
	Read(ctx context.Context) ([]byte, error)

	// IsReadable reports whether a later Read may return data.
	IsReadable() bool

	// Close releases the stream. Pending and later Reads fail with ErrClosed.
	Close() error
}

// WritableStream accepts byte chunks until End or Close.
type WritableStream interface {
	Write(ctx context.Context, p []byte) (int, error)

	// End writes p, if any, and finalizes the stream.
	End(ctx context.Context, p []byte) (int, error)

	IsWritable() bool
	Close() error
}

// DuplexStream is a transform: bytes written to it are read back out,
// possibly rewritten.
type DuplexStream interface {
	ReadableStream
	WritableStream
}

// Failer is implemented by streams that can end with an error delivered
// to their readers.
type Failer interface {
	CloseWithError(err error) error
}
