package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// Encoder compresses a body as it is written. Compressed bytes become
// readable as soon as the compressor emits them.
type Encoder struct {
	*MemoryStream

	mu      sync.Mutex
	pending bytes.Buffer
	w       io.WriteCloser
}

// NewContentEncoder returns a compressing transform for a Content-Encoding
// value: gzip, x-gzip, deflate (zlib framing) or br. Identity passes
// bytes through unchanged.
func NewContentEncoder(encoding string) (DuplexStream, error) {
	e := &Encoder{MemoryStream: NewMemoryStream(0)}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		e.w = gzip.NewWriter(&e.pending)
	case "deflate":
		e.w = zlib.NewWriter(&e.pending)
	case "br":
		e.w = brotli.NewWriter(&e.pending)
	case "", "identity":
		return NewMemoryStream(0), nil
	default:
		return nil, errors.NewInvalidValueError(fmt.Sprintf("unsupported content encoding %q", encoding))
	}
	return e, nil
}

// Write compresses p and forwards any output produced so far.
func (e *Encoder) Write(ctx context.Context, p []byte) (int, error) {
	out, err := e.compress(p, false)
	if err != nil {
		e.MemoryStream.CloseWithError(err)
		return 0, err
	}
	if len(out) > 0 {
		if _, err := e.MemoryStream.Write(ctx, out); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// End compresses p, flushes the compressor and ends the output.
func (e *Encoder) End(ctx context.Context, p []byte) (int, error) {
	out, err := e.compress(p, true)
	if err != nil {
		e.MemoryStream.CloseWithError(err)
		return 0, err
	}
	if _, err := e.MemoryStream.End(ctx, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (e *Encoder) compress(p []byte, final bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.MemoryStream.IsWritable() {
		return nil, ErrClosed
	}
	if len(p) > 0 {
		if _, err := e.w.Write(p); err != nil {
			return nil, errors.NewIOError("compressing body", err)
		}
	}
	if final {
		if err := e.w.Close(); err != nil {
			return nil, errors.NewIOError("compressing body", err)
		}
	}
	out := append([]byte(nil), e.pending.Bytes()...)
	e.pending.Reset()
	return out, nil
}
