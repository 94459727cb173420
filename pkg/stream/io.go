package stream

import (
	"bytes"
	"context"
	"io"
)

// ReadAll reads s until io.EOF and returns the concatenated chunks.
func ReadAll(ctx context.Context, s ReadableStream) ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := s.Read(ctx)
		buf.Write(chunk)
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return buf.Bytes(), err
		}
	}
}

// Copy writes every chunk of src to dst until src ends. dst is not ended.
func Copy(ctx context.Context, dst WritableStream, src ReadableStream) (int64, error) {
	var total int64
	for {
		chunk, err := src.Read(ctx)
		if len(chunk) > 0 {
			n, werr := dst.Write(ctx, chunk)
			total += int64(n)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Pump copies src into dst and ends dst. When src fails, dst is ended with
// the same error if it supports CloseWithError, otherwise closed.
func Pump(ctx context.Context, dst WritableStream, src ReadableStream) (int64, error) {
	total, err := Copy(ctx, dst, src)
	if err != nil {
		if f, ok := dst.(Failer); ok {
			f.CloseWithError(err)
		} else {
			dst.Close()
		}
		return total, err
	}
	if _, err := dst.End(ctx, nil); err != nil {
		return total, err
	}
	return total, nil
}

// Pipe feeds src through a transform on a new goroutine and returns the
// transform's readable side. Errors from src or the transform reach the
// reader. Closing the returned stream closes src.
func Pipe(ctx context.Context, src ReadableStream, transform DuplexStream) ReadableStream {
	go func() {
		if _, err := Pump(ctx, transform, src); err != nil {
			src.Close()
		}
	}()
	return &piped{DuplexStream: transform, src: src}
}

type piped struct {
	DuplexStream
	src ReadableStream
}

func (p *piped) Close() error {
	err := p.DuplexStream.Close()
	p.src.Close()
	return err
}

// NewReader returns an io.Reader over s.
func NewReader(ctx context.Context, s ReadableStream) io.Reader {
	return &reader{ctx: ctx, s: s}
}

type reader struct {
	ctx  context.Context
	s    ReadableStream
	rest []byte
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		chunk, err := r.s.Read(r.ctx)
		if err != nil {
			return 0, err
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}
