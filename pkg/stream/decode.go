package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

type decoderState int

const (
	stateAccumulating decoderState = iota
	stateFinalized
)

// BufferedDecoder is a content-decoding transform. It buffers every inbound
// chunk and decodes the whole body once the input ends, emitting the result
// as a single chunk.
//
// When the buffer exceeds maxLength the output ends immediately and the
// write fails with a MessageTooLarge error (413). A decode failure likewise
// ends the output and fails with MalformedBody (400). In both cases the
// output ends without data and its readers receive that error in place of
// io.EOF, so a truncated body is never mistaken for a complete one.
type BufferedDecoder struct {
	out *MemoryStream

	mu        sync.Mutex
	buf       bytes.Buffer
	maxLength int64
	state     decoderState
	decode    func([]byte) ([]byte, error)
	name      string
}

func newBufferedDecoder(name string, maxLength int64, decode func([]byte) ([]byte, error)) (*BufferedDecoder, error) {
	if maxLength < 0 {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("maxLength must be non-negative, got %d", maxLength))
	}
	return &BufferedDecoder{
		out:       NewMemoryStream(0),
		maxLength: maxLength,
		decode:    decode,
		name:      name,
	}, nil
}

// NewZlibDecoder returns a decoder for gzip, zlib and raw deflate bodies.
// The format is detected from the leading bytes. maxLength 0 means
// unbounded.
func NewZlibDecoder(maxLength int64) (*BufferedDecoder, error) {
	return newBufferedDecoder("zlib", maxLength, func(data []byte) ([]byte, error) {
		r, err := newInflater(data)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, maxLength)
	})
}

// NewBrotliDecoder returns a decoder for brotli bodies.
func NewBrotliDecoder(maxLength int64) (*BufferedDecoder, error) {
	return newBufferedDecoder("brotli", maxLength, func(data []byte) ([]byte, error) {
		return readLimited(brotli.NewReader(bytes.NewReader(data)), maxLength)
	})
}

func newInflater(data []byte) (io.ReadCloser, error) {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return gzip.NewReader(bytes.NewReader(data))
	case len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0:
		return zlib.NewReader(bytes.NewReader(data))
	default:
		return flate.NewReader(bytes.NewReader(data)), nil
	}
}

// readLimited reads r fully. A decoded body larger than limit is rejected
// the same way an oversized input is.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit == 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.NewMessageTooLargeError(limit)
	}
	return data, nil
}

// Write buffers p.
func (d *BufferedDecoder) Write(ctx context.Context, p []byte) (int, error) {
	return d.write(ctx, p, false)
}

// End buffers p and decodes the accumulated body.
func (d *BufferedDecoder) End(ctx context.Context, p []byte) (int, error) {
	return d.write(ctx, p, true)
}

func (d *BufferedDecoder) write(ctx context.Context, p []byte, final bool) (int, error) {
	d.mu.Lock()
	if d.state == stateFinalized {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	d.buf.Write(p)
	if d.maxLength > 0 && int64(d.buf.Len()) > d.maxLength {
		d.state = stateFinalized
		d.buf.Reset()
		d.mu.Unlock()
		return 0, d.fail(errors.NewMessageTooLargeError(d.maxLength))
	}
	if !final {
		d.mu.Unlock()
		return len(p), nil
	}
	d.state = stateFinalized
	data := d.buf.Bytes()
	d.buf = bytes.Buffer{}
	d.mu.Unlock()

	if len(data) == 0 {
		d.out.End(ctx, nil)
		return len(p), nil
	}
	decoded, err := d.decode(data)
	if err != nil {
		if !errors.Is(err, errors.ErrMessageTooLarge) {
			err = errors.NewMalformedBodyError(fmt.Sprintf("could not decode %s body", d.name), err)
		}
		return len(p), d.fail(err)
	}
	if _, err := d.out.End(ctx, decoded); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// fail ends the output with err and returns err.
func (d *BufferedDecoder) fail(err error) error {
	d.out.CloseWithError(err)
	return err
}

// CloseWithError abandons decoding and ends the output with err.
func (d *BufferedDecoder) CloseWithError(err error) error {
	d.mu.Lock()
	d.state = stateFinalized
	d.buf.Reset()
	d.mu.Unlock()
	return d.out.CloseWithError(err)
}

// IsWritable reports whether the decoder is still accumulating.
func (d *BufferedDecoder) IsWritable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateAccumulating
}

// Read returns the decoded body once the input has ended.
func (d *BufferedDecoder) Read(ctx context.Context) ([]byte, error) {
	return d.out.Read(ctx)
}

// IsReadable reports whether decoded output may still be read.
func (d *BufferedDecoder) IsReadable() bool {
	return d.out.IsReadable()
}

// Close discards buffered input and closes the output.
func (d *BufferedDecoder) Close() error {
	d.mu.Lock()
	d.state = stateFinalized
	d.buf.Reset()
	d.mu.Unlock()
	return d.out.Close()
}

// LimitStream passes chunks through unchanged and fails with
// MessageTooLarge once more than maxLength bytes have been written.
type LimitStream struct {
	*MemoryStream
	maxLength int64
}

// NewLimitStream returns a pass-through transform bounded by maxLength.
// maxLength 0 means unbounded.
func NewLimitStream(maxLength int64) (*LimitStream, error) {
	if maxLength < 0 {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("maxLength must be non-negative, got %d", maxLength))
	}
	return &LimitStream{MemoryStream: NewMemoryStream(0), maxLength: maxLength}, nil
}

func (l *LimitStream) over(p []byte) bool {
	return l.maxLength > 0 && l.Written()+int64(len(p)) > l.maxLength
}

// Write forwards p unless it would exceed the limit.
func (l *LimitStream) Write(ctx context.Context, p []byte) (int, error) {
	if l.over(p) {
		err := errors.NewMessageTooLargeError(l.maxLength)
		l.CloseWithError(err)
		return 0, err
	}
	return l.MemoryStream.Write(ctx, p)
}

// End forwards p and ends the stream unless p would exceed the limit.
func (l *LimitStream) End(ctx context.Context, p []byte) (int, error) {
	if l.over(p) {
		err := errors.NewMessageTooLargeError(l.maxLength)
		l.CloseWithError(err)
		return 0, err
	}
	return l.MemoryStream.End(ctx, p)
}

// NewContentDecoder returns the transform for a Content-Encoding value.
// Unknown and identity encodings pass through, still bounded by maxLength.
func NewContentDecoder(encoding string, maxLength int64) (DuplexStream, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip", "deflate":
		return NewZlibDecoder(maxLength)
	case "br":
		return NewBrotliDecoder(maxLength)
	default:
		return NewLimitStream(maxLength)
	}
}
