package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// DefaultMaxChunkLine bounds a chunk size line and each trailer line.
const DefaultMaxChunkLine = 4096

// maxTrailerBytes bounds the trailer section after the last chunk.
const maxTrailerBytes = 64 * 1024

// ChunkedReader de-frames a chunked transfer-encoded body.
//
// Format: hex-size CRLF data CRLF ... 0 CRLF [trailers] CRLF
// Chunk extensions after ';' are ignored.
//
// As with ReaderStream, Close and cancellation do not wait for a Read
// blocked on r.
type ChunkedReader struct {
	gate *readGate
	r    *bufio.Reader

	// Owned by the Read holding the gate.
	remaining int64 // bytes left in the current chunk
	needCRLF  bool

	mu      sync.Mutex
	done    bool
	closed  bool
	err     error
	onClose func() error
}

// NewChunkedReader reads chunks from r. onClose, if set, runs when the
// stream is closed before its end.
func NewChunkedReader(r *bufio.Reader, onClose func() error) *ChunkedReader {
	return &ChunkedReader{gate: newReadGate(), r: r, onClose: onClose}
}

// Read returns the next piece of chunk data.
func (c *ChunkedReader) Read(ctx context.Context) ([]byte, error) {
	if err := c.gate.enter(ctx); err != nil {
		if err != ErrClosed {
			c.Close()
		}
		return nil, err
	}
	defer c.gate.leave()

	if err := c.state(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		c.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	data, err := c.next()
	stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrClosed
	}
	switch {
	case err == io.EOF:
		c.done = true
		return nil, io.EOF
	case err != nil:
		c.err = err
		return nil, err
	}
	return data, nil
}

func (c *ChunkedReader) state() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.err != nil:
		return c.err
	case c.done:
		return io.EOF
	}
	return nil
}

// next reads the next piece of chunk data. It returns io.EOF after the last
// chunk and its trailers.
func (c *ChunkedReader) next() ([]byte, error) {
	if c.remaining == 0 {
		if c.needCRLF {
			if err := c.readCRLF(); err != nil {
				return nil, err
			}
			c.needCRLF = false
		}
		size, err := c.readSize()
		if err != nil {
			return nil, err
		}
		if size == 0 {
			if err := c.skipTrailers(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		c.remaining = size
	}

	n := c.remaining
	if n > DefaultChunkSize {
		n = DefaultChunkSize
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, chunkedError("chunk data truncated", err)
	}
	c.remaining -= n
	if c.remaining == 0 {
		c.needCRLF = true
	}
	return buf, nil
}

func (c *ChunkedReader) readSize() (int64, error) {
	line, err := readBoundedLine(c.r, DefaultMaxChunkLine)
	if err != nil {
		return 0, chunkedError("reading chunk size", err)
	}
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = bytes.TrimSpace(line)
	size, err := parseHexSize(line)
	if err != nil {
		return 0, errors.NewParseErrorAtPos(fmt.Sprintf("chunked encoding: invalid chunk size %q", line), 0)
	}
	return size, nil
}

func (c *ChunkedReader) readCRLF() error {
	b, err := c.r.ReadByte()
	if err != nil {
		return chunkedError("missing CRLF after chunk data", err)
	}
	if b == '\r' {
		b, err = c.r.ReadByte()
		if err != nil {
			return chunkedError("missing CRLF after chunk data", err)
		}
	}
	if b != '\n' {
		return errors.NewParseErrorAtPos(fmt.Sprintf("chunked encoding: expected CRLF after chunk data, got %q", b), 0)
	}
	return nil
}

func (c *ChunkedReader) skipTrailers() error {
	total := 0
	for {
		line, err := readBoundedLine(c.r, DefaultMaxChunkLine)
		if err != nil {
			return chunkedError("reading trailers", err)
		}
		if len(line) == 0 {
			return nil
		}
		total += len(line)
		if total > maxTrailerBytes {
			return errors.NewParseErrorAtPos("chunked encoding: trailers too large", 0)
		}
	}
}

// IsReadable reports whether the final chunk has not been read.
func (c *ChunkedReader) IsReadable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.done && c.err == nil
}

// Close stops reading. If the body was not fully read the onClose hook runs,
// since the connection is no longer positioned at a message boundary.
func (c *ChunkedReader) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	abandoned := !c.done && c.onClose != nil
	c.mu.Unlock()

	c.gate.shut()
	if abandoned {
		return c.onClose()
	}
	return nil
}

// Done reports whether the terminating chunk was consumed.
func (c *ChunkedReader) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func chunkedError(msg string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.NewFramingError("chunked encoding: "+msg, err)
}

// readBoundedLine reads one line without its CRLF or LF. Lines longer than
// max fail.
func readBoundedLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > max+2 {
			return nil, errors.NewParseErrorAtPos(fmt.Sprintf("line exceeds %d bytes", max), 0)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, err
		}
		line = line[:len(line)-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		return line, nil
	}
}

// parseHexSize parses a chunk size. Sizes that overflow int64 are rejected.
func parseHexSize(s []byte) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty hex string")
	}
	if len(s) > 15 {
		return 0, fmt.Errorf("chunk size too large")
	}
	var n int64
	for _, c := range s {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int64(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex byte %q", c)
		}
	}
	return n, nil
}

// ChunkedWriter frames written data as chunks on w. End writes the
// terminating zero-size chunk.
type ChunkedWriter struct {
	mu     sync.Mutex
	w      io.Writer
	ended  bool
	closed bool
}

// NewChunkedWriter returns a writer framing chunks onto w.
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// Write emits p as one chunk. Empty writes emit nothing, since a zero-size
// chunk terminates the body.
func (c *ChunkedWriter) Write(ctx context.Context, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || c.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		c.closed = true
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return c.writeChunk(p)
}

func (c *ChunkedWriter) writeChunk(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+20)
	buf = strconv.AppendInt(buf, int64(len(p)), 16)
	buf = append(buf, '\r', '\n')
	buf = append(buf, p...)
	buf = append(buf, '\r', '\n')
	if _, err := c.w.Write(buf); err != nil {
		return 0, errors.NewIOError("writing chunk", err)
	}
	return len(p), nil
}

// End writes p as a final data chunk, if non-empty, then the last chunk.
func (c *ChunkedWriter) End(ctx context.Context, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || c.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		c.closed = true
		return 0, err
	}
	n := 0
	if len(p) > 0 {
		var err error
		if n, err = c.writeChunk(p); err != nil {
			return 0, err
		}
	}
	c.ended = true
	if _, err := io.WriteString(c.w, "0\r\n\r\n"); err != nil {
		return n, errors.NewIOError("writing last chunk", err)
	}
	return n, nil
}

// IsWritable reports whether End has not been called.
func (c *ChunkedWriter) IsWritable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.ended && !c.closed
}

// Close stops writing without the terminating chunk.
func (c *ChunkedWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
