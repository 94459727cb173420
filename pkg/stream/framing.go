package stream

import (
	"context"
	"io"
	"sync"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// readGate admits one Read at a time. The blocking read happens outside
// the stream's state lock, so Close and cancellation never wait on it.
type readGate struct {
	slot   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newReadGate() *readGate {
	return &readGate{slot: make(chan struct{}, 1), closed: make(chan struct{})}
}

// enter takes the read slot. It fails with ErrClosed once the stream is
// shut and with ctx's error if ctx ends while another Read holds the slot.
func (g *readGate) enter(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	default:
	}
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-g.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *readGate) leave() { <-g.slot }

func (g *readGate) shut() { g.once.Do(func() { close(g.closed) }) }

// ReaderStream adapts an io.Reader to a ReadableStream. With a length it
// reads exactly that many bytes; without one it reads until the reader
// reports io.EOF, as for close-delimited bodies.
//
// Close and cancellation take effect while a Read is blocked: the stream
// closes and onClose runs at once. The blocked Read returns when the
// underlying reader does, which onClose can force by closing it.
type ReaderStream struct {
	gate      *readGate
	mu        sync.Mutex
	r         io.Reader
	remaining int64 // -1 when close-delimited
	done      bool
	closed    bool
	err       error
	onClose   func() error
}

// NewLengthStream reads exactly n bytes from r. Ending early is a framing
// error. onClose, if set, runs when the stream is closed before its end.
func NewLengthStream(r io.Reader, n int64, onClose func() error) *ReaderStream {
	return &ReaderStream{gate: newReadGate(), r: r, remaining: n, done: n == 0, onClose: onClose}
}

// NewReaderStream reads r until io.EOF.
func NewReaderStream(r io.Reader, onClose func() error) *ReaderStream {
	return &ReaderStream{gate: newReadGate(), r: r, remaining: -1, onClose: onClose}
}

// Read returns up to DefaultChunkSize bytes.
func (s *ReaderStream) Read(ctx context.Context) ([]byte, error) {
	if err := s.gate.enter(ctx); err != nil {
		if err != ErrClosed {
			s.Close()
		}
		return nil, err
	}
	defer s.gate.leave()

	size, err := s.next()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	buf := make([]byte, size)
	var n int
	for n == 0 && err == nil {
		n, err = s.r.Read(buf)
	}
	stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrClosed
	}
	if n > 0 {
		if s.remaining >= 0 {
			s.remaining -= int64(n)
			s.done = s.remaining == 0
		}
		return buf[:n], nil
	}
	switch {
	case err == io.EOF && s.remaining < 0:
		s.done = true
		return nil, io.EOF
	case err == io.EOF:
		s.err = errors.NewFramingError("body shorter than Content-Length", io.ErrUnexpectedEOF)
	default:
		s.err = errors.NewIOError("reading body", err)
	}
	return nil, s.err
}

// next reports the size of the next read, or why there is none.
func (s *ReaderStream) next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return 0, ErrClosed
	case s.err != nil:
		return 0, s.err
	case s.done:
		return 0, io.EOF
	}
	size := int64(DefaultChunkSize)
	if s.remaining >= 0 && s.remaining < size {
		size = s.remaining
	}
	return size, nil
}

// IsReadable reports whether more data may follow.
func (s *ReaderStream) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.done && s.err == nil
}

// Close stops reading. The onClose hook runs when data was left unread.
func (s *ReaderStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	abandoned := !s.done && s.onClose != nil
	s.mu.Unlock()

	s.gate.shut()
	if abandoned {
		return s.onClose()
	}
	return nil
}

// Done reports whether the whole body was read.
func (s *ReaderStream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// WriterStream adapts an io.Writer to a WritableStream. End does not close
// the writer.
type WriterStream struct {
	mu      sync.Mutex
	w       io.Writer
	written int64
	ended   bool
}

// NewWriterStream writes chunks straight to w.
func NewWriterStream(w io.Writer) *WriterStream {
	return &WriterStream{w: w}
}

// Write writes p to the underlying writer.
func (s *WriterStream) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, p)
}

func (s *WriterStream) write(ctx context.Context, p []byte) (int, error) {
	if s.ended {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		s.ended = true
		return 0, err
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, errors.NewIOError("writing body", err)
	}
	return n, nil
}

// End writes p and marks the stream finished.
func (s *WriterStream) End(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.write(ctx, p)
	s.ended = true
	return n, err
}

// IsWritable reports whether End has not been called.
func (s *WriterStream) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// Close marks the stream finished.
func (s *WriterStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	return nil
}

// Written returns the bytes written so far.
func (s *WriterStream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
