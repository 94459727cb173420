package stream

import (
	"context"
	"io"
	"math"
	"sync"
)

// MemoryStream is an in-memory duplex stream. Writers block while more than
// the high-water mark is buffered; readers block until data arrives or the
// stream ends.
type MemoryStream struct {
	mu       sync.Mutex
	chunks   [][]byte
	buffered int
	hwm      int
	written  int64
	ended    bool
	closed   bool
	err      error // delivered to readers once chunks drain; io.EOF on clean end
	signal   chan struct{}
}

// NewMemoryStream creates a stream buffering at most hwm bytes before Write
// blocks. hwm <= 0 selects DefaultHighWaterMark.
func NewMemoryStream(hwm int) *MemoryStream {
	if hwm <= 0 {
		hwm = DefaultHighWaterMark
	}
	return &MemoryStream{hwm: hwm, signal: make(chan struct{})}
}

// broadcast wakes every waiter. Callers hold s.mu.
func (s *MemoryStream) broadcast() {
	close(s.signal)
	s.signal = make(chan struct{})
}

// wait releases s.mu until the stream changes or ctx is done. On
// cancellation the stream is closed and ctx.Err is returned with s.mu
// released.
func (s *MemoryStream) wait(ctx context.Context) error {
	ch := s.signal
	s.mu.Unlock()
	select {
	case <-ch:
		s.mu.Lock()
		return nil
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

// Read returns the next buffered chunk, blocking until one is available.
func (s *MemoryStream) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if len(s.chunks) > 0 {
			chunk := s.chunks[0]
			s.chunks[0] = nil
			s.chunks = s.chunks[1:]
			s.buffered -= len(chunk)
			s.broadcast()
			s.mu.Unlock()
			return chunk, nil
		}
		if s.ended {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// IsReadable reports whether buffered data remains or more may arrive.
func (s *MemoryStream) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && (len(s.chunks) > 0 || !s.ended)
}

// IsWritable reports whether the stream accepts more data.
func (s *MemoryStream) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.ended
}

// Write queues a copy of p, then blocks while the buffer is above the
// high-water mark.
func (s *MemoryStream) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	if err := s.push(p); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	for s.buffered > s.hwm {
		if err := s.wait(ctx); err != nil {
			return len(p), err
		}
		if s.closed {
			s.mu.Unlock()
			return len(p), ErrClosed
		}
	}
	s.mu.Unlock()
	return len(p), nil
}

// End queues p and ends the stream. It never blocks on the high-water mark.
func (s *MemoryStream) End(_ context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.push(p); err != nil {
		return 0, err
	}
	s.ended = true
	s.err = io.EOF
	s.broadcast()
	return len(p), nil
}

// push appends p. Callers hold s.mu.
func (s *MemoryStream) push(p []byte) error {
	if s.closed || s.ended {
		return ErrClosed
	}
	if len(p) > 0 {
		s.chunks = append(s.chunks, append([]byte(nil), p...))
		s.buffered += len(p)
		s.written += int64(len(p))
		s.broadcast()
	}
	return nil
}

// CloseWithError ends the stream so that readers receive err after draining
// buffered chunks. A nil err is a clean end.
func (s *MemoryStream) CloseWithError(err error) error {
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return nil
	}
	s.ended = true
	s.err = err
	s.broadcast()
	return nil
}

// Close discards buffered data and wakes every waiter with ErrClosed.
func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.chunks = nil
	s.buffered = 0
	s.broadcast()
	return nil
}

// Written returns the total bytes accepted by the stream.
func (s *MemoryStream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// MemorySink is a write-then-read buffer. Writes never block; End finalizes
// it and Length reports the total size.
type MemorySink struct {
	*MemoryStream
}

// NewMemorySink creates a sink holding data. The sink is still writable.
func NewMemorySink(data []byte) *MemorySink {
	s := &MemorySink{MemoryStream: NewMemoryStream(math.MaxInt)}
	if len(data) > 0 {
		s.push(data)
	}
	return s
}

// FromBytes returns an ended sink that yields data and then io.EOF.
func FromBytes(data []byte) *MemorySink {
	s := NewMemorySink(data)
	s.End(context.Background(), nil)
	return s
}

// FromString is FromBytes for a string.
func FromString(data string) *MemorySink {
	return FromBytes([]byte(data))
}

// Empty returns an ended sink with no data.
func Empty() *MemorySink {
	return FromBytes(nil)
}

// Length returns the total bytes written to the sink.
func (s *MemorySink) Length() int64 {
	return s.Written()
}
