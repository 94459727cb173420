package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMemoryStream_WriteRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStream(0)

	if _, err := s.Write(ctx, []byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.End(ctx, []byte("world")); err != nil {
		t.Fatal(err)
	}
	if s.IsWritable() {
		t.Error("IsWritable() = true after End")
	}

	got, err := ReadAll(ctx, s)
	if err != nil || string(got) != "hello world" {
		t.Errorf("ReadAll() = %q, %v", got, err)
	}
	if s.IsReadable() {
		t.Error("IsReadable() = true after draining")
	}
	if _, err := s.Read(ctx); err != io.EOF {
		t.Errorf("Read() after end error = %v, want io.EOF", err)
	}
}

func TestMemoryStream_WriteCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStream(0)
	p := []byte("abc")
	s.End(ctx, p)
	p[0] = 'X'
	chunk, _ := s.Read(ctx)
	if string(chunk) != "abc" {
		t.Errorf("Read() = %q, want abc", chunk)
	}
}

func TestMemoryStream_ReadBlocksUntilWrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := NewMemoryStream(0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.End(ctx, []byte("late"))
	}()

	chunk, err := s.Read(ctx)
	if err != nil || string(chunk) != "late" {
		t.Errorf("Read() = %q, %v", chunk, err)
	}
}

func TestMemoryStream_Backpressure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := NewMemoryStream(4)

	done := make(chan error, 1)
	go func() {
		_, err := s.Write(ctx, []byte("0123456789"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Write returned while above the high-water mark")
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := s.Read(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("Write() error = %v", err)
	}
}

func TestMemoryStream_CancelClosesStream(t *testing.T) {
	s := NewMemoryStream(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
	if s.IsReadable() || s.IsWritable() {
		t.Error("stream still open after cancellation")
	}
	if _, err := s.Write(context.Background(), []byte("x")); err != ErrClosed {
		t.Errorf("Write() error = %v, want ErrClosed", err)
	}
}

func TestMemoryStream_CloseWithError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStream(0)
	boom := errors.New("boom")
	s.Write(ctx, []byte("partial"))
	s.CloseWithError(boom)

	chunk, err := s.Read(ctx)
	if err != nil || string(chunk) != "partial" {
		t.Fatalf("Read() = %q, %v", chunk, err)
	}
	if _, err := s.Read(ctx); err != boom {
		t.Errorf("Read() error = %v, want boom", err)
	}
}

func TestMemoryStream_CloseDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStream(0)
	s.Write(ctx, []byte("data"))
	s.Close()
	if _, err := s.Read(ctx); err != ErrClosed {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink([]byte("abc"))
	if _, err := s.Write(ctx, []byte("def")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.End(ctx, []byte("g")); err != nil {
		t.Fatal(err)
	}
	if got := s.Length(); got != 7 {
		t.Errorf("Length() = %d, want 7", got)
	}
	got, err := ReadAll(ctx, s)
	if err != nil || string(got) != "abcdefg" {
		t.Errorf("ReadAll() = %q, %v", got, err)
	}
}

func TestEmpty(t *testing.T) {
	ctx := context.Background()
	s := Empty()
	if s.IsReadable() {
		t.Error("Empty().IsReadable() = true")
	}
	if _, err := s.Read(ctx); err != io.EOF {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestNewReader(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStream(0)
	s.Write(ctx, []byte("one "))
	s.End(ctx, []byte("two"))

	got, err := io.ReadAll(NewReader(ctx, s))
	if err != nil || string(got) != "one two" {
		t.Errorf("io.ReadAll() = %q, %v", got, err)
	}
}
