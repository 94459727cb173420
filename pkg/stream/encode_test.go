package stream

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

func TestContentEncoder_RoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("compress me please "), 40)

	for _, enc := range []string{"gzip", "deflate", "br", "identity"} {
		t.Run(enc, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			e, err := NewContentEncoder(enc)
			if err != nil {
				t.Fatalf("NewContentEncoder(%q) error = %v", enc, err)
			}
			d, err := NewContentDecoder(enc, 0)
			if err != nil {
				t.Fatal(err)
			}

			go feed(ctx, e, plain, 100)
			out := Pipe(ctx, e, d)

			got, err := ReadAll(ctx, out)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("round trip lost data: got %d bytes, want %d", len(got), len(plain))
			}
		})
	}
}

func TestContentEncoder_Unsupported(t *testing.T) {
	if _, err := NewContentEncoder("compress"); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("NewContentEncoder(compress) error = %v, want ErrInvalidValue", err)
	}
}
