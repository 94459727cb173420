package http

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

func gzipString(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func readBody(t *testing.T, ctx context.Context, msg Message) string {
	t.Helper()
	data, err := stream.ReadAll(ctx, msg.Body())
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(data)
}

func TestDecoder_Request(t *testing.T) {
	ctx := testContext(t)
	input := "POST /a%20b?x=1 HTTP/1.1\r\nHost: example.com:8080\r\nContent-Length: 5\r\n\r\nhello"

	req, err := NewDecoder(strings.NewReader(input)).DecodeRequest(ctx)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if req.Method() != "POST" {
		t.Errorf("Method() = %q", req.Method())
	}
	if got := req.RequestTarget(); got != "/a%20b?x=1" {
		t.Errorf("RequestTarget() = %q, want wire target", got)
	}
	u := req.URI()
	if u.Scheme() != "http" || u.Host() != "example.com" || u.Port() != 8080 {
		t.Errorf("URI() = %s, want host and port from the Host header", u)
	}
	if req.HostFromURI() {
		t.Error("wire Host treated as derived")
	}
	if got := req.HeaderLine("Host"); got != "example.com:8080" {
		t.Errorf("Host = %q", got)
	}
	if got := readBody(t, ctx, req); got != "hello" {
		t.Errorf("body = %q, want hello", got)
	}
}

func TestDecoder_Sequence(t *testing.T) {
	ctx := testContext(t)
	input := "\r\nGET /one HTTP/1.1\r\nHost: x\r\n\r\n" +
		"PUT /two HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n2\r\nde\r\n0\r\n\r\n" +
		"POST /three HTTP/1.0\r\nHost: x\r\nContent-Length: 2\r\n\r\nok"

	dec := NewDecoder(strings.NewReader(input))
	want := []struct {
		target, version, body string
	}{
		{"/one", Version11, ""},
		{"/two", Version11, "abcde"},
		{"/three", Version10, "ok"},
	}
	for _, w := range want {
		req, err := dec.DecodeRequest(ctx)
		if err != nil {
			t.Fatalf("DecodeRequest(%s) error = %v", w.target, err)
		}
		if req.RequestTarget() != w.target || req.ProtocolVersion() != w.version {
			t.Errorf("got %s HTTP/%s, want %s HTTP/%s", req.RequestTarget(), req.ProtocolVersion(), w.target, w.version)
		}
		if got := readBody(t, ctx, req); got != w.body {
			t.Errorf("%s body = %q, want %q", w.target, got, w.body)
		}
	}
	if _, err := dec.DecodeRequest(ctx); err != io.EOF {
		t.Errorf("DecodeRequest() at end = %v, want io.EOF", err)
	}
}

func TestDecoder_UnreadBody(t *testing.T) {
	ctx := testContext(t)
	input := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhelloGET / HTTP/1.1\r\nHost: x\r\n\r\n"
	dec := NewDecoder(strings.NewReader(input))
	if _, err := dec.DecodeRequest(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := dec.DecodeRequest(ctx); !errors.Is(err, errors.ErrIO) {
		t.Errorf("DecodeRequest() with unread body error = %v, want ErrIO", err)
	}
}

func TestDecoder_OnAbandon(t *testing.T) {
	ctx := testContext(t)
	abandoned := 0
	dec := NewDecoderWithOptions(
		strings.NewReader("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n0123456789"),
		DecoderOptions{OnAbandon: func() error { abandoned++; return nil }},
	)
	req, err := dec.DecodeRequest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := req.Body().Read(ctx); err != nil {
		t.Fatal(err)
	}
	req.Body().Close()
	if abandoned != 0 {
		t.Errorf("OnAbandon ran %d times for a fully read body", abandoned)
	}

	dec = NewDecoderWithOptions(
		strings.NewReader("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n01234"),
		DecoderOptions{OnAbandon: func() error { abandoned++; return nil }},
	)
	if req, err = dec.DecodeRequest(ctx); err != nil {
		t.Fatal(err)
	}
	req.Body().Close()
	if abandoned != 1 {
		t.Errorf("OnAbandon ran %d times, want 1", abandoned)
	}
}

func TestDecoder_Response(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		method     string
		wantCode   int
		wantReason string
		wantBody   string
	}{
		{"length", "HTTP/1.1 201 Created\r\nContent-Length: 2\r\n\r\nok", "GET", 201, "Created", "ok"},
		{"chunked", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n2;ext=1\r\nhi\r\n0\r\nX-Trailer: t\r\n\r\n", "GET", 200, "OK", "hi"},
		{"close delimited", "HTTP/1.0 200 OK\r\n\r\nall of it", "GET", 200, "OK", "all of it"},
		{"empty reason", "HTTP/1.1 200\r\nContent-Length: 0\r\n\r\n", "GET", 200, "OK", ""},
		{"custom reason", "HTTP/1.1 200 Fine By Me\r\nContent-Length: 0\r\n\r\n", "GET", 200, "Fine By Me", ""},
		{"head", "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n", "HEAD", 200, "OK", ""},
		{"not modified", "HTTP/1.1 304 Not Modified\r\nContent-Length: 5\r\n\r\n", "GET", 304, "Not Modified", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			resp, err := NewDecoder(strings.NewReader(tt.input)).DecodeResponseTo(ctx, tt.method)
			if err != nil {
				t.Fatalf("DecodeResponseTo() error = %v", err)
			}
			if resp.StatusCode() != tt.wantCode || resp.ReasonPhrase() != tt.wantReason {
				t.Errorf("status = %d %q, want %d %q", resp.StatusCode(), resp.ReasonPhrase(), tt.wantCode, tt.wantReason)
			}
			if got := readBody(t, ctx, resp); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestDecoder_HeadResponseThenNext(t *testing.T) {
	ctx := testContext(t)
	input := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nHTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	dec := NewDecoder(strings.NewReader(input))

	if _, err := dec.DecodeResponseTo(ctx, "HEAD"); err != nil {
		t.Fatal(err)
	}
	resp, err := dec.DecodeResponse(ctx)
	if err != nil {
		t.Fatalf("DecodeResponse() after HEAD error = %v", err)
	}
	if resp.StatusCode() != 404 {
		t.Errorf("StatusCode() = %d, want 404", resp.StatusCode())
	}
}

func TestDecoder_Decompress(t *testing.T) {
	ctx := testContext(t)
	plain := strings.Repeat("compressible ", 50)
	gz := gzipString(t, plain)
	input := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " + strconv.Itoa(len(gz)) + "\r\nX-Keep: 1\r\n\r\n" + gz

	resp, err := NewDecoderWithOptions(strings.NewReader(input), DecoderOptions{Decompress: true}).DecodeResponse(ctx)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.HasHeader("Content-Encoding") || resp.HasHeader("Content-Length") {
		t.Errorf("headers after decompress = %v", resp.Headers())
	}
	if resp.HeaderLine("X-Keep") != "1" {
		t.Error("unrelated header dropped")
	}
	if got := readBody(t, ctx, resp); got != plain {
		t.Errorf("decoded body has %d bytes, want %d", len(got), len(plain))
	}

	// Without Decompress the body is passed through untouched.
	resp, err = NewDecoder(strings.NewReader(input)).DecodeResponse(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.HeaderLine("Content-Encoding") != "gzip" {
		t.Error("Content-Encoding removed without Decompress")
	}
	if got := readBody(t, ctx, resp); got != gz {
		t.Error("raw body changed without Decompress")
	}
}

func TestDecoder_MaxBodyLength(t *testing.T) {
	ctx := testContext(t)
	opts := DecoderOptions{MaxBodyLength: 4}

	_, err := NewDecoderWithOptions(
		strings.NewReader("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n0123456789"), opts,
	).DecodeRequest(ctx)
	if !errors.Is(err, errors.ErrMessageTooLarge) {
		t.Errorf("declared length over limit: error = %v, want ErrMessageTooLarge", err)
	}

	req, err := NewDecoderWithOptions(
		strings.NewReader("POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\na\r\n0123456789\r\n0\r\n\r\n"), opts,
	).DecodeRequest(ctx)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if _, err := stream.ReadAll(ctx, req.Body()); !errors.Is(err, errors.ErrMessageTooLarge) {
		t.Errorf("chunked body over limit: error = %v, want ErrMessageTooLarge", err)
	}

	req, err = NewDecoderWithOptions(
		strings.NewReader("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc"), opts,
	).DecodeRequest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := readBody(t, ctx, req); got != "abc" {
		t.Errorf("body within limit = %q", got)
	}
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		opts       DecoderOptions
		wantType   error
		wantStatus int
	}{
		{"malformed start line", "GARBAGE\r\n\r\n", DecoderOptions{}, errors.ErrParse, 400},
		{"truncated head", "GET / HTTP/1.1\r\nHost: x", DecoderOptions{}, errors.ErrParse, 400},
		{"unsupported version", "GET / HTTP/2.0\r\nHost: x\r\n\r\n", DecoderOptions{}, errors.ErrUnsupportedVersion, 505},
		{"multiple hosts", "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n", DecoderOptions{}, errors.ErrInvalidHeader, 400},
		{"invalid host", "GET / HTTP/1.1\r\nHost: a b\r\n\r\n", DecoderOptions{}, errors.ErrInvalidHeader, 400},
		{"invalid content length", "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: abc\r\n\r\n", DecoderOptions{}, errors.ErrParse, 400},
		{"head too large", "GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 100) + "\r\n\r\n", DecoderOptions{MaxHeaderBytes: 64}, errors.ErrMessageTooLarge, 431},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoderWithOptions(strings.NewReader(tt.input), tt.opts).DecodeRequest(testContext(t))
			if !errors.Is(err, tt.wantType) {
				t.Fatalf("DecodeRequest() error = %v, want %v", err, tt.wantType)
			}
			if got := errors.StatusCode(err); got != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestDecoder_EmptyInput(t *testing.T) {
	ctx := testContext(t)
	if _, err := NewDecoder(strings.NewReader("")).DecodeRequest(ctx); err != io.EOF {
		t.Errorf("DecodeRequest() = %v, want io.EOF", err)
	}
	if _, err := NewDecoder(strings.NewReader("\r\n\r\n")).DecodeResponse(ctx); err != io.EOF {
		t.Errorf("DecodeResponse() on blank lines = %v, want io.EOF", err)
	}
}
