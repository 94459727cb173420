package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/shapestone/shape-httpmsg/internal/fastparser"
	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
	"github.com/shapestone/shape-httpmsg/pkg/uri"
)

// DefaultMaxHeaderBytes bounds a message head when DecoderOptions leaves
// MaxHeaderBytes unset.
const DefaultMaxHeaderBytes = 64 << 10

// DecoderOptions configures a Decoder. The zero value is usable.
type DecoderOptions struct {
	// MaxHeaderBytes bounds the start line and headers together.
	// Zero selects DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// MaxBodyLength bounds each body after content decoding. Zero is
	// unbounded.
	MaxBodyLength int64

	// Decompress replaces bodies sent with a Content-Encoding by their
	// decoded content and drops the Content-Encoding and Content-Length
	// headers.
	Decompress bool

	// OnAbandon runs when a body is closed before it was fully read. The
	// stream is then no longer at a message boundary; connection owners use
	// it to close the connection.
	OnAbandon func() error
}

// Decoder reads HTTP messages from an input stream in HTTP/1.x wire format.
// Heads are read eagerly; bodies are returned as streams reading from the
// same input, so each body must be read to its end before the next Decode.
// A single Decoder is not safe for concurrent use.
type Decoder struct {
	r    *bufio.Reader
	opts DecoderOptions
	last interface{ Done() bool }
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithOptions(r, DecoderOptions{})
}

// NewDecoderWithOptions returns a decoder reading from r with opts.
func NewDecoderWithOptions(r io.Reader, opts DecoderOptions) *Decoder {
	if opts.MaxHeaderBytes <= 0 {
		opts.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br, opts: opts}
}

// DecodeRequest reads the next request head and attaches its body stream.
// io.EOF means the input ended cleanly before a new message.
func (dec *Decoder) DecodeRequest(ctx context.Context) (*Request, error) {
	head, err := dec.readHead()
	if err != nil {
		return nil, err
	}
	fr, err := fastparser.NewParser(head).ParseRequestHead()
	if err != nil {
		return nil, err
	}
	version, err := wireVersion(fr.Version)
	if err != nil {
		return nil, err
	}
	headers := convertHeaders(fr.Headers)

	hosts := headers.Values("Host")
	if len(hosts) > 1 {
		return nil, errors.NewInvalidHeaderError("multiple Host headers")
	}
	for _, h := range hosts {
		if !httpguts.ValidHostHeader(h) {
			return nil, errors.NewInvalidHeaderError("invalid Host header " + h)
		}
	}

	u, err := requestURI(fr.Target, headers.Get("Host"))
	if err != nil {
		return nil, err
	}

	body, headers, err := dec.requestBody(ctx, headers)
	if err != nil {
		return nil, err
	}

	req, err := NewRequestWithURI(fr.Method, u, headers, body)
	if err != nil {
		body.Close()
		return nil, err
	}
	if req, err = req.WithRequestTarget(fr.Target); err != nil {
		body.Close()
		return nil, err
	}
	if req, err = req.WithProtocolVersion(version); err != nil {
		body.Close()
		return nil, err
	}
	return req, nil
}

// DecodeResponse reads the next response head and attaches its body stream.
func (dec *Decoder) DecodeResponse(ctx context.Context) (*Response, error) {
	return dec.DecodeResponseTo(ctx, "GET")
}

// DecodeResponseTo reads a response to a request with the given method.
// Responses to HEAD carry no body whatever their headers say.
func (dec *Decoder) DecodeResponseTo(ctx context.Context, method string) (*Response, error) {
	head, err := dec.readHead()
	if err != nil {
		return nil, err
	}
	fr, err := fastparser.NewParser(head).ParseResponseHead()
	if err != nil {
		return nil, err
	}
	version, err := wireVersion(fr.Version)
	if err != nil {
		return nil, err
	}
	headers := convertHeaders(fr.Headers)

	var body stream.ReadableStream
	if strings.EqualFold(method, "HEAD") || !bodyAllowed(fr.StatusCode) {
		body = stream.Empty()
	} else if body, headers, err = dec.frameBody(ctx, headers, true); err != nil {
		return nil, err
	}

	resp, err := NewResponse(fr.StatusCode, headers, body)
	if err != nil {
		body.Close()
		return nil, err
	}
	if resp, err = resp.WithStatus(fr.StatusCode, fr.Reason); err != nil {
		body.Close()
		return nil, err
	}
	if resp, err = resp.WithProtocolVersion(version); err != nil {
		body.Close()
		return nil, err
	}
	return resp, nil
}

// readHead returns the bytes of the next head, through its blank line.
// Empty lines before a start line are skipped.
func (dec *Decoder) readHead() ([]byte, error) {
	if dec.last != nil && !dec.last.Done() {
		return nil, errors.NewIOError("decoding message", fmt.Errorf("previous body was not fully read"))
	}
	dec.last = nil

	limit := dec.opts.MaxHeaderBytes
	var head []byte
	for {
		line, err := dec.r.ReadSlice('\n')
		if len(head)+len(line) > limit {
			return nil, errors.NewHeaderTooLargeError(limit)
		}
		switch {
		case err == bufio.ErrBufferFull:
			head = append(head, line...)
			continue
		case err == io.EOF && len(head) == 0 && len(line) == 0:
			return nil, io.EOF
		case err == io.EOF:
			return nil, errors.NewParseError("unexpected end of message head", bytes.Count(head, []byte("\n"))+1)
		case err != nil:
			return nil, fmt.Errorf("http: reading message head: %w", err)
		}

		blank := len(bytes.TrimRight(line, "\r\n")) == 0
		if blank && len(head) == 0 {
			continue
		}
		head = append(head, line...)
		if blank {
			return head, nil
		}
	}
}

func wireVersion(v string) (string, error) {
	if !strings.HasPrefix(v, "HTTP/") {
		return "", errors.NewParseError("malformed protocol version "+v, 1)
	}
	return filterVersion(strings.TrimPrefix(v, "HTTP/"))
}

// requestURI resolves a request target against the Host header. Origin-form
// targets take their host from it and the http scheme.
func requestURI(target, host string) (*uri.URI, error) {
	u, err := uri.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Host() != "" || host == "" || target == "*" {
		return u, nil
	}
	hu, err := uri.Parse("//" + host)
	if err != nil {
		return u, nil
	}
	u = u.WithHost(hu.Host())
	if hu.HasExplicitPort() {
		if u, err = u.WithPort(hu.Port()); err != nil {
			return nil, err
		}
	}
	if u.Scheme() == "" {
		u = u.WithScheme("http")
	}
	return u, nil
}

// requestBody frames a request body. A request without Content-Length or
// chunked framing has none.
func (dec *Decoder) requestBody(ctx context.Context, headers Headers) (stream.ReadableStream, Headers, error) {
	if !headers.IsChunked() && headers.Get("Content-Length") == "" {
		return stream.Empty(), headers, nil
	}
	return dec.frameBody(ctx, headers, false)
}

// frameBody attaches the transfer framing, then the content decoder and
// size bound, to the input. closeDelimited allows a body that runs to the
// end of the input.
func (dec *Decoder) frameBody(ctx context.Context, headers Headers, closeDelimited bool) (stream.ReadableStream, Headers, error) {
	var raw stream.ReadableStream
	switch {
	case headers.IsChunked():
		cr := stream.NewChunkedReader(dec.r, dec.opts.OnAbandon)
		dec.last, raw = cr, cr

	case headers.Get("Content-Length") != "":
		n := headers.ContentLength()
		if n < 0 {
			return nil, nil, errors.NewParseError("invalid Content-Length "+headers.Get("Content-Length"), 1)
		}
		if limit := dec.opts.MaxBodyLength; limit > 0 && n > limit && !dec.decodes(headers) {
			return nil, nil, errors.NewMessageTooLargeError(limit)
		}
		ls := stream.NewLengthStream(dec.r, n, dec.opts.OnAbandon)
		dec.last, raw = ls, ls

	case closeDelimited:
		rs := stream.NewReaderStream(dec.r, dec.opts.OnAbandon)
		dec.last, raw = rs, rs

	default:
		return stream.Empty(), headers, nil
	}

	encoding := ""
	if dec.decodes(headers) {
		encoding = strings.ToLower(strings.TrimSpace(headers.Get("Content-Encoding")))
		headers = headers.Clone()
		headers.Del("Content-Encoding")
		headers.Del("Content-Length")
	} else if dec.opts.MaxBodyLength == 0 {
		return raw, headers, nil
	}

	transform, err := stream.NewContentDecoder(encoding, dec.opts.MaxBodyLength)
	if err != nil {
		raw.Close()
		return nil, nil, err
	}
	return stream.Pipe(ctx, raw, transform), headers, nil
}

// decodes reports whether bodies with these headers are content-decoded.
func (dec *Decoder) decodes(headers Headers) bool {
	if !dec.opts.Decompress {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(headers.Get("Content-Encoding"))) {
	case "gzip", "x-gzip", "deflate", "br":
		return true
	}
	return false
}

func convertHeaders(internal []fastparser.Header) Headers {
	if len(internal) == 0 {
		return nil
	}
	headers := make(Headers, len(internal))
	for i, h := range internal {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	return headers
}
