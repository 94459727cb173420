package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Encoder writes HTTP messages, head and body, to an output stream.
//
// The body is framed by the message's own Content-Length or chunked
// Transfer-Encoding header when present. Otherwise an ended in-memory body
// gets a Content-Length, an HTTP/1.1 body of unknown length is sent chunked,
// and an HTTP/1.0 response of unknown length is delimited by closing the
// connection. The body is closed once written.
type Encoder struct {
	w              *bufio.Writer
	closeDelimited bool
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// EncodeRequest writes req.
func (enc *Encoder) EncodeRequest(ctx context.Context, req *Request) error {
	return enc.Encode(ctx, req)
}

// EncodeResponse writes resp.
func (enc *Encoder) EncodeResponse(ctx context.Context, resp *Response) error {
	return enc.Encode(ctx, resp)
}

// EncodeResponseTo writes resp as the answer to a request with the given
// method. A response to HEAD is written without its body, headers as given.
func (enc *Encoder) EncodeResponseTo(ctx context.Context, resp *Response, method string) error {
	if !strings.EqualFold(method, "HEAD") {
		return enc.Encode(ctx, resp)
	}
	enc.closeDelimited = false
	resp.Body().Close()
	return enc.flush(enc.writeHead(resp, nil))
}

// CloseDelimited reports whether the last message's body ends only when the
// connection closes.
func (enc *Encoder) CloseDelimited() bool { return enc.closeDelimited }

// Encode writes msg, which must be a *Request or *Response.
func (enc *Encoder) Encode(ctx context.Context, msg Message) error {
	enc.closeDelimited = false
	body := msg.Body()
	defer body.Close()

	fields := msg.HeaderFields()
	resp, isResponse := msg.(*Response)

	switch {
	case isResponse && !bodyAllowed(resp.status):
		return enc.flush(enc.writeHead(msg, nil))

	case fields.IsChunked():
		if err := enc.writeHead(msg, nil); err != nil {
			return err
		}
		return enc.writeChunked(ctx, body)

	case fields.ContentLength() >= 0:
		if err := enc.writeHead(msg, nil); err != nil {
			return err
		}
		return enc.writeLength(ctx, body, fields.ContentLength())
	}

	if n, ok := knownLength(body); ok {
		if n == 0 && !isResponse {
			return enc.flush(enc.writeHead(msg, nil))
		}
		if err := enc.writeHead(msg, contentLength(n)); err != nil {
			return err
		}
		return enc.writeLength(ctx, body, n)
	}

	if msg.ProtocolVersion() == Version11 {
		if err := enc.writeHead(msg, Headers{{Key: "Transfer-Encoding", Value: "chunked"}}); err != nil {
			return err
		}
		return enc.writeChunked(ctx, body)
	}

	if isResponse {
		enc.closeDelimited = true
		if err := enc.writeHead(msg, nil); err != nil {
			return err
		}
		return enc.writeLength(ctx, body, -1)
	}

	// An HTTP/1.0 request cannot be close-delimited, so buffer it.
	data, err := stream.ReadAll(ctx, body)
	if err != nil {
		return err
	}
	if err := enc.writeHead(msg, contentLength(int64(len(data)))); err != nil {
		return err
	}
	return enc.flush(enc.write(data))
}

// knownLength returns the size of an ended in-memory body.
func knownLength(body stream.ReadableStream) (int64, bool) {
	sink, ok := body.(*stream.MemorySink)
	if !ok || sink.IsWritable() {
		return 0, false
	}
	return sink.Length(), true
}

func contentLength(n int64) Headers {
	return Headers{{Key: "Content-Length", Value: strconv.FormatInt(n, 10)}}
}

func (enc *Encoder) writeHead(msg Message, extra Headers) error {
	head, err := marshalHead(msg, extra)
	if err != nil {
		return err
	}
	return enc.write(head)
}

func (enc *Encoder) write(p []byte) error {
	if _, err := enc.w.Write(p); err != nil {
		return errors.NewIOError("writing message", err)
	}
	return nil
}

func (enc *Encoder) flush(err error) error {
	if err != nil {
		return err
	}
	if ferr := enc.w.Flush(); ferr != nil {
		return errors.NewIOError("writing message", ferr)
	}
	return nil
}

func (enc *Encoder) writeChunked(ctx context.Context, body stream.ReadableStream) error {
	_, err := stream.Pump(ctx, stream.NewChunkedWriter(enc.w), body)
	return enc.flush(err)
}

// writeLength copies the body and checks it against want; want < 0 accepts
// any length. A chunk that would run past want fails before any of it is
// written, so excess bytes never reach the peer.
func (enc *Encoder) writeLength(ctx context.Context, body stream.ReadableStream, want int64) error {
	out := stream.NewWriterStream(enc.w)
	for {
		chunk, err := body.Read(ctx)
		if len(chunk) > 0 {
			if have := out.Written() + int64(len(chunk)); want >= 0 && have > want {
				return lengthMismatch("body exceeds Content-Length %d", want)
			}
			if _, werr := out.Write(ctx, chunk); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if n := out.Written(); want >= 0 && n != want {
		return lengthMismatch("body has %d bytes, Content-Length is %d", n, want)
	}
	return enc.flush(nil)
}

func lengthMismatch(format string, args ...any) error {
	return errors.NewIOError("writing message", fmt.Errorf(format, args...))
}
