// Package client sends HTTP/1.x requests and returns responses whose bodies
// stream from the connection.
//
// Each exchange uses its own connection, opened for the request and closed
// when the response body is read to its end or closed.
package client

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/http"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// DefaultTimeout bounds an exchange when Options leaves Timeout unset.
const DefaultTimeout = 30 * time.Second

// Options controls how a Client connects and reads responses.
type Options struct {
	// Timeout bounds the whole exchange: dial, writing the request and
	// reading the response including its body.
	Timeout time.Duration

	// MaxHeaderBytes bounds the response head. Zero selects
	// http.DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// MaxBodyLength bounds the response body after content decoding.
	// Zero is unbounded.
	MaxBodyLength int64

	// DisableDecompression leaves gzip, deflate and br bodies encoded.
	DisableDecompression bool

	// Dial opens connections. Nil uses a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	Logger *zerolog.Logger
}

// Client sends requests. It is safe for concurrent use.
type Client struct {
	opts Options
	log  zerolog.Logger
}

// New returns a Client configured by opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.Timeout}
		opts.Dial = d.DialContext
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Client{opts: opts, log: log}
}

var defaultClient = New(Options{})

// Send sends req with the default client.
func Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	return defaultClient.Send(ctx, req)
}

// Request builds a request and sends it with the default client.
func Request(ctx context.Context, method, rawURI string, headers http.Headers, body stream.ReadableStream) (*http.Response, error) {
	return defaultClient.Request(ctx, method, rawURI, headers, body)
}

// Request builds a request from its parts and sends it.
func (c *Client) Request(ctx context.Context, method, rawURI string, headers http.Headers, body stream.ReadableStream) (*http.Response, error) {
	req, err := http.NewRequest(method, rawURI, headers, body)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// Send writes req to a new connection to the request URI's host and reads
// the response head. Interim 1xx responses are skipped. The returned body
// reads from the connection; read it to the end or close it.
func (c *Client) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	addr, err := dialAddress(req)
	if err != nil {
		req.Body().Close()
		return nil, err
	}
	if !req.HasHeader("Connection") {
		if req, err = req.WithHeader("Connection", "close"); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	deadline := start.Add(c.opts.Timeout)

	c.log.Debug().Str("addr", addr).Str("method", req.Method()).Str("target", req.RequestTarget()).Msg("dialing")
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	conn, err := c.opts.Dial(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		req.Body().Close()
		return nil, c.exchangeError("dialing "+addr, err)
	}
	conn.SetDeadline(deadline)

	// Unblock connection I/O when ctx ends before the head arrives.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	resp, err := c.exchange(ctx, conn, req)
	if !stop() {
		if err == nil {
			resp.Body().Close()
		}
		conn.Close()
		return nil, c.exchangeError("sending request to "+addr, ctx.Err())
	}
	if err != nil {
		conn.Close()
		return nil, c.exchangeError("sending request to "+addr, err)
	}

	c.log.Debug().Str("addr", addr).Int("status", resp.StatusCode()).Dur("elapsed", time.Since(start)).Msg("response")
	return resp.WithBody(newConnBody(resp.Body(), conn)), nil
}

func (c *Client) exchange(ctx context.Context, conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := http.NewEncoder(conn).EncodeRequest(ctx, req); err != nil {
		return nil, err
	}
	dec := http.NewDecoderWithOptions(conn, http.DecoderOptions{
		MaxHeaderBytes: c.opts.MaxHeaderBytes,
		MaxBodyLength:  c.opts.MaxBodyLength,
		Decompress:     !c.opts.DisableDecompression,
		OnAbandon:      conn.Close,
	})
	for {
		resp, err := dec.DecodeResponseTo(ctx, req.Method())
		if err == io.EOF {
			return nil, errors.NewIOError("reading response", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}
		if code := resp.StatusCode(); code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
			continue
		}
		return resp, nil
	}
}

// exchangeError classifies a failure as Timeout, keeps structured errors
// and wraps anything else as IO.
func (c *Client) exchangeError(operation string, err error) error {
	if errors.IsTimeoutError(err) {
		return errors.NewTimeoutError(operation, c.opts.Timeout)
	}
	if errors.GetErrorType(err) != "" {
		return err
	}
	return errors.NewIOError(operation, err)
}

func dialAddress(req *http.Request) (string, error) {
	u := req.URI()
	if u.Host() == "" {
		return "", errors.NewInvalidArgumentError("request URI " + strconv.Quote(u.String()) + " has no host")
	}
	switch u.Scheme() {
	case "", "http":
	default:
		return "", errors.NewInvalidArgumentError("unsupported scheme " + strconv.Quote(u.Scheme()))
	}
	port := u.Port()
	if port == 0 {
		port = 80
	}
	host := strings.TrimSuffix(strings.TrimPrefix(u.Host(), "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// connBody closes the connection once the body ends or is closed.
type connBody struct {
	stream.ReadableStream
	conn net.Conn
	once sync.Once
}

func newConnBody(body stream.ReadableStream, conn net.Conn) *connBody {
	b := &connBody{ReadableStream: body, conn: conn}
	if !body.IsReadable() {
		b.release()
	}
	return b
}

func (b *connBody) Read(ctx context.Context) ([]byte, error) {
	chunk, err := b.ReadableStream.Read(ctx)
	if err != nil {
		b.release()
	}
	return chunk, err
}

func (b *connBody) Close() error {
	err := b.ReadableStream.Close()
	b.release()
	return err
}

func (b *connBody) release() {
	b.once.Do(func() { b.conn.Close() })
}
