// Package server accepts HTTP/1.x connections and answers each request
// through a RequestHandler.
//
// Requests on a connection are handled one at a time. Whatever the handler
// leaves unread of a request body is drained before the response is
// written, so the next request starts on a message boundary.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/sync/errgroup"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/http"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// DefaultTimeout bounds reading one request and writing its response when
// Options leaves Timeout unset.
const DefaultTimeout = 30 * time.Second

// ConnInfo describes the connection a request arrived on.
type ConnInfo struct {
	// ID is unique per connection and tags its log lines.
	ID         string
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// RequestHandler answers requests.
type RequestHandler interface {
	// OnRequest returns the response to req. A returned error is answered
	// with OnError and the status errors.StatusCode assigns it.
	OnRequest(ctx context.Context, req *http.Request, conn ConnInfo) (*http.Response, error)

	// OnError builds the response for a request that could not be handled:
	// a malformed head, an unsupported version, a body that failed to
	// decode, a handler error or a handler panic. A nil result gets a bare
	// response with the code.
	OnError(code int, conn ConnInfo) *http.Response
}

// Options configures a Server. The zero value is usable.
type Options struct {
	// Timeout bounds reading each request and writing its response, and
	// how long an idle connection waits for its next request.
	Timeout time.Duration

	// MaxHeaderBytes bounds a request head. Zero selects
	// http.DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// MaxBodyLength bounds a request body after content decoding. Zero is
	// unbounded.
	MaxBodyLength int64

	// DisableDecompression hands gzip, deflate and br bodies to the
	// handler still encoded.
	DisableDecompression bool

	Logger *zerolog.Logger

	// Registerer, when set, receives the server's request and body error
	// metrics.
	Registerer prometheus.Registerer
}

// Server serves connections with a RequestHandler.
type Server struct {
	handler RequestHandler
	opts    Options
	log     zerolog.Logger
	metrics *metrics
}

// New returns a Server answering with handler. It panics if opts.Registerer
// already holds the server's metrics.
func New(handler RequestHandler, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Server{
		handler: handler,
		opts:    opts,
		log:     log,
		metrics: newMetrics(opts.Registerer),
	}
}

// ListenAndServe listens on every address and serves them until ctx is
// cancelled or one listener fails. It returns nil after a cancellation.
func (s *Server) ListenAndServe(ctx context.Context, addrs ...string) error {
	if len(addrs) == 0 {
		return errors.NewInvalidArgumentError("no listen address")
	}
	var lc net.ListenConfig
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return errors.NewIOError("listening on "+addr, err)
		}
		listeners = append(listeners, ln)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		g.Go(func() error { return s.Serve(ctx, ln) })
	}
	return g.Wait()
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln
// and waits for open connections to finish. Cancellation also closes the
// connections. It returns nil after a cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(ctx, func() { ln.Close() })

	s.log.Info().Stringer("addr", ln.Addr()).Msg("serving")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.NewIOError("accepting on "+ln.Addr().String(), err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn serves requests on conn until the peer closes it, a response
// ends the connection or ctx is cancelled. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	info := ConnInfo{ID: uuid.NewString(), LocalAddr: conn.LocalAddr(), RemoteAddr: conn.RemoteAddr()}
	log := s.log.With().Str("conn", info.ID).Logger()
	if info.RemoteAddr != nil {
		log = log.With().Str("remote", info.RemoteAddr.String()).Logger()
	}
	log.Debug().Msg("connection accepted")
	defer func() {
		conn.Close()
		log.Debug().Msg("connection closed")
	}()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// A body closed before its end leaves the input mid-message; the
	// response is still written but the connection then ends.
	var abandoned atomic.Bool
	dec := http.NewDecoderWithOptions(conn, http.DecoderOptions{
		MaxHeaderBytes: s.opts.MaxHeaderBytes,
		MaxBodyLength:  s.opts.MaxBodyLength,
		Decompress:     !s.opts.DisableDecompression,
		OnAbandon: func() error {
			abandoned.Store(true)
			return nil
		},
	})
	enc := http.NewEncoder(conn)

	for {
		conn.SetDeadline(time.Now().Add(s.opts.Timeout))
		abandoned.Store(false)

		req, err := dec.DecodeRequest(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			if !answerable(err) {
				log.Debug().Err(err).Msg("reading request")
				return
			}
			code := errors.StatusCode(err)
			log.Warn().Err(err).Int("status", code).Msg("rejecting request")
			s.write(ctx, enc, s.errorResponse(code, info, nil), "", time.Now(), log)
			return
		}

		start := time.Now()
		resp, failed := s.handle(ctx, req, info, log)

		if err := drain(ctx, req.Body()); err != nil {
			s.metrics.bodyError(err)
			if !failed {
				resp.Body().Close()
				code := errors.StatusCode(err)
				log.Warn().Err(err).Int("status", code).Msg("request body")
				resp = s.errorResponse(code, info, req)
			}
			failed = true
		}

		persist := !failed && !abandoned.Load() && keepAlive(req, resp)
		if resp, err = frame(req, resp, persist); err != nil {
			log.Error().Err(err).Msg("preparing response")
			resp = s.errorResponse(http.StatusInternalServerError, info, req)
			persist = false
		}
		if !s.write(ctx, enc, resp, req.Method(), start, log) || !persist || enc.CloseDelimited() {
			return
		}
	}
}

// answerable reports whether a decode failure deserves an error response.
// Connection failures and timeouts just end the connection.
func answerable(err error) bool {
	switch errors.GetErrorType(err) {
	case "", errors.ErrorTypeIO, errors.ErrorTypeTimeout:
		return false
	}
	return true
}

// handle runs OnRequest. failed reports whether resp came from OnError.
func (s *Server) handle(ctx context.Context, req *http.Request, info ConnInfo, log zerolog.Logger) (resp *http.Response, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("method", req.Method()).Str("target", req.RequestTarget()).Msg("handler panicked")
			resp, failed = s.errorResponse(http.StatusInternalServerError, info, req), true
		}
	}()

	r, err := s.handler.OnRequest(ctx, req, info)
	if err != nil {
		code := errors.StatusCode(err)
		log.Warn().Err(err).Int("status", code).Msg("handler failed")
		return s.errorResponse(code, info, req), true
	}
	if r == nil {
		log.Error().Str("target", req.RequestTarget()).Msg("handler returned no response")
		return s.errorResponse(http.StatusInternalServerError, info, req), true
	}
	return r, false
}

// errorResponse asks OnError for the response to code. Error responses
// always close the connection.
func (s *Server) errorResponse(code int, info ConnInfo, req *http.Request) *http.Response {
	resp := s.handler.OnError(code, info)
	if resp == nil {
		resp = bareResponse(code)
	}
	if req != nil && req.ProtocolVersion() == http.Version10 {
		if r, err := resp.WithProtocolVersion(http.Version10); err == nil {
			resp = r
		}
	}
	if r, err := resp.WithHeader("Connection", "close"); err == nil {
		resp = r
	}
	return resp
}

func bareResponse(code int) *http.Response {
	resp, err := http.NewResponse(code, http.Headers{{Key: "Content-Length", Value: "0"}}, nil)
	if err != nil {
		resp, _ = http.NewResponse(http.StatusInternalServerError, http.Headers{{Key: "Content-Length", Value: "0"}}, nil)
	}
	return resp
}

// keepAlive reports whether the connection may carry another request after
// resp.
func keepAlive(req *http.Request, resp *http.Response) bool {
	if httpguts.HeaderValuesContainsToken(req.Header("Connection"), "close") ||
		httpguts.HeaderValuesContainsToken(resp.Header("Connection"), "close") {
		return false
	}
	if req.ProtocolVersion() == http.Version10 {
		return httpguts.HeaderValuesContainsToken(req.Header("Connection"), "keep-alive")
	}
	return true
}

// frame answers an HTTP/1.0 request in HTTP/1.0 and states the connection's
// fate in the Connection header when the version's default differs.
func frame(req *http.Request, resp *http.Response, persist bool) (*http.Response, error) {
	var err error
	if req.ProtocolVersion() == http.Version10 && resp.ProtocolVersion() != http.Version10 {
		if resp, err = resp.WithProtocolVersion(http.Version10); err != nil {
			return nil, err
		}
	}
	switch {
	case !persist && !httpguts.HeaderValuesContainsToken(resp.Header("Connection"), "close"):
		return resp.WithHeader("Connection", "close")
	case persist && resp.ProtocolVersion() == http.Version10:
		return resp.WithHeader("Connection", "keep-alive")
	}
	return resp, nil
}

// write encodes resp and records it. It reports whether the connection is
// still usable.
func (s *Server) write(ctx context.Context, enc *http.Encoder, resp *http.Response, method string, start time.Time, log zerolog.Logger) bool {
	err := enc.EncodeResponseTo(ctx, resp, method)
	elapsed := time.Since(start)
	s.metrics.observe(resp.StatusCode(), elapsed)
	if err != nil {
		log.Debug().Err(err).Int("status", resp.StatusCode()).Msg("writing response")
		return false
	}
	log.Debug().Int("status", resp.StatusCode()).Dur("elapsed", elapsed).Msg("request served")
	return true
}

// drain reads and discards what remains of body. A body the handler
// already closed counts as drained.
func drain(ctx context.Context, body stream.ReadableStream) error {
	defer body.Close()
	for {
		_, err := body.Read(ctx)
		switch {
		case err == io.EOF, err == stream.ErrClosed:
			return nil
		case err != nil:
			return err
		}
	}
}
