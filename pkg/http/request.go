package http

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/http/httpguts"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
	"github.com/shapestone/shape-httpmsg/pkg/uri"
)

// Request is an immutable HTTP request.
//
// Unless a Host header is given explicitly, Host is derived from the URI and
// follows it through WithURI. Removing an explicit Host brings the derived
// one back.
type Request struct {
	message
	method      string
	uri         *uri.URI
	target      string
	hostFromURI bool
	cookies     cookieMap
}

// NewRequest builds a request for rawURI. headers are added in order, so a
// repeated name accumulates values. A nil body is an empty one.
func NewRequest(method, rawURI string, headers Headers, body stream.ReadableStream) (*Request, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return nil, err
	}
	return NewRequestWithURI(method, u, headers, body)
}

// NewRequestWithURI is NewRequest for an already parsed URI.
func NewRequestWithURI(method string, u *uri.URI, headers Headers, body stream.ReadableStream) (*Request, error) {
	m, err := filterMethod(method)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &uri.URI{}
	}
	r := &Request{message: newMessage(body), method: m, uri: u}
	for _, h := range headers {
		if err := r.addHeader(h.Key, []string{h.Value}); err != nil {
			return nil, err
		}
	}
	if !r.headers.has("Host") {
		if err := r.deriveHost(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func filterMethod(method string) (string, error) {
	if method == "" {
		return "", errors.NewInvalidMethodError("request method is empty")
	}
	if strings.IndexFunc(method, unicode.IsSpace) >= 0 {
		return "", errors.NewInvalidMethodError("request method " + strconv.Quote(method) + " contains whitespace")
	}
	return strings.ToUpper(method), nil
}

func filterTarget(target string) (string, error) {
	if strings.IndexFunc(target, unicode.IsSpace) >= 0 {
		return "", errors.NewInvalidValueError("request target cannot contain whitespace")
	}
	return target, nil
}

func (r *Request) clone() *Request {
	return &Request{
		message:     r.message.copy(),
		method:      r.method,
		uri:         r.uri,
		target:      r.target,
		hostFromURI: r.hostFromURI,
		cookies:     r.cookies.clone(),
	}
}

// Method returns the upper-cased request method.
func (r *Request) Method() string { return r.method }

// URI returns the request URI.
func (r *Request) URI() *uri.URI { return r.uri }

// RequestTarget returns the explicit target if one was set, otherwise the
// encoded URI path ("/" when empty) followed by the query.
func (r *Request) RequestTarget() string {
	if r.target != "" {
		return r.target
	}
	target := r.uri.EncodedPath()
	if target == "" {
		target = "/"
	}
	if q := r.uri.Query(); q != "" {
		target += "?" + q
	}
	return target
}

// HostFromURI reports whether the Host header was derived from the URI.
func (r *Request) HostFromURI() bool { return r.hostFromURI }

// Cookie returns the named cookie's value, ignoring case.
func (r *Request) Cookie(name string) (string, bool) { return r.cookies.get(name) }

// HasCookie reports whether the named cookie is present.
func (r *Request) HasCookie(name string) bool { return r.cookies.index(name) >= 0 }

// Cookies returns a copy of the cookies keyed by name.
func (r *Request) Cookies() map[string]string { return r.cookies.toMap() }

// WithMethod returns a copy with a new method.
func (r *Request) WithMethod(method string) (*Request, error) {
	m, err := filterMethod(method)
	if err != nil {
		return nil, err
	}
	n := r.clone()
	n.method = m
	return n, nil
}

// WithRequestTarget returns a copy with an explicit request target. An
// empty target restores the one derived from the URI.
func (r *Request) WithRequestTarget(target string) (*Request, error) {
	t, err := filterTarget(target)
	if err != nil {
		return nil, err
	}
	n := r.clone()
	n.target = t
	return n, nil
}

// WithURI returns a copy with a new URI. A derived Host follows the URI; an
// explicit one is kept.
func (r *Request) WithURI(u *uri.URI) (*Request, error) {
	if u == nil {
		return nil, errors.NewInvalidArgumentError("nil URI")
	}
	n := r.clone()
	n.uri = u
	if n.hostFromURI {
		if err := n.deriveHost(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// WithProtocolVersion returns a copy speaking version "1.0" or "1.1".
func (r *Request) WithProtocolVersion(version string) (*Request, error) {
	v, err := filterVersion(version)
	if err != nil {
		return nil, err
	}
	n := r.clone()
	n.version = v
	return n, nil
}

// WithHeader returns a copy where name holds exactly values.
func (r *Request) WithHeader(name string, values ...string) (*Request, error) {
	n := r.clone()
	if err := n.setHeader(name, values); err != nil {
		return nil, err
	}
	return n, nil
}

// WithAddedHeader returns a copy with values appended to name.
func (r *Request) WithAddedHeader(name string, values ...string) (*Request, error) {
	n := r.clone()
	if err := n.addHeader(name, values); err != nil {
		return nil, err
	}
	return n, nil
}

// WithoutHeader returns a copy without name. Removing Host re-derives it
// from the URI.
func (r *Request) WithoutHeader(name string) (*Request, error) {
	n := r.clone()
	if err := n.removeHeader(name); err != nil {
		return nil, err
	}
	return n, nil
}

// WithBody returns a copy that owns body. The receiver must not read its
// body afterwards.
func (r *Request) WithBody(body stream.ReadableStream) *Request {
	n := r.clone()
	if body == nil {
		body = stream.Empty()
	}
	n.body = body
	return n
}

// WithCookie returns a copy with the cookie set. Name and value are trimmed.
func (r *Request) WithCookie(name, value string) (*Request, error) {
	name, value, err := checkCookie(name, value)
	if err != nil {
		return nil, err
	}
	n := r.clone()
	n.cookies.put(cookie{name: name, value: value})
	if err := n.syncCookieHeader(); err != nil {
		return nil, err
	}
	return n, nil
}

// WithoutCookie returns a copy without the named cookie.
func (r *Request) WithoutCookie(name string) (*Request, error) {
	n := r.clone()
	if !n.cookies.remove(strings.TrimSpace(name)) {
		return n, nil
	}
	if err := n.syncCookieHeader(); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *Request) setHeader(name string, values []string) error {
	if err := r.headers.set(name, values); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "cookie":
		r.cookies = parseCookieHeader(r.headers.get("Cookie"))
	case "host":
		r.hostFromURI = false
	}
	return nil
}

func (r *Request) addHeader(name string, values []string) error {
	if strings.EqualFold(name, "Host") && r.hostFromURI {
		return r.setHeader(name, values)
	}
	if err := r.headers.add(name, values); err != nil {
		return err
	}
	if strings.EqualFold(name, "Cookie") {
		r.cookies = parseCookieHeader(r.headers.get("Cookie"))
	}
	return nil
}

func (r *Request) removeHeader(name string) error {
	r.headers.del(name)
	switch strings.ToLower(name) {
	case "cookie":
		r.cookies = nil
	case "host":
		return r.deriveHost()
	}
	return nil
}

// syncCookieHeader writes the cookie map back as a single Cookie header.
func (r *Request) syncCookieHeader() error {
	if len(r.cookies) == 0 {
		r.headers.del("Cookie")
		return nil
	}
	return r.headers.set("Cookie", []string{r.cookies.cookieHeader()})
}

// deriveHost sets Host from the URI: host, plus the port when it is explicit
// and not the scheme default, in punycode. A URI without a host leaves no
// Host header.
func (r *Request) deriveHost() error {
	r.hostFromURI = true
	host := r.uri.Host()
	if host == "" {
		r.headers.del("Host")
		return nil
	}
	if r.uri.HasExplicitPort() {
		if def, err := uri.DefaultPort(r.uri.Scheme()); err != nil || def != r.uri.Port() {
			host += ":" + strconv.Itoa(r.uri.Port())
		}
	}
	if p, err := httpguts.PunycodeHostPort(host); err == nil {
		host = p
	}
	return r.headers.set("Host", []string{host})
}
