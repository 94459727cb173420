package http

import (
	"strconv"
	"strings"

	"github.com/shapestone/shape-httpmsg/internal/fastparser"
	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Response is an immutable HTTP response. Each cookie set on it becomes one
// Set-Cookie header value.
type Response struct {
	message
	status  int
	reason  string
	cookies cookieMap
}

// NewResponse builds a response with the registered reason phrase for code.
// A nil body is an empty one.
func NewResponse(code int, headers Headers, body stream.ReadableStream) (*Response, error) {
	if err := checkStatus(code); err != nil {
		return nil, err
	}
	r := &Response{message: newMessage(body), status: code, reason: StatusText(code)}
	for _, h := range headers {
		if err := r.addHeader(h.Key, []string{h.Value}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func checkStatus(code int) error {
	if code < 100 || code > 599 {
		return errors.NewInvalidValueError("invalid status code " + strconv.Itoa(code))
	}
	return nil
}

func (r *Response) clone() *Response {
	return &Response{
		message: r.message.copy(),
		status:  r.status,
		reason:  r.reason,
		cookies: r.cookies.clone(),
	}
}

// StatusCode returns the status code.
func (r *Response) StatusCode() int { return r.status }

// ReasonPhrase returns the reason phrase, which may be empty for
// unregistered codes.
func (r *Response) ReasonPhrase() string { return r.reason }

// Cookie returns the raw value of the named cookie, ignoring case.
func (r *Response) Cookie(name string) (string, bool) { return r.cookies.get(name) }

// HasCookie reports whether the named cookie is present.
func (r *Response) HasCookie(name string) bool { return r.cookies.index(name) >= 0 }

// Cookies returns a copy of the raw cookie values keyed by name.
func (r *Response) Cookies() map[string]string { return r.cookies.toMap() }

// WithStatus returns a copy with a new status. An empty reason selects the
// registered phrase.
func (r *Response) WithStatus(code int, reason string) (*Response, error) {
	if err := checkStatus(code); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = StatusText(code)
	} else if !ValidHeaderValue(reason) {
		return nil, errors.NewInvalidValueError("invalid character in reason phrase")
	}
	n := r.clone()
	n.status = code
	n.reason = reason
	return n, nil
}

// WithProtocolVersion returns a copy speaking version "1.0" or "1.1".
func (r *Response) WithProtocolVersion(version string) (*Response, error) {
	v, err := filterVersion(version)
	if err != nil {
		return nil, err
	}
	n := r.clone()
	n.version = v
	return n, nil
}

// WithHeader returns a copy where name holds exactly values.
func (r *Response) WithHeader(name string, values ...string) (*Response, error) {
	n := r.clone()
	if err := n.headers.set(name, values); err != nil {
		return nil, err
	}
	n.afterHeaderWrite(name)
	return n, nil
}

// WithAddedHeader returns a copy with values appended to name.
func (r *Response) WithAddedHeader(name string, values ...string) (*Response, error) {
	n := r.clone()
	if err := n.addHeader(name, values); err != nil {
		return nil, err
	}
	return n, nil
}

// WithoutHeader returns a copy without name.
func (r *Response) WithoutHeader(name string) *Response {
	n := r.clone()
	n.headers.del(name)
	n.afterHeaderWrite(name)
	return n
}

// WithBody returns a copy that owns body. The receiver must not read its
// body afterwards.
func (r *Response) WithBody(body stream.ReadableStream) *Response {
	n := r.clone()
	if body == nil {
		body = stream.Empty()
	}
	n.body = body
	return n
}

// WithCookie returns a copy with the cookie set and the Set-Cookie header
// regenerated. An empty value produces a line deleting the cookie.
func (r *Response) WithCookie(name, value string, attrs CookieAttributes) (*Response, error) {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return nil, errors.NewInvalidValueError("cookie name is empty")
	}
	for _, s := range []string{attrs.Path, attrs.Domain} {
		if strings.IndexByte(s, ';') >= 0 || !ValidHeaderValue(s) {
			return nil, errors.NewInvalidValueError("invalid cookie attribute " + strconv.Quote(s))
		}
	}
	n := r.clone()
	n.cookies.put(cookie{name: name, value: value, line: formatSetCookie(name, value, attrs)})
	if err := n.syncSetCookie(); err != nil {
		return nil, err
	}
	return n, nil
}

// WithoutCookie returns a copy without the named cookie's Set-Cookie line.
func (r *Response) WithoutCookie(name string) (*Response, error) {
	n := r.clone()
	if !n.cookies.remove(strings.TrimSpace(name)) {
		return n, nil
	}
	if err := n.syncSetCookie(); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *Response) addHeader(name string, values []string) error {
	if err := r.headers.add(name, values); err != nil {
		return err
	}
	r.afterHeaderWrite(name)
	return nil
}

func (r *Response) afterHeaderWrite(name string) {
	if strings.EqualFold(name, "Set-Cookie") {
		r.cookies = parseSetCookieHeader(r.headers.get("Set-Cookie"))
	}
}

func (r *Response) syncSetCookie() error {
	if len(r.cookies) == 0 {
		r.headers.del("Set-Cookie")
		return nil
	}
	return r.headers.set("Set-Cookie", r.cookies.setCookieLines())
}

// StatusText returns the registered reason phrase for code, or "".
func StatusText(code int) string {
	return fastparser.StatusText(code)
}
