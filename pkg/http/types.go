// Package http models HTTP/1.x messages as immutable values and moves them
// on and off the wire.
//
// Requests and responses are built once and changed only through With*
// methods, each of which returns an independent copy. Header names are
// matched case-insensitively but keep the case they were last written with.
// Cookie state and the Cookie or Set-Cookie header are kept in step: writing
// one regenerates the other.
//
// # Wire APIs
//
//   - Marshal - head of a message in wire format
//   - NewEncoder - head and framed body to an io.Writer
//   - NewDecoder - heads from an io.Reader with streamed, framed bodies
//   - Unmarshal/UnmarshalRequest/UnmarshalResponse - complete buffered messages
//   - Parse/Render - AST view via shape-core
package http

import (
	"strconv"
	"strings"

	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Header represents a single HTTP header key-value pair.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered, repeatable list of HTTP headers, as they appear on
// the wire. It is the input to NewRequest and NewResponse and the output of
// HeaderFields.
type Headers []Header

// Get returns the first header value for the given key (case-insensitive).
// Returns empty string if not found.
func (h Headers) Get(key string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Key, key) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns all header values for the given key (case-insensitive).
func (h Headers) Values(key string) []string {
	var vals []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Key, key) {
			vals = append(vals, hdr.Value)
		}
	}
	return vals
}

// Add appends a header without replacing existing ones.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{Key: key, Value: value})
}

// Del removes all headers with the given key (case-insensitive).
func (h *Headers) Del(key string) {
	j := 0
	for _, hdr := range *h {
		if !strings.EqualFold(hdr.Key, key) {
			(*h)[j] = hdr
			j++
		}
	}
	*h = (*h)[:j]
}

// Clone returns a copy of the headers.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	clone := make(Headers, len(h))
	copy(clone, h)
	return clone
}

// ContentLength returns the Content-Length header value, or -1 if absent or invalid.
func (h Headers) ContentLength() int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// IsChunked returns true if Transfer-Encoding contains "chunked".
func (h Headers) IsChunked() bool {
	for _, v := range h.Values("Transfer-Encoding") {
		if strings.Contains(strings.ToLower(v), "chunked") {
			return true
		}
	}
	return false
}

// Message is the interface shared by Request and Response.
type Message interface {
	ProtocolVersion() string
	HasHeader(name string) bool
	Header(name string) []string
	HeaderLine(name string) string
	HeaderFields() Headers
	Body() stream.ReadableStream
}

var (
	_ Message = (*Request)(nil)
	_ Message = (*Response)(nil)
)
