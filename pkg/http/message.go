package http

import (
	"strings"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Protocol versions accepted by NewRequest, NewResponse and
// WithProtocolVersion.
const (
	Version10 = "1.0"
	Version11 = "1.1"
)

// message holds what requests and responses share. Copies made by With*
// methods never share header storage.
type message struct {
	version string
	headers headerMap
	body    stream.ReadableStream
}

func newMessage(body stream.ReadableStream) message {
	if body == nil {
		body = stream.Empty()
	}
	return message{version: Version11, body: body}
}

func filterVersion(version string) (string, error) {
	switch version {
	case Version10, Version11:
		return version, nil
	default:
		return "", errors.NewUnsupportedVersionError(version)
	}
}

func (m *message) copy() message {
	return message{version: m.version, headers: m.headers.clone(), body: m.body}
}

// ProtocolVersion returns "1.0" or "1.1".
func (m *message) ProtocolVersion() string { return m.version }

// HasHeader reports whether the header is present, ignoring case.
func (m *message) HasHeader(name string) bool { return m.headers.has(name) }

// Header returns a copy of the header's values, or nil.
func (m *message) Header(name string) []string { return m.headers.get(name) }

// HeaderLine returns the header's values joined by commas.
func (m *message) HeaderLine(name string) string {
	return strings.Join(m.headers.get(name), ",")
}

// Headers returns a copy of all headers keyed by their stored case.
func (m *message) Headers() map[string][]string { return m.headers.toMap() }

// HeaderFields returns the headers in wire order, one entry per value.
func (m *message) HeaderFields() Headers { return m.headers.list() }

// Body returns the message body. Only one consumer may read it.
func (m *message) Body() stream.ReadableStream { return m.body }
