package http

import (
	"fmt"
	"sync"
)

// bufPool pools []byte slices for head serialization.
var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 2048)
		return &b
	},
}

// Marshal returns the wire-format head of msg: start line, headers and the
// blank line. The body is not read; use an Encoder to send it.
//
// msg must be a *Request or *Response.
func Marshal(msg Message) ([]byte, error) {
	return marshalHead(msg, nil)
}

func marshalHead(msg Message, extra Headers) ([]byte, error) {
	bp := bufPool.Get().(*[]byte)
	buf := (*bp)[:0]
	defer func() {
		*bp = buf
		bufPool.Put(bp)
	}()

	switch m := msg.(type) {
	case *Request:
		buf = appendRequestHead(buf, m, extra)
	case *Response:
		buf = appendResponseHead(buf, m, extra)
	default:
		return nil, fmt.Errorf("http: Marshal unsupported type %T (expected *Request or *Response)", msg)
	}

	result := make([]byte, len(buf))
	copy(result, buf)
	return result, nil
}
