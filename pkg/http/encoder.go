package http

// appendRequestHead serializes the request line and headers, ending with
// the blank line that precedes the body.
func appendRequestHead(buf []byte, req *Request, extra Headers) []byte {
	buf = appendRequestLine(buf, req.method, req.RequestTarget(), req.version)
	buf = appendHeaders(buf, req.headers.list())
	buf = appendHeaders(buf, extra)
	return appendCRLF(buf)
}

// appendResponseHead serializes the status line and headers, ending with
// the blank line that precedes the body.
func appendResponseHead(buf []byte, resp *Response, extra Headers) []byte {
	buf = appendStatusLine(buf, resp.version, resp.status, resp.reason)
	buf = appendHeaders(buf, resp.headers.list())
	buf = appendHeaders(buf, extra)
	return appendCRLF(buf)
}

// appendHeaders appends all headers in "Key: Value\r\n" format.
func appendHeaders(buf []byte, headers Headers) []byte {
	for _, h := range headers {
		buf = append(buf, h.Key...)
		buf = append(buf, ':', ' ')
		buf = append(buf, h.Value...)
		buf = appendCRLF(buf)
	}
	return buf
}
