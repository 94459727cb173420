// Package fastparser scans HTTP/1.x start lines and header blocks directly
// from bytes. The message model builds validated requests and responses on
// top of its lexical output.
package fastparser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Request is a lexically parsed request.
type Request struct {
	Method  string
	Target  string
	Version string // "HTTP/1.1"
	Headers []Header
	Body    []byte
}

// Response is a lexically parsed response.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

// Header is a key-value pair in wire order.
type Header struct {
	Key   string
	Value string
}

// Parser scans a byte slice holding a message head, optionally followed by
// its body.
type Parser struct {
	data   []byte
	pos    int
	length int
	line   int // 1-indexed line number for error reporting
}

// NewParser creates a parser over data.
func NewParser(data []byte) *Parser {
	return &Parser{data: data, length: len(data), line: 1}
}

// initParser initializes a parser in place.
func initParser(p *Parser, data []byte) {
	p.data = data
	p.pos = 0
	p.length = len(data)
	p.line = 1
}

// Offset returns the position just past what has been parsed.
func (p *Parser) Offset() int { return p.pos }

// ParseRequestHead parses the request line and headers.
func (p *Parser) ParseRequestHead() (*Request, error) {
	method, target, version, err := p.parseRequestLine()
	if err != nil {
		return nil, err
	}
	headers, err := p.parseHeaders()
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, Target: target, Version: version, Headers: headers}, nil
}

// ParseResponseHead parses the status line and headers.
func (p *Parser) ParseResponseHead() (*Response, error) {
	version, code, reason, err := p.parseStatusLine()
	if err != nil {
		return nil, err
	}
	headers, err := p.parseHeaders()
	if err != nil {
		return nil, err
	}
	return &Response{Version: version, StatusCode: code, Reason: reason, Headers: headers}, nil
}

// ParseRequest parses a complete request including its body.
func (p *Parser) ParseRequest() (*Request, error) {
	req, err := p.ParseRequestHead()
	if err != nil {
		return nil, err
	}
	req.Headers, req.Body, err = p.parseBody(req.Headers)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ParseResponse parses a complete response including its body.
func (p *Parser) ParseResponse() (*Response, error) {
	resp, err := p.ParseResponseHead()
	if err != nil {
		return nil, err
	}
	resp.Headers, resp.Body, err = p.parseBody(resp.Headers)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// parseRequestLine parses "METHOD SP TARGET SP VERSION CRLF".
func (p *Parser) parseRequestLine() (method, target, version string, err error) {
	line, err := p.readLine()
	if err != nil {
		return "", "", "", p.errorf("missing request line")
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", "", "", p.errorf("malformed request line: no method separator")
	}
	method = internMethod(line[:sp1])

	rest := line[sp1+1:]
	sp2 := bytes.LastIndexByte(rest, ' ')
	if sp2 < 0 {
		return "", "", "", p.errorf("malformed request line: no version separator")
	}
	target = string(rest[:sp2])
	version = internVersion(rest[sp2+1:])

	if method == "" {
		return "", "", "", p.errorf("empty request method")
	}
	if target == "" {
		return "", "", "", p.errorf("empty request target")
	}
	if !bytes.HasPrefix(rest[sp2+1:], []byte("HTTP/")) {
		return "", "", "", p.errorf("malformed protocol version %q", rest[sp2+1:])
	}
	return method, target, version, nil
}

// parseStatusLine parses "VERSION SP STATUS [SP REASON] CRLF".
func (p *Parser) parseStatusLine() (version string, statusCode int, reason string, err error) {
	line, err := p.readLine()
	if err != nil {
		return "", 0, "", p.errorf("missing status line")
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", 0, "", p.errorf("malformed status line: no version separator")
	}
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return "", 0, "", p.errorf("malformed protocol version %q", line[:sp1])
	}
	version = internVersion(line[:sp1])

	rest := line[sp1+1:]
	codeBytes := rest
	if sp2 := bytes.IndexByte(rest, ' '); sp2 >= 0 {
		codeBytes = rest[:sp2]
		reason = internReason(rest[sp2+1:])
	}
	if len(codeBytes) != 3 {
		return "", 0, "", p.errorf("invalid status code: %s", codeBytes)
	}
	code, convErr := strconv.Atoi(string(codeBytes))
	if convErr != nil || code < 100 {
		return "", 0, "", p.errorf("invalid status code: %s", codeBytes)
	}
	return version, code, reason, nil
}

// parseHeaders parses header lines up to and including the empty line.
func (p *Parser) parseHeaders() ([]Header, error) {
	headers := make([]Header, 0, 8)

	for {
		if p.pos >= p.length {
			// End of data without empty line: the header section is complete.
			return headers, nil
		}
		if p.data[p.pos] == '\r' && p.pos+1 < p.length && p.data[p.pos+1] == '\n' {
			p.pos += 2
			p.line++
			return headers, nil
		}
		if p.data[p.pos] == '\n' {
			p.pos++
			p.line++
			return headers, nil
		}

		line, err := p.readLine()
		if err != nil {
			return headers, nil
		}

		// obs-fold: a continuation line starting with SP/HTAB joins with one SP
		for p.pos < p.length && (p.data[p.pos] == ' ' || p.data[p.pos] == '\t') {
			cont, contErr := p.readLine()
			if contErr != nil {
				break
			}
			line = append(line[:len(line):len(line)], ' ')
			line = append(line, bytes.TrimLeft(cont, " \t")...)
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, p.errorf("malformed header line: %q", line)
		}
		keyBytes := line[:colon]

		// RFC 9112: no whitespace between field-name and colon
		if line[colon-1] == ' ' || line[colon-1] == '\t' {
			return nil, p.errorf("whitespace before colon in header name: %q", keyBytes)
		}

		headers = append(headers, Header{
			Key:   internHeaderName(keyBytes),
			Value: string(trimOWS(line[colon+1:])),
		})
	}
}

// parseBody reads the body that follows the head in data.
// Per RFC 9112: chunked framing wins, then Content-Length, then the rest of
// the input.
func (p *Parser) parseBody(headers []Header) ([]Header, []byte, error) {
	if IsChunked(headers) {
		br := bufio.NewReader(bytes.NewReader(p.data[p.pos:]))
		body, err := stream.ReadAll(context.Background(), stream.NewChunkedReader(br, nil))
		if err != nil {
			return nil, nil, err
		}
		p.pos = p.length - br.Buffered()
		if len(body) == 0 {
			body = nil
		}
		return normalizeChunkedHeaders(headers, len(body)), body, nil
	}

	cl := ContentLength(headers)
	if cl >= 0 {
		if int64(p.length-p.pos) < cl {
			return nil, nil, p.errorf("body truncated: expected %d bytes but only %d available", cl, p.length-p.pos)
		}
		body := make([]byte, cl)
		copy(body, p.data[p.pos:p.pos+int(cl)])
		p.pos += int(cl)
		return headers, body, nil
	}

	if p.pos >= p.length {
		return headers, nil, nil
	}
	body := make([]byte, p.length-p.pos)
	copy(body, p.data[p.pos:])
	p.pos = p.length
	return headers, body, nil
}

// readLine reads bytes until CRLF or LF, advancing pos. The line ending is
// not included.
func (p *Parser) readLine() ([]byte, error) {
	if p.pos >= p.length {
		return nil, fmt.Errorf("unexpected end of input at line %d", p.line)
	}

	start := p.pos
	for p.pos < p.length {
		if p.data[p.pos] == '\r' && p.pos+1 < p.length && p.data[p.pos+1] == '\n' {
			line := p.data[start:p.pos]
			p.pos += 2
			p.line++
			return line, nil
		}
		if p.data[p.pos] == '\n' {
			line := p.data[start:p.pos]
			p.pos++
			p.line++
			return line, nil
		}
		p.pos++
	}
	return p.data[start:p.pos], nil
}

// trimOWS trims optional whitespace (SP and HTAB) from both ends of b.
func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

// IsChunked reports whether Transfer-Encoding names chunked.
func IsChunked(headers []Header) bool {
	for _, h := range headers {
		if eqFold(h.Key, "Transfer-Encoding") && containsFold(h.Value, "chunked") {
			return true
		}
	}
	return false
}

// ContentLength returns the Content-Length value, or -1 if absent or
// invalid.
func ContentLength(headers []Header) int64 {
	for _, h := range headers {
		if eqFold(h.Key, "Content-Length") {
			n, err := strconv.ParseInt(string(trimOWS([]byte(h.Value))), 10, 64)
			if err != nil || n < 0 {
				return -1
			}
			return n
		}
	}
	return -1
}

// normalizeChunkedHeaders drops chunked from Transfer-Encoding and records
// the decoded length, so a fully read message re-marshals self-consistently.
func normalizeChunkedHeaders(headers []Header, bodyLen int) []Header {
	out := make([]Header, 0, len(headers)+1)
	hasContentLength := false
	for _, h := range headers {
		switch {
		case eqFold(h.Key, "Transfer-Encoding"):
			if stripped := stripChunked(h.Value); stripped != "" {
				out = append(out, Header{Key: h.Key, Value: stripped})
			}
		case eqFold(h.Key, "Content-Length"):
			out = append(out, Header{Key: h.Key, Value: strconv.Itoa(bodyLen)})
			hasContentLength = true
		default:
			out = append(out, h)
		}
	}
	if !hasContentLength {
		out = append(out, Header{Key: "Content-Length", Value: strconv.Itoa(bodyLen)})
	}
	return out
}

// stripChunked removes the chunked token from a Transfer-Encoding value.
func stripChunked(value string) string {
	if eqFold(value, "chunked") {
		return ""
	}
	var out []byte
	for _, part := range bytes.Split([]byte(value), []byte(",")) {
		part = trimOWS(part)
		if len(part) == 0 || eqFold(string(part), "chunked") {
			continue
		}
		if len(out) > 0 {
			out = append(out, ',', ' ')
		}
		out = append(out, part...)
	}
	return string(out)
}

// eqFold is an ASCII case-insensitive string comparison.
func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// containsFold reports whether haystack contains needle, ignoring ASCII case.
func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	for i := 0; i <= hl-nl; i++ {
		if eqFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return errors.NewParseError(fmt.Sprintf(format, args...), p.line)
}
