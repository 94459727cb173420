package http

import (
	"github.com/shapestone/shape-httpmsg/internal/fastparser"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

// Unmarshal parses a complete message held in data, head and body.
//
// The result is a *Request, or a *Response when data starts with "HTTP/".
// Chunked bodies are de-framed and the headers rewritten to a
// Content-Length, so the message re-encodes self-consistently.
func Unmarshal(data []byte) (Message, error) {
	if fastparser.IsResponse(data) {
		return UnmarshalResponse(data)
	}
	return UnmarshalRequest(data)
}

// UnmarshalRequest parses data as a complete request.
func UnmarshalRequest(data []byte) (*Request, error) {
	fr, err := fastparser.UnmarshalRequest(data)
	if err != nil {
		return nil, err
	}
	return buildRequest(fr)
}

// UnmarshalResponse parses data as a complete response.
func UnmarshalResponse(data []byte) (*Response, error) {
	fr, err := fastparser.UnmarshalResponse(data)
	if err != nil {
		return nil, err
	}
	return buildResponse(fr)
}

// DetectMessageType returns "request" or "response" based on the data prefix.
func DetectMessageType(data []byte) string {
	if fastparser.IsResponse(data) {
		return "response"
	}
	return "request"
}

func buildRequest(fr *fastparser.Request) (*Request, error) {
	version, err := wireVersion(fr.Version)
	if err != nil {
		return nil, err
	}
	headers := convertHeaders(fr.Headers)
	u, err := requestURI(fr.Target, headers.Get("Host"))
	if err != nil {
		return nil, err
	}
	req, err := NewRequestWithURI(fr.Method, u, headers, stream.FromBytes(fr.Body))
	if err != nil {
		return nil, err
	}
	if req, err = req.WithRequestTarget(fr.Target); err != nil {
		return nil, err
	}
	return req.WithProtocolVersion(version)
}

func buildResponse(fr *fastparser.Response) (*Response, error) {
	version, err := wireVersion(fr.Version)
	if err != nil {
		return nil, err
	}
	resp, err := NewResponse(fr.StatusCode, convertHeaders(fr.Headers), stream.FromBytes(fr.Body))
	if err != nil {
		return nil, err
	}
	if resp, err = resp.WithStatus(fr.StatusCode, fr.Reason); err != nil {
		return nil, err
	}
	return resp.WithProtocolVersion(version)
}
