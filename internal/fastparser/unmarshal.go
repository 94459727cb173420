package fastparser

import (
	"bytes"
)

// UnmarshalRequest parses data as a complete request.
func UnmarshalRequest(data []byte) (*Request, error) {
	var p Parser
	initParser(&p, data)
	return p.ParseRequest()
}

// UnmarshalResponse parses data as a complete response.
func UnmarshalResponse(data []byte) (*Response, error) {
	var p Parser
	initParser(&p, data)
	return p.ParseResponse()
}

// Unmarshal parses data as a response when it starts with "HTTP/", else as
// a request.
func Unmarshal(data []byte) (interface{}, error) {
	if IsResponse(data) {
		return UnmarshalResponse(data)
	}
	return UnmarshalRequest(data)
}

// IsResponse reports whether data starts with a status line.
func IsResponse(data []byte) bool {
	return bytes.HasPrefix(data, []byte("HTTP/"))
}

// Validate checks that data parses as a message.
func Validate(data []byte) error {
	_, err := Unmarshal(data)
	return err
}

// HeadEnd returns the length of the head in data, including the blank line
// that ends it, or -1 when the head is incomplete.
func HeadEnd(data []byte) int {
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			return i + 2
		}
		if i+2 < len(data) && data[i+1] == '\r' && data[i+2] == '\n' {
			return i + 3
		}
	}
	return -1
}
