package http

import (
	"bytes"
	"io"
)

// Validate checks that input is a complete HTTP/1.x message this package
// accepts: the start line parses, the version is 1.0 or 1.1, every header
// name and value fits the header grammar and the body matches its framing.
// Returns nil if valid, or an error identifying the problem.
func Validate(input string) error {
	_, err := Unmarshal([]byte(input))
	return err
}

// ValidateReader reads all data from r and validates it as a message.
// See Validate for the validation semantics.
func ValidateReader(r io.Reader) error {
	data, err := readAll(r)
	if err != nil {
		return err
	}
	_, err = Unmarshal(data)
	return err
}

func readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
