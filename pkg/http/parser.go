package http

import (
	"io"

	"github.com/shapestone/shape-core/pkg/ast"

	"github.com/shapestone/shape-httpmsg/internal/parser"
)

// Parse parses a complete HTTP/1.x message into an AST.
//
// For requests:
//
//	{ "type": "request", "method": "GET", "target": "/api",
//	  "version": "HTTP/1.1",
//	  "headers": [{"key": "Host", "value": "example.com"}, ...],
//	  "body": "..." }
//
// For responses:
//
//	{ "type": "response", "version": "HTTP/1.1", "statusCode": 200,
//	  "reason": "OK",
//	  "headers": [{"key": "Content-Type", "value": "text/plain"}, ...],
//	  "body": "..." }
func Parse(input string) (ast.SchemaNode, error) {
	return parser.NewParser([]byte(input)).Parse()
}

// ParseReader reads all data from r and parses it as a message into an AST.
func ParseReader(r io.Reader) (ast.SchemaNode, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return parser.NewParser(data).Parse()
}
