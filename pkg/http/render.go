package http

import (
	"fmt"

	"github.com/shapestone/shape-core/pkg/ast"

	"github.com/shapestone/shape-httpmsg/internal/parser"
)

// Render converts an AST node from Parse back to wire format, head and
// body. The node passes through the message model, so headers are
// validated and the start line is canonical.
func Render(node ast.SchemaNode) ([]byte, error) {
	msgType, err := parser.MessageType(node)
	if err != nil {
		return nil, fmt.Errorf("http: Render: %w", err)
	}

	var (
		msg  Message
		body []byte
	)
	switch msgType {
	case "request":
		fr, err := parser.NodeToRequest(node)
		if err != nil {
			return nil, fmt.Errorf("http: Render: %w", err)
		}
		if msg, err = buildRequest(fr); err != nil {
			return nil, fmt.Errorf("http: Render: %w", err)
		}
		body = fr.Body
	case "response":
		fr, err := parser.NodeToResponse(node)
		if err != nil {
			return nil, fmt.Errorf("http: Render: %w", err)
		}
		if msg, err = buildResponse(fr); err != nil {
			return nil, fmt.Errorf("http: Render: %w", err)
		}
		body = fr.Body
	default:
		return nil, fmt.Errorf("http: Render: unknown message type %q", msgType)
	}

	head, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(head, body...), nil
}
