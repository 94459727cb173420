package http

import (
	"github.com/shapestone/shape-core/pkg/ast"

	"github.com/shapestone/shape-httpmsg/internal/fastparser"
	"github.com/shapestone/shape-httpmsg/internal/parser"
)

// NodeToRequest converts an AST ObjectNode to a Request whose body is the
// node's "body" property.
func NodeToRequest(node ast.SchemaNode) (*Request, error) {
	fr, err := parser.NodeToRequest(node)
	if err != nil {
		return nil, err
	}
	return buildRequest(fr)
}

// NodeToResponse converts an AST ObjectNode to a Response whose body is the
// node's "body" property.
func NodeToResponse(node ast.SchemaNode) (*Response, error) {
	fr, err := parser.NodeToResponse(node)
	if err != nil {
		return nil, err
	}
	return buildResponse(fr)
}

// RequestToNode converts the head of req to an AST ObjectNode. Bodies are
// streams and are not read.
func RequestToNode(req *Request) ast.SchemaNode {
	return parser.RequestNode(&fastparser.Request{
		Method:  req.method,
		Target:  req.RequestTarget(),
		Version: "HTTP/" + req.version,
		Headers: internalHeaders(req.headers.list()),
	})
}

// ResponseToNode converts the head of resp to an AST ObjectNode.
func ResponseToNode(resp *Response) ast.SchemaNode {
	return parser.ResponseNode(&fastparser.Response{
		Version:    "HTTP/" + resp.version,
		StatusCode: resp.status,
		Reason:     resp.reason,
		Headers:    internalHeaders(resp.headers.list()),
	})
}

// NodeToInterface converts an AST node to native Go types.
func NodeToInterface(node ast.SchemaNode) interface{} {
	switch n := node.(type) {
	case *ast.LiteralNode:
		return n.Value()
	case *ast.ArrayDataNode:
		elements := n.Elements()
		arr := make([]interface{}, len(elements))
		for i, elem := range elements {
			arr[i] = NodeToInterface(elem)
		}
		return arr
	case *ast.ObjectNode:
		props := n.Properties()
		m := make(map[string]interface{}, len(props))
		for k, v := range props {
			m[k] = NodeToInterface(v)
		}
		return m
	default:
		return nil
	}
}

func internalHeaders(headers Headers) []fastparser.Header {
	out := make([]fastparser.Header, len(headers))
	for i, h := range headers {
		out[i] = fastparser.Header{Key: h.Key, Value: h.Value}
	}
	return out
}
