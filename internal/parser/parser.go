// Package parser maps HTTP/1.x messages to shape-core AST nodes and back.
//
// A request becomes
//
//	{ "type": "request", "method": "POST", "target": "/api?x=1",
//	  "version": "HTTP/1.1",
//	  "headers": [{"key": "Host", "value": "example.com"}, ...],
//	  "body": "..." }
//
// and a response
//
//	{ "type": "response", "version": "HTTP/1.1", "statusCode": 200,
//	  "reason": "OK",
//	  "headers": [{"key": "Content-Type", "value": "text/plain"}, ...],
//	  "body": "..." }
//
// "body" is present only when the message has one.
package parser

import (
	"fmt"
	"strconv"

	"github.com/shapestone/shape-core/pkg/ast"

	"github.com/shapestone/shape-httpmsg/internal/fastparser"
)

var zeroPos = ast.Position{}

// Parser produces AST nodes from HTTP wire-format data.
type Parser struct {
	data []byte
}

// NewParser creates a new AST parser for the given input.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Parse parses a complete message and returns its ObjectNode.
func (p *Parser) Parse() (ast.SchemaNode, error) {
	if fastparser.IsResponse(p.data) {
		resp, err := fastparser.UnmarshalResponse(p.data)
		if err != nil {
			return nil, err
		}
		return ResponseNode(resp), nil
	}
	req, err := fastparser.UnmarshalRequest(p.data)
	if err != nil {
		return nil, err
	}
	return RequestNode(req), nil
}

// RequestNode maps a lexical request to its ObjectNode.
func RequestNode(req *fastparser.Request) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"type":    literal("request"),
		"method":  literal(req.Method),
		"target":  literal(req.Target),
		"version": literal(req.Version),
		"headers": HeadersNode(req.Headers),
	}
	if req.Body != nil {
		props["body"] = literal(string(req.Body))
	}
	return ast.NewObjectNode(props, zeroPos)
}

// ResponseNode maps a lexical response to its ObjectNode.
func ResponseNode(resp *fastparser.Response) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"type":       literal("response"),
		"version":    literal(resp.Version),
		"statusCode": ast.NewLiteralNode(int64(resp.StatusCode), zeroPos),
		"reason":     literal(resp.Reason),
		"headers":    HeadersNode(resp.Headers),
	}
	if resp.Body != nil {
		props["body"] = literal(string(resp.Body))
	}
	return ast.NewObjectNode(props, zeroPos)
}

// HeadersNode maps headers to an array of {key, value} objects.
func HeadersNode(headers []fastparser.Header) ast.SchemaNode {
	elements := make([]ast.SchemaNode, len(headers))
	for i, h := range headers {
		elements[i] = ast.NewObjectNode(map[string]ast.SchemaNode{
			"key":   literal(h.Key),
			"value": literal(h.Value),
		}, zeroPos)
	}
	return ast.NewArrayDataNode(elements, zeroPos)
}

func literal(s string) ast.SchemaNode {
	return ast.NewLiteralNode(s, zeroPos)
}

// MessageType returns the "type" property of a message node.
func MessageType(node ast.SchemaNode) (string, error) {
	props, err := properties(node)
	if err != nil {
		return "", err
	}
	t, ok := stringProp(props, "type")
	if !ok {
		return "", fmt.Errorf("missing 'type' property")
	}
	return t, nil
}

// NodeToRequest converts an ObjectNode back to a lexical request.
func NodeToRequest(node ast.SchemaNode) (*fastparser.Request, error) {
	props, err := properties(node)
	if err != nil {
		return nil, err
	}
	req := &fastparser.Request{}
	req.Method, _ = stringProp(props, "method")
	req.Target, _ = stringProp(props, "target")
	req.Version, _ = stringProp(props, "version")
	if req.Headers, err = headersProp(props); err != nil {
		return nil, err
	}
	if body, ok := stringProp(props, "body"); ok {
		req.Body = []byte(body)
	}
	return req, nil
}

// NodeToResponse converts an ObjectNode back to a lexical response.
func NodeToResponse(node ast.SchemaNode) (*fastparser.Response, error) {
	props, err := properties(node)
	if err != nil {
		return nil, err
	}
	resp := &fastparser.Response{}
	resp.Version, _ = stringProp(props, "version")
	resp.Reason, _ = stringProp(props, "reason")
	if v, ok := props["statusCode"].(*ast.LiteralNode); ok {
		switch code := v.Value().(type) {
		case int64:
			resp.StatusCode = int(code)
		case float64:
			resp.StatusCode = int(code)
		case string:
			resp.StatusCode, _ = strconv.Atoi(code)
		}
	}
	if resp.Headers, err = headersProp(props); err != nil {
		return nil, err
	}
	if body, ok := stringProp(props, "body"); ok {
		resp.Body = []byte(body)
	}
	return resp, nil
}

func properties(node ast.SchemaNode) (map[string]ast.SchemaNode, error) {
	obj, ok := node.(*ast.ObjectNode)
	if !ok {
		return nil, fmt.Errorf("expected ObjectNode, got %T", node)
	}
	return obj.Properties(), nil
}

func stringProp(props map[string]ast.SchemaNode, name string) (string, bool) {
	lit, ok := props[name].(*ast.LiteralNode)
	if !ok {
		return "", false
	}
	s, ok := lit.Value().(string)
	return s, ok
}

func headersProp(props map[string]ast.SchemaNode) ([]fastparser.Header, error) {
	node, ok := props["headers"]
	if !ok {
		return nil, nil
	}
	arr, ok := node.(*ast.ArrayDataNode)
	if !ok {
		return nil, fmt.Errorf("expected ArrayDataNode for headers, got %T", node)
	}
	headers := make([]fastparser.Header, 0, len(arr.Elements()))
	for _, elem := range arr.Elements() {
		obj, ok := elem.(*ast.ObjectNode)
		if !ok {
			continue
		}
		var h fastparser.Header
		h.Key, _ = stringProp(obj.Properties(), "key")
		h.Value, _ = stringProp(obj.Properties(), "value")
		headers = append(headers, h)
	}
	return headers, nil
}
