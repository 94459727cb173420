package http_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/shapestone/shape-httpmsg/pkg/http"
	"github.com/shapestone/shape-httpmsg/pkg/stream"
)

func ExampleNewRequest() {
	req, err := http.NewRequest("post", "http://example.com:8080/items?id=1", http.Headers{
		{Key: "Content-Type", Value: "text/plain"},
	}, stream.FromString("hello"))
	if err != nil {
		panic(err)
	}
	req, _ = req.WithCookie("session", "abc")

	var wire bytes.Buffer
	if err := http.NewEncoder(&wire).EncodeRequest(context.Background(), req); err != nil {
		panic(err)
	}
	fmt.Println(strings.ReplaceAll(wire.String(), "\r\n", "\n"))
	// Output:
	// POST /items?id=1 HTTP/1.1
	// Content-Type: text/plain
	// Host: example.com:8080
	// Cookie: session=abc
	// Content-Length: 5
	//
	// hello
}

func ExampleDecoder_DecodeResponse() {
	wire := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"

	ctx := context.Background()
	resp, err := http.NewDecoder(strings.NewReader(wire)).DecodeResponse(ctx)
	if err != nil {
		panic(err)
	}
	body, err := stream.ReadAll(ctx, resp.Body())
	if err != nil {
		panic(err)
	}
	fmt.Println(resp.StatusCode(), resp.ReasonPhrase(), resp.HeaderLine("content-type"))
	fmt.Println(string(body))
	// Output:
	// 200 OK text/plain
	// hello
}
