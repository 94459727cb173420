package http

import (
	"reflect"
	"testing"
	"time"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

func TestNewResponse(t *testing.T) {
	tests := []struct {
		code    int
		reason  string
		wantErr bool
	}{
		{200, "OK", false},
		{413, "Request Entity Too Large", false},
		{100, "Continue", false},
		{599, "", false},
		{99, "", true},
		{600, "", true},
		{0, "", true},
	}
	for _, tt := range tests {
		resp, err := NewResponse(tt.code, nil, nil)
		if tt.wantErr {
			if !errors.Is(err, errors.ErrInvalidValue) {
				t.Errorf("NewResponse(%d) error = %v, want ErrInvalidValue", tt.code, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewResponse(%d) error = %v", tt.code, err)
		}
		if resp.StatusCode() != tt.code || resp.ReasonPhrase() != tt.reason {
			t.Errorf("NewResponse(%d) = %d %q, want %q", tt.code, resp.StatusCode(), resp.ReasonPhrase(), tt.reason)
		}
	}
}

func TestResponse_WithStatus(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)

	nf, err := resp.WithStatus(StatusNotFound, "")
	if err != nil || nf.ReasonPhrase() != "Not Found" {
		t.Errorf("WithStatus(404, \"\") = %v, %v", nf, err)
	}
	custom, _ := resp.WithStatus(StatusOK, "Fine")
	if custom.ReasonPhrase() != "Fine" || resp.ReasonPhrase() != "OK" {
		t.Errorf("reason = %q, original %q", custom.ReasonPhrase(), resp.ReasonPhrase())
	}
	if _, err := resp.WithStatus(StatusOK, "bad\r\n"); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("WithStatus with CRLF reason error = %v", err)
	}
	if _, err := resp.WithStatus(1000, ""); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("WithStatus(1000) error = %v", err)
	}
}

func TestResponse_WithCookie(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)

	next, err := resp.WithCookie("foo", "bar", CookieAttributes{})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := next.Cookie("foo"); !ok || v != "bar" {
		t.Errorf("Cookie(foo) = %q, %v, want bar", v, ok)
	}
	if got := next.Header("Set-Cookie"); !reflect.DeepEqual(got, []string{"foo=bar"}) {
		t.Errorf("Set-Cookie = %v, want [foo=bar]", got)
	}
	if resp.HasHeader("Set-Cookie") || resp.HasCookie("foo") {
		t.Error("original response changed")
	}
}

func TestResponse_CookieAttributes(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)
	next, err := resp.WithCookie("foo", "bar", CookieAttributes{
		Expires:  time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Path:     "/",
		Domain:   "example.com",
		Secure:   true,
		HTTPOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "foo=bar; expires=Wed, 02-Jan-2030 03:04:05 GMT; path=/; domain=example.com; secure; httponly"
	if got := next.HeaderLine("Set-Cookie"); got != want {
		t.Errorf("Set-Cookie = %q, want %q", got, want)
	}
}

func TestResponse_DeleteCookie(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	resp, _ := NewResponse(StatusOK, nil, nil)
	next, err := resp.WithCookie("foo", "", CookieAttributes{Path: "/"})
	if err != nil {
		t.Fatal(err)
	}

	want := "foo=deleted; expires=Fri, 02-Jun-2023 11:59:59 GMT; path=/"
	if got := next.HeaderLine("Set-Cookie"); got != want {
		t.Errorf("Set-Cookie = %q, want %q", got, want)
	}
	if v, ok := next.Cookie("foo"); !ok || v != "" {
		t.Errorf("Cookie(foo) = %q, %v, want empty", v, ok)
	}
}

func TestResponse_CookieEncoding(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)
	next, _ := resp.WithCookie(" a b ", "c&d=e", CookieAttributes{})
	if got := next.HeaderLine("Set-Cookie"); got != "a+b=c%26d%3De" {
		t.Errorf("Set-Cookie = %q", got)
	}
	if v, _ := next.Cookie("a b"); v != "c&d=e" {
		t.Errorf("Cookie(a b) = %q, want raw value", v)
	}
}

func TestResponse_MultipleCookies(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)
	resp, _ = resp.WithCookie("a", "1", CookieAttributes{})
	resp, _ = resp.WithCookie("b", "2", CookieAttributes{HTTPOnly: true})
	resp, _ = resp.WithCookie("A", "3", CookieAttributes{})

	want := []string{"A=3", "b=2; httponly"}
	if got := resp.Header("Set-Cookie"); !reflect.DeepEqual(got, want) {
		t.Errorf("Set-Cookie = %v, want %v", got, want)
	}

	resp, _ = resp.WithoutCookie("a")
	if got := resp.Header("Set-Cookie"); !reflect.DeepEqual(got, []string{"b=2; httponly"}) {
		t.Errorf("after WithoutCookie Set-Cookie = %v", got)
	}
	resp, _ = resp.WithoutCookie("b")
	if resp.HasHeader("Set-Cookie") {
		t.Error("Set-Cookie kept after removing every cookie")
	}
}

func TestResponse_SetCookieHeaderReparses(t *testing.T) {
	resp, err := NewResponse(StatusOK, Headers{
		{Key: "Set-Cookie", Value: "session=abc123; Path=/; HttpOnly"},
		{Key: "set-cookie", Value: "theme=dark"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := map[string]string{"session": "abc123", "theme": "dark"}; !reflect.DeepEqual(resp.Cookies(), want) {
		t.Errorf("Cookies() = %v, want %v", resp.Cookies(), want)
	}

	replaced, _ := resp.WithHeader("Set-Cookie", "only=1")
	if want := map[string]string{"only": "1"}; !reflect.DeepEqual(replaced.Cookies(), want) {
		t.Errorf("Cookies() = %v, want %v", replaced.Cookies(), want)
	}

	cleared := resp.WithoutHeader("SET-COOKIE")
	if len(cleared.Cookies()) != 0 {
		t.Errorf("Cookies() = %v after removing Set-Cookie", cleared.Cookies())
	}
}

func TestResponse_WithCookieInvalid(t *testing.T) {
	resp, _ := NewResponse(StatusOK, nil, nil)
	if _, err := resp.WithCookie(" ", "x", CookieAttributes{}); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("empty name error = %v", err)
	}
	if _, err := resp.WithCookie("a", "x", CookieAttributes{Path: "/; secure"}); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("path with ';' error = %v", err)
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{StatusOK, "OK"},
		{StatusBadRequest, "Bad Request"},
		{StatusRequestEntityTooLarge, "Request Entity Too Large"},
		{StatusHTTPVersionNotSupported, "HTTP Version Not Supported"},
		{299, ""},
	}
	for _, tt := range tests {
		if got := StatusText(tt.code); got != tt.want {
			t.Errorf("StatusText(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
