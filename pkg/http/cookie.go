package http

import (
	"net/url"
	"strings"
	"time"

	"github.com/shapestone/shape-httpmsg/internal/tokenizer"
	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// cookieExpiresLayout is the Set-Cookie expires format.
const cookieExpiresLayout = "Mon, 02-Jan-2006 15:04:05 GMT"

// deletedCookieAge is how far in the past a deletion line expires.
const deletedCookieAge = 31536001 * time.Second

// now is the clock used for deletion lines. Tests replace it.
var now = time.Now

// CookieAttributes are the optional parts of a Set-Cookie line.
type CookieAttributes struct {
	Expires  time.Time // zero means a session cookie
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
}

// cookie is one stored cookie. line is the formatted Set-Cookie value and is
// only used on responses.
type cookie struct {
	name  string
	value string
	line  string
}

// cookieMap is ordered and looked up case-insensitively; an overwrite adopts
// the new name's case.
type cookieMap []cookie

func (c cookieMap) index(name string) int {
	for i := range c {
		if strings.EqualFold(c[i].name, name) {
			return i
		}
	}
	return -1
}

func (c cookieMap) get(name string) (string, bool) {
	if i := c.index(name); i >= 0 {
		return c[i].value, true
	}
	return "", false
}

func (c *cookieMap) put(ck cookie) {
	if i := c.index(ck.name); i >= 0 {
		(*c)[i] = ck
		return
	}
	*c = append(*c, ck)
}

func (c *cookieMap) remove(name string) bool {
	i := c.index(name)
	if i < 0 {
		return false
	}
	*c = append((*c)[:i:i], (*c)[i+1:]...)
	return true
}

func (c cookieMap) clone() cookieMap {
	if c == nil {
		return nil
	}
	return append(cookieMap(nil), c...)
}

func (c cookieMap) toMap() map[string]string {
	out := make(map[string]string, len(c))
	for _, ck := range c {
		out[ck.name] = ck.value
	}
	return out
}

// checkCookie trims and validates a cookie pair for a Cookie header.
func checkCookie(name, value string) (string, string, error) {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return "", "", errors.NewInvalidValueError("cookie name is empty")
	}
	if strings.ContainsAny(name, ";= \t") {
		return "", "", errors.NewInvalidValueError("cookie name " + name + " contains a separator")
	}
	if strings.IndexByte(value, ';') >= 0 {
		return "", "", errors.NewInvalidValueError("value of cookie " + name + " contains ';'")
	}
	return name, value, nil
}

// parseCookieHeader reads Cookie header lines into a cookie map. Later pairs
// overwrite earlier ones with the same name.
func parseCookieHeader(lines []string) cookieMap {
	var c cookieMap
	for _, line := range lines {
		for _, p := range tokenizer.ParseCookiePairs(line) {
			c.put(cookie{name: p.Name, value: p.Value})
		}
	}
	return c
}

func (c cookieMap) cookieHeader() string {
	parts := make([]string, len(c))
	for i, ck := range c {
		parts[i] = ck.name + "=" + ck.value
	}
	return strings.Join(parts, "; ")
}

// formatSetCookie renders a Set-Cookie value. An empty value renders a
// deletion line that expires a year and a second ago.
func formatSetCookie(name, value string, attrs CookieAttributes) string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(name))
	b.WriteByte('=')
	if value == "" {
		b.WriteString("deleted; expires=")
		b.WriteString(now().Add(-deletedCookieAge).UTC().Format(cookieExpiresLayout))
	} else {
		b.WriteString(url.QueryEscape(value))
		if !attrs.Expires.IsZero() {
			b.WriteString("; expires=")
			b.WriteString(attrs.Expires.UTC().Format(cookieExpiresLayout))
		}
	}
	if attrs.Path != "" {
		b.WriteString("; path=")
		b.WriteString(attrs.Path)
	}
	if attrs.Domain != "" {
		b.WriteString("; domain=")
		b.WriteString(attrs.Domain)
	}
	if attrs.Secure {
		b.WriteString("; secure")
	}
	if attrs.HTTPOnly {
		b.WriteString("; httponly")
	}
	return b.String()
}

// parseSetCookie reads the name and value from the first segment of a
// Set-Cookie line.
func parseSetCookie(line string) (cookie, bool) {
	first, _, _ := strings.Cut(line, ";")
	name, value, _ := strings.Cut(first, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return cookie{}, false
	}
	value = strings.TrimSpace(value)
	if n, err := url.QueryUnescape(name); err == nil {
		name = n
	}
	if v, err := url.QueryUnescape(value); err == nil {
		value = v
	}
	return cookie{name: name, value: value, line: line}, true
}

func parseSetCookieHeader(lines []string) cookieMap {
	var c cookieMap
	for _, line := range lines {
		if ck, ok := parseSetCookie(line); ok {
			c.put(ck)
		}
	}
	return c
}

func (c cookieMap) setCookieLines() []string {
	lines := make([]string, len(c))
	for i, ck := range c {
		lines[i] = ck.line
	}
	return lines
}
