package http

import (
	"strconv"
	"strings"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// headerField is one stored header: the case it was last written with and
// its values in order.
type headerField struct {
	name   string
	values []string
}

// headerMap indexes headers by lowercase name. keys keeps first-insertion
// order so heads render deterministically.
type headerMap struct {
	keys   []string
	fields map[string]*headerField
}

// ValidHeaderName reports whether name is a header field name this package
// accepts: letters, digits and !#$%^&_|'~`-.
func ValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%^&_|'~`-", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// ValidHeaderValue reports whether every byte of v is a tab, visible ASCII,
// space, or Latin-1 (0x80-0xfe). CR and LF are never allowed.
func ValidHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\t' || (c >= 0x20 && c <= 0x7e) || (c >= 0x80 && c <= 0xfe) {
			continue
		}
		return false
	}
	return true
}

func checkHeader(name string, values []string) error {
	if !ValidHeaderName(name) {
		return errors.NewInvalidHeaderError("invalid header name " + strconv.Quote(name))
	}
	for _, v := range values {
		if !ValidHeaderValue(v) {
			return errors.NewInvalidHeaderError("invalid character in value of header " + name)
		}
	}
	return nil
}

// set replaces every value of name and adopts its case.
func (h *headerMap) set(name string, values []string) error {
	if err := checkHeader(name, values); err != nil {
		return err
	}
	key := strings.ToLower(name)
	if h.fields == nil {
		h.fields = make(map[string]*headerField)
	}
	if _, ok := h.fields[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.fields[key] = &headerField{name: name, values: append([]string(nil), values...)}
	return nil
}

// add appends values to name, keeping the case the header was first
// stored with.
func (h *headerMap) add(name string, values []string) error {
	if err := checkHeader(name, values); err != nil {
		return err
	}
	key := strings.ToLower(name)
	if f, ok := h.fields[key]; ok {
		f.values = append(f.values, values...)
		return nil
	}
	return h.set(name, values)
}

func (h *headerMap) del(name string) {
	key := strings.ToLower(name)
	if _, ok := h.fields[key]; !ok {
		return
	}
	delete(h.fields, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

func (h headerMap) has(name string) bool {
	_, ok := h.fields[strings.ToLower(name)]
	return ok
}

func (h headerMap) get(name string) []string {
	f, ok := h.fields[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return append([]string(nil), f.values...)
}

// clone deep-copies the map so that no value slice is shared.
func (h headerMap) clone() headerMap {
	c := headerMap{
		keys:   append([]string(nil), h.keys...),
		fields: make(map[string]*headerField, len(h.fields)),
	}
	for k, f := range h.fields {
		c.fields[k] = &headerField{name: f.name, values: append([]string(nil), f.values...)}
	}
	return c
}

// list flattens the map into wire order, one entry per value.
func (h headerMap) list() Headers {
	out := make(Headers, 0, len(h.keys))
	for _, k := range h.keys {
		f := h.fields[k]
		for _, v := range f.values {
			out = append(out, Header{Key: f.name, Value: v})
		}
	}
	return out
}

func (h headerMap) toMap() map[string][]string {
	out := make(map[string][]string, len(h.fields))
	for _, f := range h.fields {
		out[f.name] = append([]string(nil), f.values...)
	}
	return out
}
