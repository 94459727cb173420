package uri

import (
	"sort"
	"strings"
)

// ParseQuery splits a query string on '&' and each pair on its first '='.
// Names and values are form-decoded. A pair without '=' gets the empty value
// and pairs with an empty name are dropped. Values keep their order of
// appearance within a name.
func ParseQuery(query string) map[string][]string {
	query = strings.TrimPrefix(query, "?")
	fields := make(map[string][]string)
	if query == "" {
		return fields
	}
	for _, pair := range strings.Split(query, "&") {
		name, value, _ := strings.Cut(pair, "=")
		name = unescapeQuery(name)
		if name == "" {
			continue
		}
		fields[name] = append(fields[name], unescapeQuery(value))
	}
	return fields
}

// EncodeQuery renders q with names sorted lexicographically. A name whose
// value is empty is rendered without '='.
func EncodeQuery(q map[string][]string) string {
	if len(q) == 0 {
		return ""
	}
	var b strings.Builder
	for _, name := range sortedNames(q) {
		for _, v := range q[name] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(Escape(name))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(Escape(v))
			}
		}
	}
	return b.String()
}

func sortedNames(q map[string][]string) []string {
	names := make([]string, 0, len(q))
	for k := range q {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func cloneQuery(q map[string][]string) map[string][]string {
	out := make(map[string][]string, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
