package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/shapestone/shape-core/pkg/tokenizer"
)

// NewCookieTokenizer creates a tokenizer for Cookie header values.
// Whitespace is significant inside values, so no whitespace skipper is
// installed; the pair parser trims it instead.
func NewCookieTokenizer() tokenizer.Tokenizer {
	return tokenizer.NewTokenizerWithoutWhitespace(
		tokenizer.StringMatcherFunc(TokenSeparator, ";"),
		tokenizer.StringMatcherFunc(TokenEquals, "="),
		TextMatcher(),
	)
}

// TextMatcher matches characters up to the next ';' or '=' or the end of
// the stream.
func TextMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		var value []rune
		for {
			r, ok := stream.PeekChar()
			if !ok || r == ';' || r == '=' {
				break
			}
			stream.NextChar()
			value = append(value, r)
		}
		if len(value) == 0 {
			return nil
		}
		return tokenizer.NewToken(TokenText, value)
	}
}

// Pair is one name=value entry of a Cookie header.
type Pair struct {
	Name  string
	Value string
}

// ParseCookiePairs splits a Cookie header value on ';' and each pair on its
// first '='. Names and values are trimmed; a pair without '=' has an empty
// value and pairs with an empty name are skipped.
func ParseCookiePairs(header string) []Pair {
	if !utf8.ValidString(header) {
		// Latin-1 bytes would not survive rune tokenization.
		return splitPairs(header)
	}

	tok := NewCookieTokenizer()
	tok.Initialize(header)
	tokens, eos := tok.Tokenize()
	if !eos {
		return splitPairs(header)
	}

	var pairs []Pair
	var name, value strings.Builder
	seenEquals := false
	flush := func() {
		if n := strings.TrimSpace(name.String()); n != "" {
			pairs = append(pairs, Pair{Name: n, Value: strings.TrimSpace(value.String())})
		}
		name.Reset()
		value.Reset()
		seenEquals = false
	}

	for _, t := range tokens {
		switch {
		case t.Kind() == TokenSeparator:
			flush()
		case t.Kind() == TokenEquals && !seenEquals:
			seenEquals = true
		case seenEquals:
			value.WriteString(t.ValueString())
		default:
			name.WriteString(t.ValueString())
		}
	}
	flush()
	return pairs
}

func splitPairs(header string) []Pair {
	var pairs []Pair
	for _, part := range strings.Split(header, ";") {
		n, v, _ := strings.Cut(part, "=")
		if n = strings.TrimSpace(n); n != "" {
			pairs = append(pairs, Pair{Name: n, Value: strings.TrimSpace(v)})
		}
	}
	return pairs
}
