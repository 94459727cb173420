// Package tokenizer splits Cookie header values into tokens using Shape's
// tokenizer framework.
package tokenizer

// Token kinds produced for a Cookie header value.
const (
	TokenSeparator = "Separator" // ; between cookie pairs
	TokenEquals    = "Equals"    // = between name and value
	TokenText      = "Text"      // any run of other characters, whitespace included
)
