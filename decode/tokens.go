package decode

import "strings"

// Tokens is the fixed-shape token list produced from a topic string.
// All grammar decisions downstream are ordered pattern-matches over the
// token count and known segment names; decoders never index into the raw
// string directly.
type Tokens struct {
	parts []string
}

// Tokenize splits a topic into segments. An empty topic yields zero tokens.
func Tokenize(topic string) Tokens {
	if topic == "" {
		return Tokens{}
	}
	return Tokens{parts: strings.Split(topic, "/")}
}

// Len returns the number of segments.
func (t Tokens) Len() int {
	return len(t.parts)
}

// At returns segment i, or "" when i is out of range.
func (t Tokens) At(i int) string {
	if i < 0 || i >= len(t.parts) {
		return ""
	}
	return t.parts[i]
}

// Tail joins segments from i onward with "/". Returns "" when i is past
// the end.
func (t Tokens) Tail(i int) string {
	if i < 0 || i >= len(t.parts) {
		return ""
	}
	return strings.Join(t.parts[i:], "/")
}

// Skip returns the tokens from i onward.
func (t Tokens) Skip(i int) Tokens {
	if i < 0 || i >= len(t.parts) {
		return Tokens{}
	}
	return Tokens{parts: t.parts[i:]}
}

// stripPrefix removes an exact "Segment/" style prefix from a topic and
// reports whether it was present.
func stripPrefix(topic, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	return topic[len(prefix):], true
}

// hasAnyPrefix reports whether s starts with any of the given prefixes.
func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
