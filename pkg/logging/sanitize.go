package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Helpers for sanitizing values before they reach log output. Mailbox
// addresses and subject lines are user data; logs keep enough shape for
// debugging without reproducing them verbatim.

// MaskEmail masks the local part and domain labels of an address, keeping
// the first and last character of each segment.
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}
	mask := func(part string) string {
		if len(part) <= 2 {
			return strings.Repeat("*", len(part))
		}
		return part[:1] + strings.Repeat("*", len(part)-2) + part[len(part)-1:]
	}
	labels := strings.Split(s[at+1:], ".")
	for i, l := range labels {
		labels[i] = mask(l)
	}
	return mask(s[:at]) + "@" + strings.Join(labels, ".")
}

var emailRE = regexp.MustCompile(`(?i)[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// RedactEmailsIn masks every address-shaped token in free text.
func RedactEmailsIn(s string) string {
	return emailRE.ReplaceAllStringFunc(s, MaskEmail)
}

// BoundAndClean strips control characters and bounds the length of arbitrary
// strings for safe logging. Truncation never splits a UTF-8 sequence.
func BoundAndClean(s string, max int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 || r == 127 {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if max <= 0 || len(out) <= max {
		return out
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut]
}
