package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// defaultMaxOutputChars caps the sanitized stream length returned
	// to clients, well under the on-disk file size ceiling.
	defaultMaxOutputChars = 16 * 1024

	truncationNotice = "\n... [output truncated]"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// SanitizeOutput strips terminal escape sequences and non-printable
// control characters from program output and truncates it. Untrusted
// programs can emit sequences that corrupt terminals or log pipelines,
// so everything except tab and newline is dropped.
func SanitizeOutput(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxOutputChars
	}
	s = ansiEscape.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()

	if len(out) > maxChars {
		// Back up to a rune boundary; a byte-index cut can split a
		// multi-byte rune and leave invalid UTF-8.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + truncationNotice
	}
	return out
}
