// Package sanitize gates typed input before it can reach session state.
//
// Every candidate is validated against a fixed set of markup and script
// patterns first. Only candidates that pass are stripped of tags, escaped and
// clipped to MaxLength. A failed validation discards the whole candidate.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLength is the maximum number of characters kept from a candidate.
const MaxLength = 10000

// ErrUnsafeInput is returned by Ingest when a candidate matches an unsafe pattern.
var ErrUnsafeInput = errors.New("unsafe input rejected")

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[\s\S]*?>`),
	regexp.MustCompile(`(?i)</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)on(abort|blur|change|click|dblclick|error|focus|keydown|keypress|keyup|load|mousedown|mousemove|mouseout|mouseover|mouseup|reset|resize|select|submit|unload)`),
	regexp.MustCompile(`(?i)on(drag|drop|scroll|wheel|copy|cut|paste|contextmenu|input|invalid|search|animationstart|animationend|animationiteration|transitionend)`),
	regexp.MustCompile(`(?i)<(iframe|object|embed|svg|meta|link|base|form)[\s\S]*?>`),
	regexp.MustCompile(`(?i)@import`),
	regexp.MustCompile(`(?i)expression\s*\(`),
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// entities produced by escape; an ampersand that already starts one is kept.
var entities = []string{"&amp;", "&lt;", "&gt;", "&quot;", "&#x27;", "&#x2F;"}

// Result is an ingested candidate ready for analysis.
type Result struct {
	Text      string
	Truncated bool
}

// Validate reports whether candidate is free of unsafe patterns.
func Validate(candidate string) bool {
	if candidate == "" {
		return true
	}
	for _, p := range unsafePatterns {
		if p.MatchString(candidate) {
			return false
		}
	}
	return true
}

// Sanitize strips markup tags and escapes & < > " ' and /.
// It returns an empty string for input that fails Validate, before or after
// tag stripping.
func Sanitize(candidate string) string {
	stripped, ok := strip(candidate)
	if !ok || stripped == "" {
		return ""
	}
	return escape(stripped)
}

// strip removes tags from a valid candidate. Stripping can join fragments
// into an unsafe pattern, so the result is validated again.
func strip(candidate string) (string, bool) {
	if !Validate(candidate) {
		return "", false
	}
	stripped := tagPattern.ReplaceAllString(candidate, "")
	if !Validate(stripped) {
		return "", false
	}
	return stripped, true
}

// Truncate clips text to MaxLength characters and reports whether it did.
func Truncate(text string) (string, bool) {
	if utf8.RuneCountInString(text) <= MaxLength {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:MaxLength]), true
}

// Ingest runs the full gate: validate, sanitize, truncate. A candidate that
// only becomes unsafe once its tags are stripped is rejected as well.
func Ingest(candidate string) (Result, error) {
	stripped, ok := strip(candidate)
	if !ok {
		return Result{}, ErrUnsafeInput
	}
	text, truncated := truncateEscaped(escape(stripped))
	return Result{Text: text, Truncated: truncated}, nil
}

// truncateEscaped clips escaped text without leaving a partial entity at the
// end. Every '&' in escaped text starts an entity.
func truncateEscaped(text string) (string, bool) {
	cut, truncated := Truncate(text)
	if !truncated {
		return cut, false
	}
	if i := strings.LastIndexByte(cut, '&'); i >= 0 && !strings.Contains(cut[i:], ";") {
		cut = cut[:i]
	}
	return cut, true
}

func escape(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch ch {
		case '&':
			if startsEntity(text[i:]) {
				b.WriteByte(ch)
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			b.WriteString("&#x2F;")
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func startsEntity(s string) bool {
	for _, e := range entities {
		if strings.HasPrefix(s, e) {
			return true
		}
	}
	return false
}
