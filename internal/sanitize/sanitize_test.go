package sanitize

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateRejectsUnsafePatterns(t *testing.T) {
	unsafe := []string{
		"<script>alert(1)</script>",
		"<SCRIPT src=x>",
		"</script>",
		"javascript:alert(1)",
		"VBScript:msgbox",
		"data:text/html;base64,xx",
		"<img onerror=x>",
		"onclick",
		"<iframe src=x>",
		"<object data=x>",
		"<embed src=x>",
		"<svg/onload=x>",
		"<meta http-equiv=refresh>",
		"<link rel=x>",
		"<base href=x>",
		"<form action=x>",
		"@import url(x)",
		"width: expression (alert(1))",
	}
	for _, in := range unsafe {
		if Validate(in) {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestValidateAcceptsPlainText(t *testing.T) {
	for _, in := range []string{"", "Hello world", "P@ssw0rd123!", "a < b && c > d", "https://example.com/path"} {
		if !Validate(in) {
			t.Fatalf("expected %q to be accepted", in)
		}
	}
}

func TestSanitizeEscapes(t *testing.T) {
	got := Sanitize(`a&b "c" 'd' e/f`)
	want := "a&amp;b &quot;c&quot; &#x27;d&#x27; e&#x2F;f"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSanitizeStripsTags(t *testing.T) {
	if got := Sanitize("<b>bold</b> text"); got != "bold text" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestSanitizeRejectsPatternsFormedByStripping(t *testing.T) {
	if got := Sanitize("java<x>script:alert(1)"); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello world",
		"P@ssw0rd123!",
		"a & b",
		"x < y > z",
		`quote " and ' and /`,
		"<b>tag</b>",
		"&amp; already",
		"<",
		"AdminPassword123!@#$%",
		"java<x>script:",
	}
	for _, in := range inputs {
		if !Validate(in) {
			continue
		}
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Fatalf("sanitize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestTruncate(t *testing.T) {
	short, truncated := Truncate("abc")
	if truncated || short != "abc" {
		t.Fatalf("unexpected truncation of short text")
	}
	long := strings.Repeat("é", MaxLength+5)
	clipped, truncated := Truncate(long)
	if !truncated {
		t.Fatalf("expected truncation flag")
	}
	if n := utf8.RuneCountInString(clipped); n != MaxLength {
		t.Fatalf("expected %d runes, got %d", MaxLength, n)
	}
}

func TestIngestHardRejection(t *testing.T) {
	_, err := Ingest("<script>alert(1)</script>")
	if !errors.Is(err, ErrUnsafeInput) {
		t.Fatalf("expected ErrUnsafeInput, got %v", err)
	}
	res, err := Ingest("hi & bye")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hi &amp; bye" || res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestIngestRejectsPatternJoinedByStripping(t *testing.T) {
	candidate := "hello <b>on</b>load"
	if !Validate(candidate) {
		t.Fatalf("expected %q to pass the first validation", candidate)
	}
	if _, err := Ingest(candidate); !errors.Is(err, ErrUnsafeInput) {
		t.Fatalf("expected ErrUnsafeInput, got %v", err)
	}
}

func TestIngestTruncatesOnEntityBoundary(t *testing.T) {
	prefix := strings.Repeat("a", MaxLength-3)
	res, err := Ingest(prefix + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation flag")
	}
	if res.Text != prefix {
		t.Fatalf("expected partial entity to be dropped, got tail %q", res.Text[len(res.Text)-6:])
	}

	res, err = Ingest(strings.Repeat("a", MaxLength-6) + "/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(res.Text, "&#x2F;") || utf8.RuneCountInString(res.Text) != MaxLength {
		t.Fatalf("expected complete trailing entity, got tail %q", res.Text[len(res.Text)-6:])
	}
}
