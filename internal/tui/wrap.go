package tui

import (
	"html"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/klsim/internal/analyzer"
	"github.com/verte-zerg/klsim/internal/model"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// buildStyledRunes renders the captured stream the way the attacker sees it.
// Words containing a sensitive keyword are highlighted and the newest key is
// underlined.
func buildStyledRunes(stream []model.KeystrokeEvent) []styledRune {
	keys := make([]rune, 0, len(stream))
	for _, ev := range stream {
		for _, r := range html.UnescapeString(ev.Key) {
			keys = append(keys, r)
		}
	}
	sensitive := sensitiveMask(keys)

	out := make([]styledRune, 0, len(keys))
	for i, r := range keys {
		displayed := r
		style := keyStyle
		switch {
		case r == ' ':
			displayed = '·'
			style = spaceStyle
		case r == '\t':
			displayed = '→'
			style = spaceStyle
		case sensitive[i]:
			style = sensitiveStyle
		case unicode.IsDigit(r):
			style = digitStyle
		case !unicode.IsLetter(r):
			style = symbolStyle
		}
		if i == len(keys)-1 {
			style = style.Underline(true)
		}
		out = append(out, styledRune{
			s:       style.Render(string(displayed)),
			width:   runewidth.RuneWidth(displayed),
			isSpace: r == ' ' || r == '\t',
		})
	}
	return out
}

type wordRange struct {
	start int
	end   int
}

func findWords(keys []rune) []wordRange {
	words := []wordRange{}
	start := -1
	for i, r := range keys {
		if unicode.IsSpace(r) {
			if start != -1 {
				words = append(words, wordRange{start: start, end: i})
				start = -1
			}
			continue
		}
		if start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, wordRange{start: start, end: len(keys)})
	}
	return words
}

func sensitiveMask(keys []rune) []bool {
	mask := make([]bool, len(keys))
	for _, w := range findWords(keys) {
		if !analyzer.ContainsKeyword(string(keys[w.start:w.end])) {
			continue
		}
		for i := w.start; i < w.end; i++ {
			mask[i] = true
		}
	}
	return mask
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks runes into lines of at most width cells, preferring
// to break at the last space.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx+1]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
