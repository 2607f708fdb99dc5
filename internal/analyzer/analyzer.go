// Package analyzer derives behavioral signals from typed text and cadence.
package analyzer

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SpeedWindow is the trailing window used for typing speed.
const SpeedWindow = 5 * time.Second

// Score contributions.
const (
	PasswordShapeScore = 30
	FastTypingScore    = 20
	KeywordScore       = 40
	LongInputScore     = 10
)

const (
	passwordShapeMinLen = 8
	longInputMinLen     = 20
	fastTypingSpeed     = 3.0
	passwordSymbols     = "!@#$%^&*"
)

var sensitiveKeywords = []string{"password", "admin"}

// Signals are the analyzer output for one edit.
type Signals struct {
	TypingSpeed  float64
	PatternScore int
	Reasons      []string
}

// Analyze computes typing speed and pattern score for text at now.
func Analyze(text string, timestamps []time.Time, now time.Time) Signals {
	speed := TypingSpeed(timestamps, now)
	score, reasons := patternScore(text, speed)
	return Signals{
		TypingSpeed:  speed,
		PatternScore: score,
		Reasons:      reasons,
	}
}

// TypingSpeed returns keys per second over the trailing SpeedWindow.
func TypingSpeed(timestamps []time.Time, now time.Time) float64 {
	recent := 0
	for _, ts := range timestamps {
		if now.Sub(ts) < SpeedWindow {
			recent++
		}
	}
	return float64(recent) / SpeedWindow.Seconds()
}

// PatternScore returns the heuristic score for text typed at speed keys/sec.
// The score is not capped.
func PatternScore(text string, speed float64) int {
	score, _ := patternScore(text, speed)
	return score
}

func patternScore(text string, speed float64) (int, []string) {
	score := 0
	var reasons []string
	length := utf8.RuneCountInString(text)
	if length > passwordShapeMinLen && isPasswordShaped(text) {
		score += PasswordShapeScore
		reasons = append(reasons, "password-like pattern")
	}
	if speed > fastTypingSpeed {
		score += FastTypingScore
		reasons = append(reasons, "fast typing")
	}
	if ContainsKeyword(text) {
		score += KeywordScore
		reasons = append(reasons, "sensitive keyword")
	}
	if length > longInputMinLen {
		score += LongInputScore
		reasons = append(reasons, "long input")
	}
	return score, reasons
}

func isPasswordShaped(text string) bool {
	var upper, digit, symbol bool
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	return upper && digit && symbol
}

// ContainsKeyword reports whether text mentions a sensitive keyword, ignoring case.
func ContainsKeyword(text string) bool {
	lower := strings.Map(unicode.ToLower, text)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
