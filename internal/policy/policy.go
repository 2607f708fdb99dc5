// Package policy classifies risk and enforces rate limiting and auto-blocking.
package policy

import "github.com/verte-zerg/klsim/internal/model"

const (
	highSpeed   = 5.0
	mediumSpeed = 3.0
)

// Classify maps a pattern score and typing speed to a risk level.
// Scores above 100 are compared as-is.
func Classify(score int, speed float64, t model.RiskThresholds) model.RiskLevel {
	switch {
	case score > t.High || speed > highSpeed:
		return model.RiskHigh
	case score > t.Medium || speed > mediumSpeed:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Peak returns next if it is strictly more severe than current.
func Peak(current, next model.RiskLevel) model.RiskLevel {
	if next > current {
		return next
	}
	return current
}

// ShouldBlock reports whether auto-block fires for a freshly computed level.
func ShouldBlock(s model.Settings, level model.RiskLevel, blocked bool) bool {
	return s.AutoBlockingEnabled && level == model.RiskHigh && !blocked
}
