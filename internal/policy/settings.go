package policy

import (
	"fmt"
	"time"

	"github.com/verte-zerg/klsim/internal/model"
)

// Settings bounds.
const (
	MinThreshold     = 0
	MaxThreshold     = 100
	MinScanDuration  = time.Second
	MaxScanDuration  = time.Minute
	MinPlaybackSpeed = 10 * time.Millisecond
	MaxPlaybackSpeed = 2 * time.Second
)

// Adjustment records a settings value that was clamped.
type Adjustment struct {
	Field string
	From  string
	To    string
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s: %s -> %s", a.Field, a.From, a.To)
}

// ClampSettings forces every field of s into its valid range.
func ClampSettings(s model.Settings) (model.Settings, []Adjustment) {
	var adj []Adjustment
	s.RiskThresholds.Medium = clampInt("riskThresholds.medium", s.RiskThresholds.Medium, MinThreshold, MaxThreshold, &adj)
	s.RiskThresholds.High = clampInt("riskThresholds.high", s.RiskThresholds.High, MinThreshold, MaxThreshold, &adj)
	s.AVScanDuration = clampDuration("avScanDuration", s.AVScanDuration, MinScanDuration, MaxScanDuration, &adj)
	s.ScenarioPlaybackSpeed = clampDuration("scenarioPlaybackSpeed", s.ScenarioPlaybackSpeed, MinPlaybackSpeed, MaxPlaybackSpeed, &adj)
	return s, adj
}

// MergeSettings applies patch field by field and clamps the result.
func MergeSettings(base model.Settings, patch model.SettingsPatch) (model.Settings, []Adjustment) {
	out := base
	if patch.AutoBlockingEnabled != nil {
		out.AutoBlockingEnabled = *patch.AutoBlockingEnabled
	}
	if patch.TransmissionAnimationEnabled != nil {
		out.TransmissionAnimationEnabled = *patch.TransmissionAnimationEnabled
	}
	if patch.AVScanDuration != nil {
		out.AVScanDuration = *patch.AVScanDuration
	}
	if patch.ScenarioPlaybackSpeed != nil {
		out.ScenarioPlaybackSpeed = *patch.ScenarioPlaybackSpeed
	}
	if patch.MediumThreshold != nil {
		out.RiskThresholds.Medium = *patch.MediumThreshold
	}
	if patch.HighThreshold != nil {
		out.RiskThresholds.High = *patch.HighThreshold
	}
	return ClampSettings(out)
}

func clampInt(field string, v, lo, hi int, adj *[]Adjustment) int {
	out := v
	if out < lo {
		out = lo
	}
	if out > hi {
		out = hi
	}
	if out != v {
		*adj = append(*adj, Adjustment{Field: field, From: fmt.Sprint(v), To: fmt.Sprint(out)})
	}
	return out
}

func clampDuration(field string, v, lo, hi time.Duration, adj *[]Adjustment) time.Duration {
	out := v
	if out < lo {
		out = lo
	}
	if out > hi {
		out = hi
	}
	if out != v {
		*adj = append(*adj, Adjustment{Field: field, From: v.String(), To: out.String()})
	}
	return out
}
