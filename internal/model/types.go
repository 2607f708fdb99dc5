// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"
)

// RiskLevel classifies the danger of the current input.
type RiskLevel int

// Risk levels ordered by severity.
const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
}

// ParseRiskLevel parses the string form of a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "Low":
		return RiskLow, nil
	case "Medium":
		return RiskMedium, nil
	case "High":
		return RiskHigh, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q", s)
	}
}

// AVStatus is the simulated antivirus lifecycle state.
type AVStatus string

// Antivirus lifecycle states.
const (
	AVIdle        AVStatus = "idle"
	AVScanning    AVStatus = "scanning"
	AVDetected    AVStatus = "detected"
	AVQuarantined AVStatus = "quarantined"
	AVRemoved     AVStatus = "removed"
)

// Timeline stages shown by the attack timeline.
const (
	StageIdle         = 0
	StageCapturing    = 1
	StageTransmitting = 2
	StageScanning     = 3
	StageDetected     = 4
	StageRemoved      = 5
)

// KeystrokeEvent is a single accepted character.
type KeystrokeEvent struct {
	Key       string
	Timestamp time.Time
}

// RiskThresholds are pattern score cutoffs for Medium and High risk.
type RiskThresholds struct {
	Medium int
	High   int
}

// Settings defines the user-adjustable simulation policy.
type Settings struct {
	AutoBlockingEnabled          bool
	AVScanDuration               time.Duration
	ScenarioPlaybackSpeed        time.Duration
	TransmissionAnimationEnabled bool
	RiskThresholds               RiskThresholds
}

// DefaultSettings returns the compiled-in simulation settings.
func DefaultSettings() Settings {
	return Settings{
		AutoBlockingEnabled:          true,
		AVScanDuration:               2 * time.Second,
		ScenarioPlaybackSpeed:        100 * time.Millisecond,
		TransmissionAnimationEnabled: true,
		RiskThresholds: RiskThresholds{
			Medium: 30,
			High:   60,
		},
	}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	AutoBlockingEnabled          *bool
	AVScanDuration               *time.Duration
	ScenarioPlaybackSpeed        *time.Duration
	TransmissionAnimationEnabled *bool
	MediumThreshold              *int
	HighThreshold                *int
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	// Revision increases with every committed change.
	Revision             uint64
	SessionID            string
	StartedAt            time.Time
	DemoInput            string
	CapturedStream       []KeystrokeEvent
	RiskLevel            RiskLevel
	TypingSpeed          float64
	PatternScore         int
	Reasons              []string
	AVStatus             AVStatus
	IsBlocked            bool
	RateLimitExceeded    bool
	TimelineStage        int
	PeakRisk             RiskLevel
	ScanCount            int
	BlockCount           int
	Settings             Settings
	AdminDemoModeEnabled bool
}

// ReportSnapshot is the subset of state consumed by the report generator.
type ReportSnapshot struct {
	SessionID         string
	PeakRisk          RiskLevel
	ScanCount         int
	BlockCount        int
	CapturedStream    []KeystrokeEvent
	ReconstructedText string
}

// KeyCount aggregates how often a key was captured.
type KeyCount struct {
	Key   string
	Count int
}

// ReportRecord is a persisted session report.
type ReportRecord struct {
	ID         string
	SessionID  string
	CreatedAt  time.Time
	PeakRisk   RiskLevel
	ScanCount  int
	BlockCount int
	Keystrokes int
	// Text is empty when the stored payload could not be decrypted.
	Text          string
	TextAvailable bool
}
