package engine

import (
	"context"
	"html"
	"time"
	"unicode/utf8"

	"github.com/verte-zerg/klsim/internal/analyzer"
	"github.com/verte-zerg/klsim/internal/metrics"
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/policy"
	"github.com/verte-zerg/klsim/internal/sanitize"
)

// SetDemoInput replaces the sandbox text with candidate. When the text grew,
// its newest character is captured and risk is recomputed. It is a no-op
// while blocked and for unsafe candidates.
func (e *Engine) SetDemoInput(candidate string) {
	e.update(func() bool {
		return e.setDemoInputLocked(candidate)
	})
}

func (e *Engine) setDemoInputLocked(candidate string) bool {
	if e.st.isBlocked {
		e.metrics.KeystrokeRejected(metrics.ReasonBlocked)
		return false
	}
	res, err := sanitize.Ingest(candidate)
	if err != nil {
		e.metrics.KeystrokeRejected(metrics.ReasonUnsafe)
		e.logger.Debug("input rejected", "error", err, "length", utf8.RuneCountInString(candidate))
		return false
	}
	if res.Truncated {
		e.logger.Warn("input truncated", "max", sanitize.MaxLength)
	}
	raw, _ := sanitize.Truncate(candidate)
	rawLen := utf8.RuneCountInString(raw)
	if rawLen <= e.st.rawLen {
		if rawLen == e.st.rawLen && res.Text == e.st.demoInput {
			return false
		}
		e.replaceInputLocked(res.Text, rawLen)
		return true
	}

	last, _ := utf8.DecodeLastRuneInString(raw)
	key := sanitize.Sanitize(string(last))
	if key == "" {
		e.replaceInputLocked(res.Text, rawLen)
		return true
	}
	now := e.clock.Now()
	if !e.limiter.Allow(now) {
		return e.rateLimitedLocked()
	}
	e.st.rateLimitExceeded = false
	e.st.capturedStream = append(e.st.capturedStream, model.KeystrokeEvent{Key: key, Timestamp: now})
	e.metrics.KeystrokeAccepted()
	e.replaceInputLocked(res.Text, rawLen)
	e.recomputeLocked()
	return true
}

// replaceInputLocked stores the sanitized text. Below the scan stages the
// timeline follows whether the field is empty.
func (e *Engine) replaceInputLocked(text string, rawLen int) {
	e.st.demoInput = text
	e.st.rawLen = rawLen
	if e.st.timelineStage >= model.StageScanning {
		return
	}
	if text != "" {
		e.st.timelineStage = model.StageTransmitting
	} else {
		e.st.timelineStage = model.StageIdle
	}
}

// AddKeystroke appends a single key to the captured stream without touching
// the sandbox text. It applies the same validation and rate limit as
// SetDemoInput.
func (e *Engine) AddKeystroke(key string) {
	e.update(func() bool {
		if e.st.isBlocked {
			e.metrics.KeystrokeRejected(metrics.ReasonBlocked)
			return false
		}
		res, err := sanitize.Ingest(key)
		if err != nil {
			e.metrics.KeystrokeRejected(metrics.ReasonUnsafe)
			e.logger.Debug("keystroke rejected", "error", err)
			return false
		}
		if res.Text == "" {
			return false
		}
		now := e.clock.Now()
		if !e.limiter.Allow(now) {
			return e.rateLimitedLocked()
		}
		e.st.rateLimitExceeded = false
		e.st.capturedStream = append(e.st.capturedStream, model.KeystrokeEvent{Key: res.Text, Timestamp: now})
		e.metrics.KeystrokeAccepted()
		return true
	})
}

func (e *Engine) rateLimitedLocked() bool {
	e.metrics.KeystrokeRejected(metrics.ReasonRateLimit)
	if !e.st.rateLimitExceeded {
		e.logger.Info("keystroke rate limit exceeded")
	}
	e.st.rateLimitExceeded = true
	return true
}

func (e *Engine) recomputeLocked() {
	now := e.clock.Now()
	stamps := make([]time.Time, len(e.st.capturedStream))
	for i, ev := range e.st.capturedStream {
		stamps[i] = ev.Timestamp
	}
	// Rules see the text as typed, not its escaped form.
	sig := analyzer.Analyze(html.UnescapeString(e.st.demoInput), stamps, now)
	level := policy.Classify(sig.PatternScore, sig.TypingSpeed, e.st.settings.RiskThresholds)

	e.st.typingSpeed = sig.TypingSpeed
	e.st.patternScore = sig.PatternScore
	e.st.reasons = sig.Reasons
	e.st.riskLevel = level
	e.st.peakRisk = policy.Peak(e.st.peakRisk, level)
	e.metrics.Risk(level, sig.PatternScore)

	if policy.ShouldBlock(e.st.settings, level, e.st.isBlocked) {
		e.st.isBlocked = true
		e.st.blockCount++
		e.metrics.AutoBlocked()
		e.logger.Info("auto-block triggered", "score", sig.PatternScore, "speed", sig.TypingSpeed)
	}
}

// Unblock clears the blocked flag only.
func (e *Engine) Unblock() {
	e.update(func() bool {
		if !e.st.isBlocked {
			return false
		}
		e.st.isBlocked = false
		return true
	})
}

// ResetSimulation clears the transient session state. Peak risk, counters,
// settings and the admin flag survive.
func (e *Engine) ResetSimulation() {
	e.update(func() bool {
		e.cancelScanLocked()
		e.cancelPlaybackLocked()
		e.resetInputLocked()
		e.st.avStatus = model.AVIdle
		e.st.timelineStage = model.StageIdle
		return true
	})
}

func (e *Engine) resetInputLocked() {
	e.limiter.Reset()
	e.st.demoInput = ""
	e.st.rawLen = 0
	e.st.capturedStream = nil
	e.st.typingSpeed = 0
	e.st.patternScore = 0
	e.st.reasons = nil
	e.st.riskLevel = model.RiskLow
	e.st.isBlocked = false
	e.st.rateLimitExceeded = false
}

// UpdateSettings merges patch into the settings, clamping each field.
func (e *Engine) UpdateSettings(patch model.SettingsPatch) {
	e.update(func() bool {
		merged, adj := policy.MergeSettings(e.st.settings, patch)
		e.logAdjustments(adj)
		if merged == e.st.settings {
			return false
		}
		e.st.settings = merged
		return true
	})
}

// ResetSettings restores the default settings.
func (e *Engine) ResetSettings() {
	e.update(func() bool {
		e.st.settings = model.DefaultSettings()
		return true
	})
}

// ToggleAdminMode flips the attacker-view display flag.
func (e *Engine) ToggleAdminMode() {
	e.update(func() bool {
		e.st.adminMode = !e.st.adminMode
		return true
	})
}

// RunScenario clears the sandbox and types text into it at the configured
// playback speed. A later call, a reset or ctx cancellation stops it. The
// returned channel yields the playback result once.
func (e *Engine) RunScenario(ctx context.Context, text string) <-chan error {
	done := make(chan error, 1)
	var playCtx context.Context
	var interval time.Duration
	var typist playbackTypist
	started := false
	e.update(func() bool {
		e.cancelPlaybackLocked()
		var cancel context.CancelFunc
		playCtx, cancel = context.WithCancel(ctx)
		e.playCancel = cancel
		typist = playbackTypist{engine: e, gen: e.playGen}
		e.resetInputLocked()
		interval = e.st.settings.ScenarioPlaybackSpeed
		started = true
		return true
	})
	if !started {
		done <- context.Canceled
		close(done)
		return done
	}
	go func() {
		defer close(done)
		err := e.player.Play(playCtx, typist, text, interval)
		if err != nil {
			e.logger.Debug("scenario playback stopped", "error", err)
		}
		done <- err
	}()
	return done
}

// cancelPlaybackLocked stops the running scenario. Bumping the generation
// drops any tick the player already received.
func (e *Engine) cancelPlaybackLocked() {
	e.playGen++
	if e.playCancel != nil {
		e.playCancel()
		e.playCancel = nil
	}
}

// playbackTypist types into the engine only while its playback is current.
type playbackTypist struct {
	engine *Engine
	gen    uint64
}

func (t playbackTypist) SetDemoInput(candidate string) {
	e := t.engine
	e.update(func() bool {
		if t.gen != e.playGen {
			return false
		}
		return e.setDemoInputLocked(candidate)
	})
}
