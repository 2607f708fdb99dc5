// Package engine owns the simulation session state and its command set.
//
// An Engine is a single logical actor. Every command runs to completion
// under one mutex, so observers never see a partially applied transition.
// The only asynchronous element is the antivirus scan timer, which is
// cancelled on reset and close and ignored if it arrives stale.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/klsim/internal/clock"
	"github.com/verte-zerg/klsim/internal/logging"
	"github.com/verte-zerg/klsim/internal/metrics"
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/policy"
	"github.com/verte-zerg/klsim/internal/scenario"
)

type state struct {
	demoInput         string
	rawLen            int
	capturedStream    []model.KeystrokeEvent
	typingSpeed       float64
	patternScore      int
	reasons           []string
	riskLevel         model.RiskLevel
	peakRisk          model.RiskLevel
	isBlocked         bool
	rateLimitExceeded bool
	avStatus          model.AVStatus
	timelineStage     int
	scanCount         int
	blockCount        int
	settings          model.Settings
	adminMode         bool
}

// Engine is the session orchestrator.
type Engine struct {
	mu        sync.Mutex
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Recorder
	limiter   *policy.RateLimiter
	player    *scenario.Player
	sessionID string
	startedAt time.Time

	st       state
	revision uint64
	closed   bool

	scanTimer  clock.Timer
	scanGen    uint64
	playCancel context.CancelFunc
	playGen    uint64

	subMu         sync.Mutex
	subs          map[int]chan model.Snapshot
	nextSub       int
	lastPublished uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and the scan timer.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSettings sets the initial settings. Values are clamped.
func WithSettings(s model.Settings) Option {
	return func(e *Engine) {
		e.st.settings = s
	}
}

// WithRateLimit overrides the keystroke rate limit.
func WithRateLimit(window time.Duration, limit int) Option {
	return func(e *Engine) {
		e.limiter = policy.NewRateLimiter(window, limit)
	}
}

// New creates an Engine with default state.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:     clock.Real(),
		logger:    logging.Discard(),
		sessionID: uuid.NewString(),
		subs:      map[int]chan model.Snapshot{},
	}
	e.st = state{
		riskLevel: model.RiskLow,
		peakRisk:  model.RiskLow,
		avStatus:  model.AVIdle,
		settings:  model.DefaultSettings(),
		adminMode: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = policy.NewRateLimiter(policy.DefaultRateWindow, policy.DefaultRateLimit)
	}
	e.player = scenario.NewPlayer(e.clock)
	e.startedAt = e.clock.Now()
	settings, adj := policy.ClampSettings(e.st.settings)
	e.st.settings = settings
	e.logAdjustments(adj)
	return e
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// ReportSnapshot returns the data consumed by the report generator.
func (e *Engine) ReportSnapshot() model.ReportSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.ReportSnapshot{
		SessionID:         e.sessionID,
		PeakRisk:          e.st.peakRisk,
		ScanCount:         e.st.scanCount,
		BlockCount:        e.st.blockCount,
		CapturedStream:    copyStream(e.st.capturedStream),
		ReconstructedText: e.st.demoInput,
	}
}

// Subscribe returns a channel receiving the latest snapshot after each change.
// Slow readers only see the most recent snapshot. Call the returned function
// to unsubscribe.
func (e *Engine) Subscribe() (<-chan model.Snapshot, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	ch := make(chan model.Snapshot, 1)
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// Close cancels pending timers and playback and closes subscriber channels.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.cancelScanLocked()
	e.cancelPlaybackLocked()
	e.mu.Unlock()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// update runs fn under the engine lock and publishes the result if fn
// reports a change.
func (e *Engine) update(fn func() bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if !fn() {
		e.mu.Unlock()
		return
	}
	e.revision++
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.publish(snap)
}

func (e *Engine) publish(snap model.Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if snap.Revision <= e.lastPublished {
		return
	}
	e.lastPublished = snap.Revision
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (e *Engine) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Revision:             e.revision,
		SessionID:            e.sessionID,
		StartedAt:            e.startedAt,
		DemoInput:            e.st.demoInput,
		CapturedStream:       copyStream(e.st.capturedStream),
		RiskLevel:            e.st.riskLevel,
		TypingSpeed:          e.st.typingSpeed,
		PatternScore:         e.st.patternScore,
		Reasons:              append([]string(nil), e.st.reasons...),
		AVStatus:             e.st.avStatus,
		IsBlocked:            e.st.isBlocked,
		RateLimitExceeded:    e.st.rateLimitExceeded,
		TimelineStage:        e.st.timelineStage,
		PeakRisk:             e.st.peakRisk,
		ScanCount:            e.st.scanCount,
		BlockCount:           e.st.blockCount,
		Settings:             e.st.settings,
		AdminDemoModeEnabled: e.st.adminMode,
	}
}

func copyStream(in []model.KeystrokeEvent) []model.KeystrokeEvent {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.KeystrokeEvent, len(in))
	copy(out, in)
	return out
}

func clampStage(stage int) int {
	if stage < model.StageIdle {
		return model.StageIdle
	}
	if stage > model.StageRemoved {
		return model.StageRemoved
	}
	return stage
}

func (e *Engine) logAdjustments(adj []policy.Adjustment) {
	for _, a := range adj {
		e.logger.Warn("settings value clamped", "field", a.Field, "from", a.From, "to", a.To)
	}
}
