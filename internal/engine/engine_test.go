package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/klsim/internal/clock"
	"github.com/verte-zerg/klsim/internal/metrics"
	"github.com/verte-zerg/klsim/internal/model"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	e := New(append([]Option{WithClock(clk)}, opts...)...)
	t.Cleanup(e.Close)
	return e, clk
}

func typeText(e *Engine, clk *clock.Fake, text string, step time.Duration) {
	runes := []rune(text)
	for i := range runes {
		clk.Advance(step)
		e.SetDemoInput(string(runes[:i+1]))
	}
}

func noAutoBlock() model.Settings {
	s := model.DefaultSettings()
	s.AutoBlockingEnabled = false
	return s
}

func TestNewEngineDefaults(t *testing.T) {
	e, _ := newTestEngine(t)
	snap := e.Snapshot()
	assert.Equal(t, model.RiskLow, snap.RiskLevel)
	assert.Equal(t, model.RiskLow, snap.PeakRisk)
	assert.Equal(t, model.AVIdle, snap.AVStatus)
	assert.Equal(t, model.StageIdle, snap.TimelineStage)
	assert.True(t, snap.AdminDemoModeEnabled)
	assert.Equal(t, model.DefaultSettings(), snap.Settings)
	assert.NotEmpty(t, snap.SessionID)
}

func TestSetDemoInputCapturesAndTransmits(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "hi", time.Second)

	snap := e.Snapshot()
	assert.Equal(t, "hi", snap.DemoInput)
	require.Len(t, snap.CapturedStream, 2)
	assert.Equal(t, "h", snap.CapturedStream[0].Key)
	assert.Equal(t, "i", snap.CapturedStream[1].Key)
	assert.Equal(t, model.StageTransmitting, snap.TimelineStage)
	assert.Equal(t, model.RiskLow, snap.RiskLevel)
}

func TestDeletionDoesNotCapture(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "abc", time.Second)
	e.SetDemoInput("ab")

	snap := e.Snapshot()
	assert.Equal(t, "ab", snap.DemoInput)
	assert.Len(t, snap.CapturedStream, 3)
}

func TestPeakRiskNeverDecreases(t *testing.T) {
	e, clk := newTestEngine(t, WithSettings(noAutoBlock()))

	typeText(e, clk, "admin", time.Second)
	assert.Equal(t, model.RiskMedium, e.Snapshot().RiskLevel)
	assert.Equal(t, model.RiskMedium, e.Snapshot().PeakRisk)

	e.SetDemoInput("")
	clk.Advance(time.Second)
	typeText(e, clk, "hello", time.Second)
	snap := e.Snapshot()
	assert.Equal(t, model.RiskLow, snap.RiskLevel)
	assert.Equal(t, model.RiskMedium, snap.PeakRisk)

	e.ResetSimulation()
	assert.Equal(t, model.RiskMedium, e.Snapshot().PeakRisk)
}

func TestAutoBlockIsIdempotent(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "password Secure#2024", time.Second)

	snap := e.Snapshot()
	require.True(t, snap.IsBlocked)
	assert.Equal(t, 1, snap.BlockCount)
	assert.Equal(t, model.RiskHigh, snap.PeakRisk)
	assert.Equal(t, "password Secure#2", snap.DemoInput)

	before := e.Snapshot()
	e.SetDemoInput("password Secure#20")
	e.AddKeystroke("x")
	after := e.Snapshot()
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, before.DemoInput, after.DemoInput)
	assert.Equal(t, before.CapturedStream, after.CapturedStream)
	assert.Equal(t, 1, after.BlockCount)
}

func TestUnblockClearsFlagOnly(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "password Secure#2", time.Second)
	require.True(t, e.Snapshot().IsBlocked)

	e.Unblock()
	snap := e.Snapshot()
	assert.False(t, snap.IsBlocked)
	assert.Equal(t, "password Secure#2", snap.DemoInput)
	assert.Equal(t, model.RiskHigh, snap.RiskLevel)
	assert.Equal(t, 1, snap.BlockCount)

	// Still High on the next edit, so auto-block fires again.
	clk.Advance(time.Second)
	e.SetDemoInput("password Secure#20")
	snap = e.Snapshot()
	assert.True(t, snap.IsBlocked)
	assert.Equal(t, 2, snap.BlockCount)
}

func TestAutoBlockDisabled(t *testing.T) {
	e, clk := newTestEngine(t, WithSettings(noAutoBlock()))
	typeText(e, clk, "password Secure#2024", time.Second)

	snap := e.Snapshot()
	assert.False(t, snap.IsBlocked)
	assert.Equal(t, 0, snap.BlockCount)
	assert.Equal(t, model.RiskHigh, snap.RiskLevel)
	assert.Equal(t, "password Secure#2024", snap.DemoInput)
}

func TestRateLimitRejectsExcessKeystrokes(t *testing.T) {
	e, clk := newTestEngine(t, WithSettings(noAutoBlock()))

	for i := 0; i < 60; i++ {
		e.AddKeystroke("a")
	}
	snap := e.Snapshot()
	assert.Len(t, snap.CapturedStream, 50)
	assert.True(t, snap.RateLimitExceeded)

	clk.Advance(time.Second)
	e.AddKeystroke("b")
	snap = e.Snapshot()
	assert.Len(t, snap.CapturedStream, 51)
	assert.False(t, snap.RateLimitExceeded)
}

func TestRateLimitLeavesDemoInputUnchanged(t *testing.T) {
	e, _ := newTestEngine(t, WithSettings(noAutoBlock()), WithRateLimit(time.Second, 3))
	text := []rune("abcdef")
	for i := range text {
		e.SetDemoInput(string(text[:i+1]))
	}
	snap := e.Snapshot()
	assert.Equal(t, "abc", snap.DemoInput)
	assert.Len(t, snap.CapturedStream, 3)
	assert.True(t, snap.RateLimitExceeded)
}

func TestUnsafeInputRejected(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "hello", time.Second)
	before := e.Snapshot()

	e.SetDemoInput("<script>alert(1)</script>")
	e.SetDemoInput("hello javascript:void(0)")
	e.AddKeystroke("<img onerror=x>")

	after := e.Snapshot()
	assert.Equal(t, "hello", after.DemoInput)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Len(t, after.CapturedStream, 5)
}

func TestInputUnsafeAfterStrippingRejected(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "hello", time.Second)
	before := e.Snapshot()

	e.SetDemoInput("hello <b>on</b>load")

	after := e.Snapshot()
	assert.Equal(t, "hello", after.DemoInput)
	assert.Len(t, after.CapturedStream, 5)
	assert.Equal(t, model.StageTransmitting, after.TimelineStage)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestClearingInputReturnsToIdleStage(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "ab", time.Second)
	e.SetDemoInput("")

	snap := e.Snapshot()
	assert.Equal(t, "", snap.DemoInput)
	assert.Equal(t, model.StageIdle, snap.TimelineStage)
	assert.Len(t, snap.CapturedStream, 2)

	e.SetDemoInput("a")
	assert.Equal(t, model.StageTransmitting, e.Snapshot().TimelineStage)
}

func TestClearingInputKeepsScanStage(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "ab", time.Second)
	e.StartAVScan()
	e.SetDemoInput("")
	assert.Equal(t, model.StageScanning, e.Snapshot().TimelineStage)
}

func TestIdenticalInputIsNotPublished(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "ab", time.Second)
	before := e.Snapshot().Revision

	e.SetDemoInput("ab")
	assert.Equal(t, before, e.Snapshot().Revision)
}

func TestScoringSeesTypedText(t *testing.T) {
	e, clk := newTestEngine(t, WithSettings(noAutoBlock()))
	typeText(e, clk, "Hello/World, it's fine", time.Second)

	snap := e.Snapshot()
	assert.Equal(t, "Hello&#x2F;World, it&#x27;s fine", snap.DemoInput)
	assert.Equal(t, 10, snap.PatternScore)
	assert.Equal(t, model.RiskLow, snap.RiskLevel)
	assert.Equal(t, []string{"long input"}, snap.Reasons)
}

func TestSanitizedInputIsEscaped(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetDemoInput("a&b")
	assert.Equal(t, "a&amp;b", e.Snapshot().DemoInput)
}

func TestAVLifecycle(t *testing.T) {
	e, clk := newTestEngine(t)

	e.StartAVScan()
	snap := e.Snapshot()
	assert.Equal(t, model.AVScanning, snap.AVStatus)
	assert.Equal(t, model.StageScanning, snap.TimelineStage)
	assert.Equal(t, 1, snap.ScanCount)

	// A second start while scanning is ignored.
	e.StartAVScan()
	assert.Equal(t, 1, e.Snapshot().ScanCount)

	clk.Advance(2*time.Second - time.Millisecond)
	assert.Equal(t, model.AVScanning, e.Snapshot().AVStatus)

	clk.Advance(time.Millisecond)
	snap = e.Snapshot()
	assert.Equal(t, model.AVDetected, snap.AVStatus)
	assert.Equal(t, model.StageDetected, snap.TimelineStage)
	assert.Equal(t, 0, clk.Pending())

	e.RemoveThreat()
	snap = e.Snapshot()
	assert.Equal(t, model.AVRemoved, snap.AVStatus)
	assert.Equal(t, model.StageRemoved, snap.TimelineStage)

	// Terminal until reset.
	e.QuarantineThreat()
	e.StartAVScan()
	assert.Equal(t, model.AVRemoved, e.Snapshot().AVStatus)
	assert.Equal(t, 1, e.Snapshot().ScanCount)
}

func TestQuarantine(t *testing.T) {
	e, clk := newTestEngine(t)
	e.StartAVScan()
	clk.Advance(2 * time.Second)
	e.QuarantineThreat()

	snap := e.Snapshot()
	assert.Equal(t, model.AVQuarantined, snap.AVStatus)
	assert.Equal(t, model.StageDetected, snap.TimelineStage)

	e.RemoveThreat()
	assert.Equal(t, model.AVQuarantined, e.Snapshot().AVStatus)
}

func TestOutOfOrderAVCommandsAreNoOps(t *testing.T) {
	e, _ := newTestEngine(t)
	rev := e.Snapshot().Revision
	e.QuarantineThreat()
	e.RemoveThreat()
	snap := e.Snapshot()
	assert.Equal(t, model.AVIdle, snap.AVStatus)
	assert.Equal(t, rev, snap.Revision)
}

func TestTypingKeepsScanStage(t *testing.T) {
	e, clk := newTestEngine(t)
	e.StartAVScan()
	typeText(e, clk, "ab", 100*time.Millisecond)
	assert.Equal(t, model.StageScanning, e.Snapshot().TimelineStage)
}

func TestResetSuppressesPendingScan(t *testing.T) {
	e, clk := newTestEngine(t)
	e.StartAVScan()
	e.ResetSimulation()
	assert.Equal(t, 0, clk.Pending())

	clk.Advance(5 * time.Second)
	snap := e.Snapshot()
	assert.Equal(t, model.AVIdle, snap.AVStatus)
	assert.Equal(t, model.StageIdle, snap.TimelineStage)
	assert.Equal(t, 1, snap.ScanCount)
}

func TestStaleCompletionIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	e.StartAVScan()
	gen := e.scanGen
	e.ResetSimulation()
	e.StartAVScan()

	e.completeScan(gen)
	assert.Equal(t, model.AVScanning, e.Snapshot().AVStatus)
}

func TestResetSemantics(t *testing.T) {
	e, clk := newTestEngine(t)
	e.UpdateSettings(model.SettingsPatch{MediumThreshold: intPtr(25)})
	typeText(e, clk, "password Secure#2", time.Second)
	e.StartAVScan()
	clk.Advance(2 * time.Second)

	before := e.Snapshot()
	require.True(t, before.IsBlocked)
	e.ResetSimulation()

	snap := e.Snapshot()
	assert.Equal(t, "", snap.DemoInput)
	assert.Empty(t, snap.CapturedStream)
	assert.Equal(t, model.AVIdle, snap.AVStatus)
	assert.False(t, snap.IsBlocked)
	assert.False(t, snap.RateLimitExceeded)
	assert.Equal(t, model.RiskLow, snap.RiskLevel)
	assert.Equal(t, model.StageIdle, snap.TimelineStage)
	assert.Zero(t, snap.PatternScore)
	assert.Zero(t, snap.TypingSpeed)

	assert.Equal(t, before.PeakRisk, snap.PeakRisk)
	assert.Equal(t, before.ScanCount, snap.ScanCount)
	assert.Equal(t, before.BlockCount, snap.BlockCount)
	assert.Equal(t, before.Settings, snap.Settings)
}

func intPtr(v int) *int {
	return &v
}

func TestUpdateSettingsClampsAndMerges(t *testing.T) {
	e, _ := newTestEngine(t)
	off := false
	e.UpdateSettings(model.SettingsPatch{
		AutoBlockingEnabled: &off,
		HighThreshold:       intPtr(500),
	})
	s := e.Snapshot().Settings
	assert.False(t, s.AutoBlockingEnabled)
	assert.Equal(t, 100, s.RiskThresholds.High)
	assert.Equal(t, 30, s.RiskThresholds.Medium)

	e.ResetSettings()
	assert.Equal(t, model.DefaultSettings(), e.Snapshot().Settings)
}

func TestThresholdChangeAffectsClassification(t *testing.T) {
	e, clk := newTestEngine(t)
	e.UpdateSettings(model.SettingsPatch{MediumThreshold: intPtr(50)})
	typeText(e, clk, "admin", time.Second)
	assert.Equal(t, model.RiskLow, e.Snapshot().RiskLevel)
}

func TestToggleAdminMode(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ToggleAdminMode()
	assert.False(t, e.Snapshot().AdminDemoModeEnabled)
	e.ToggleAdminMode()
	assert.True(t, e.Snapshot().AdminDemoModeEnabled)
}

func TestSnapshotIsACopy(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "ab", time.Second)
	snap := e.Snapshot()
	snap.CapturedStream[0].Key = "z"
	assert.Equal(t, "a", e.Snapshot().CapturedStream[0].Key)
}

func TestReportSnapshot(t *testing.T) {
	e, clk := newTestEngine(t)
	typeText(e, clk, "hey", time.Second)
	e.StartAVScan()

	rs := e.ReportSnapshot()
	assert.Equal(t, e.Snapshot().SessionID, rs.SessionID)
	assert.Equal(t, "hey", rs.ReconstructedText)
	assert.Len(t, rs.CapturedStream, 3)
	assert.Equal(t, 1, rs.ScanCount)
	assert.Equal(t, model.RiskLow, rs.PeakRisk)
}

func TestSubscribeReceivesLatest(t *testing.T) {
	e, clk := newTestEngine(t)
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	typeText(e, clk, "abc", time.Second)
	snap := <-ch
	assert.Equal(t, "abc", snap.DemoInput)
	assert.Equal(t, e.Snapshot().Revision, snap.Revision)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected snapshot revision %d", extra.Revision)
	default:
	}
}

func TestCloseStopsEngine(t *testing.T) {
	e, clk := newTestEngine(t)
	ch, _ := e.Subscribe()
	e.StartAVScan()
	e.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, clk.Pending())

	e.SetDemoInput("a")
	assert.Equal(t, "", e.Snapshot().DemoInput)
}

func TestMetricsRecorded(t *testing.T) {
	rec := metrics.New()
	e, clk := newTestEngine(t, WithMetrics(rec))
	typeText(e, clk, "password Secure#2", time.Second)
	e.SetDemoInput("<script>")

	samples, err := rec.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

func TestRunScenarioTypesText(t *testing.T) {
	s := noAutoBlock()
	s.ScenarioPlaybackSpeed = 10 * time.Millisecond
	e := New(WithSettings(s))
	defer e.Close()

	e.SetDemoInput("old")
	done := e.RunScenario(context.Background(), "Hi!")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("scenario playback did not finish")
	}

	snap := e.Snapshot()
	assert.Equal(t, "Hi!", snap.DemoInput)
	assert.Len(t, snap.CapturedStream, 3)
}

func TestRunScenarioCancelledByReset(t *testing.T) {
	s := model.DefaultSettings()
	s.ScenarioPlaybackSpeed = 2 * time.Second
	e := New(WithSettings(s))
	defer e.Close()

	done := e.RunScenario(context.Background(), "long text")
	e.ResetSimulation()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatalf("playback was not cancelled")
	}
}

func TestRunScenarioDropsPendingTickAfterReset(t *testing.T) {
	s := noAutoBlock()
	s.ScenarioPlaybackSpeed = 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		e, clk := newTestEngine(t, WithSettings(s))
		done := e.RunScenario(context.Background(), "abcdef")
		require.Eventually(t, func() bool { return clk.Tickers() == 1 }, 5*time.Second, time.Millisecond)

		clk.Advance(100 * time.Millisecond)
		e.ResetSimulation()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatalf("playback was not cancelled")
		}

		snap := e.Snapshot()
		require.Equal(t, "", snap.DemoInput, "iteration %d", i)
		require.Empty(t, snap.CapturedStream, "iteration %d", i)
	}
}
