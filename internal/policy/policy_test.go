package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/klsim/internal/model"
)

func TestClassify(t *testing.T) {
	th := model.DefaultSettings().RiskThresholds
	cases := []struct {
		score int
		speed float64
		want  model.RiskLevel
	}{
		{0, 0, model.RiskLow},
		{30, 3, model.RiskLow},
		{31, 0, model.RiskMedium},
		{0, 3.2, model.RiskMedium},
		{60, 0, model.RiskMedium},
		{61, 0, model.RiskHigh},
		{0, 5.2, model.RiskHigh},
		{170, 0, model.RiskHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.score, tc.speed, th), "score=%d speed=%v", tc.score, tc.speed)
	}
}

func TestPeakIsMonotonic(t *testing.T) {
	peak := model.RiskLow
	for _, lvl := range []model.RiskLevel{model.RiskMedium, model.RiskLow, model.RiskHigh, model.RiskMedium} {
		peak = Peak(peak, lvl)
	}
	assert.Equal(t, model.RiskHigh, peak)
	assert.Equal(t, model.RiskMedium, Peak(model.RiskMedium, model.RiskLow))
}

func TestShouldBlock(t *testing.T) {
	s := model.DefaultSettings()
	assert.True(t, ShouldBlock(s, model.RiskHigh, false))
	assert.False(t, ShouldBlock(s, model.RiskHigh, true))
	assert.False(t, ShouldBlock(s, model.RiskMedium, false))
	s.AutoBlockingEnabled = false
	assert.False(t, ShouldBlock(s, model.RiskHigh, false))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(time.Second, 50)
	start := time.Unix(100, 0)
	for i := 0; i < 50; i++ {
		require.True(t, rl.Allow(start.Add(time.Duration(i)*time.Millisecond)), "keystroke %d", i)
	}
	assert.False(t, rl.Allow(start.Add(60*time.Millisecond)))
	assert.Equal(t, 50, rl.Count(start.Add(60*time.Millisecond)))

	// The first entry leaves the window exactly one second after it was recorded.
	assert.True(t, rl.Allow(start.Add(time.Second)))
	rl.Reset()
	assert.Equal(t, 0, rl.Count(start.Add(time.Second)))
}

func TestClampSettingsReportsAdjustments(t *testing.T) {
	s := model.DefaultSettings()
	s.RiskThresholds.Medium = -5
	s.RiskThresholds.High = 250
	s.AVScanDuration = 200 * time.Millisecond
	s.ScenarioPlaybackSpeed = 0

	out, adj := ClampSettings(s)
	assert.Equal(t, 0, out.RiskThresholds.Medium)
	assert.Equal(t, 100, out.RiskThresholds.High)
	assert.Equal(t, MinScanDuration, out.AVScanDuration)
	assert.Equal(t, MinPlaybackSpeed, out.ScenarioPlaybackSpeed)
	require.Len(t, adj, 4)
	assert.Equal(t, "riskThresholds.medium", adj[0].Field)
}

func TestMergeSettingsFieldByField(t *testing.T) {
	base := model.DefaultSettings()
	high := 80
	off := false
	out, adj := MergeSettings(base, model.SettingsPatch{HighThreshold: &high, AutoBlockingEnabled: &off})
	assert.Empty(t, adj)
	assert.Equal(t, 30, out.RiskThresholds.Medium)
	assert.Equal(t, 80, out.RiskThresholds.High)
	assert.False(t, out.AutoBlockingEnabled)
	assert.Equal(t, base.AVScanDuration, out.AVScanDuration)
}
