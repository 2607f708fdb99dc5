package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/klsim/internal/model"
)

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected average: %v", got)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 9}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{5, 5, 5}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
}

func TestCadenceOf(t *testing.T) {
	c := CadenceOf(streamOf("abcde", 250*time.Millisecond))
	if c.Keys != 5 {
		t.Fatalf("expected 5 keys, got %d", c.Keys)
	}
	if c.MeanGap != 250*time.Millisecond || c.MinGap != c.MeanGap || c.MaxGap != c.MeanGap {
		t.Fatalf("unexpected gaps: %+v", c)
	}
	if c.KeysPerSecond != 4 {
		t.Fatalf("expected 4 keys/sec, got %f", c.KeysPerSecond)
	}
	if empty := CadenceOf(nil); empty.Keys != 0 || empty.MeanGap != 0 {
		t.Fatalf("unexpected empty cadence: %+v", empty)
	}
}

func TestRenderHistory(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []model.ReportRecord{
		{ID: "1", SessionID: "0123456789", CreatedAt: now.Add(-2 * time.Hour), PeakRisk: model.RiskHigh, Keystrokes: 1200, ScanCount: 1, BlockCount: 1, Text: "AdminPassword123!@#$%", TextAvailable: true},
		{ID: "2", SessionID: "abc", CreatedAt: now.Add(-time.Minute), PeakRisk: model.RiskLow, Keystrokes: 5},
	}
	var buf bytes.Buffer
	if err := RenderHistorySummary(&buf, records); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := RenderHistoryTable(&buf, records, now); err != nil {
		t.Fatalf("table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Reports: 2", "High-risk sessions: 1", "Keystrokes captured: 1,205", "2 hours ago", "01234567 ", "(unavailable)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderKeyTable(t *testing.T) {
	var buf bytes.Buffer
	counts := []model.KeyCount{{Key: " ", Count: 1}, {Key: "a", Count: 3}}
	if err := RenderKeyTable(&buf, counts, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<space>") || !strings.Contains(out, "75.0%") {
		t.Fatalf("unexpected key table:\n%s", out)
	}

	buf.Reset()
	if err := RenderKeyTable(&buf, nil, 5); err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if !strings.Contains(buf.String(), "No keystrokes captured.") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}
