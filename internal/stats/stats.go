// Package stats summarizes captured keystrokes and saved session reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/klsim/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := minMax(values)
	if math.Abs(hi-lo) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Intervals returns the gaps between consecutive keystrokes in milliseconds.
func Intervals(stream []model.KeystrokeEvent) []float64 {
	if len(stream) < 2 {
		return nil
	}
	out := make([]float64, 0, len(stream)-1)
	for i := 1; i < len(stream); i++ {
		gap := stream[i].Timestamp.Sub(stream[i-1].Timestamp)
		out = append(out, float64(gap)/float64(time.Millisecond))
	}
	return out
}

// Cadence summarizes inter-key timing of a captured stream.
type Cadence struct {
	Keys          int
	MeanGap       time.Duration
	MinGap        time.Duration
	MaxGap        time.Duration
	KeysPerSecond float64
}

// CadenceOf computes the cadence of stream.
func CadenceOf(stream []model.KeystrokeEvent) Cadence {
	c := Cadence{Keys: len(stream)}
	gaps := Intervals(stream)
	if len(gaps) == 0 {
		return c
	}
	lo, hi := minMax(gaps)
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	c.MeanGap = msDuration(sum / float64(len(gaps)))
	c.MinGap = msDuration(lo)
	c.MaxGap = msDuration(hi)
	span := stream[len(stream)-1].Timestamp.Sub(stream[0].Timestamp)
	if span > 0 {
		c.KeysPerSecond = float64(len(stream)-1) / span.Seconds()
	}
	return c
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Millisecond)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// RenderHistorySummary prints totals over saved reports.
func RenderHistorySummary(w io.Writer, records []model.ReportRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No reports found.")
		return err
	}
	var keys, scans, blocks, high int
	for _, r := range records {
		keys += r.Keystrokes
		scans += r.ScanCount
		blocks += r.BlockCount
		if r.PeakRisk == model.RiskHigh {
			high++
		}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Reports: %d", len(records)),
		fmt.Sprintf("High-risk sessions: %d", high),
		fmt.Sprintf("Keystrokes captured: %s", humanize.Comma(int64(keys))),
		fmt.Sprintf("Avg keystrokes: %.1f", float64(keys)/float64(len(records))),
		fmt.Sprintf("Scans: %d", scans),
		fmt.Sprintf("Auto-blocks: %d", blocks),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderHistoryTable prints one row per report with times relative to now.
func RenderHistoryTable(w io.Writer, records []model.ReportRecord, now time.Time) error {
	if len(records) == 0 {
		return nil
	}
	headers := []string{"When", "Session", "Peak", "Keys", "Scans", "Blocks", "Text"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		text := "(unavailable)"
		if r.TextAvailable {
			text = runewidth.Truncate(r.Text, 24, "...")
		}
		rows = append(rows, []string{
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			shortID(r.SessionID),
			r.PeakRisk.String(),
			fmt.Sprintf("%d", r.Keystrokes),
			fmt.Sprintf("%d", r.ScanCount),
			fmt.Sprintf("%d", r.BlockCount),
			text,
		})
	}
	for _, line := range FormatTable(headers, rows, map[int]bool{3: true, 4: true, 5: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderKeyTable prints the top keys by count.
func RenderKeyTable(w io.Writer, counts []model.KeyCount, top int) error {
	counts = TopKeys(counts, top)
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "No keystrokes captured.")
		return err
	}
	total := 0
	for _, kc := range counts {
		total += kc.Count
	}
	if _, err := fmt.Fprintln(w, "Captured Keys"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(counts))
	for _, kc := range counts {
		rows = append(rows, []string{
			KeyLabel(kc.Key),
			fmt.Sprintf("%d", kc.Count),
			fmt.Sprintf("%.1f%%", float64(kc.Count)/float64(total)*100),
		})
	}
	for _, line := range FormatTable([]string{"Key", "Count", "Share"}, rows, map[int]bool{1: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderRiskCurves plots peak risk and keystrokes per report in
// chronological order.
func RenderRiskCurves(w io.Writer, records []model.ReportRecord, window, totalWidth int, useColor bool) error {
	if len(records) == 0 {
		return nil
	}
	risk := make([]float64, len(records))
	keys := make([]float64, len(records))
	for i, r := range records {
		risk[i] = float64(r.PeakRisk)
		keys[i] = float64(r.Keystrokes)
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeries(w, "Session Trends", []Series{
		{Name: "Peak risk", Values: MovingAverage(risk, window)},
		{Name: "Keystrokes", Values: MovingAverage(keys, window)},
	}, width, 0, useColor)
}

// KeyLabel renders whitespace keys readably.
func KeyLabel(key string) string {
	switch key {
	case " ":
		return "<space>"
	case "\t":
		return "<tab>"
	case "\n":
		return "<enter>"
	default:
		return key
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
