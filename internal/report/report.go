// Package report renders a session snapshot as a plain-text artifact.
package report

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/stats"
)

// FilePrefix starts every report file name.
const FilePrefix = "keylogger-simulation-report-"

// TopKeys is the number of keys listed in the key table.
const TopKeys = 20

// FileName returns the report file name for a report generated at t.
func FileName(t time.Time) string {
	return FilePrefix + t.UTC().Format("20060102-150405") + ".txt"
}

// Render writes the report for snap.
func Render(w io.Writer, snap model.ReportSnapshot, generatedAt time.Time) error {
	bw := bufio.NewWriter(w)
	cadence := stats.CadenceOf(snap.CapturedStream)

	fmt.Fprintln(bw, "KEYLOGGER SIMULATION REPORT")
	fmt.Fprintln(bw, "===========================")
	fmt.Fprintf(bw, "Generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "Session:   %s\n", snap.SessionID)
	fmt.Fprintln(bw, "")

	fmt.Fprintln(bw, "Summary")
	fmt.Fprintf(bw, "Peak risk: %s\n", snap.PeakRisk)
	fmt.Fprintf(bw, "AV scans: %d\n", snap.ScanCount)
	fmt.Fprintf(bw, "Auto-blocks: %d\n", snap.BlockCount)
	fmt.Fprintf(bw, "Keystrokes captured: %s\n", humanize.Comma(int64(cadence.Keys)))
	fmt.Fprintln(bw, "")

	if cadence.Keys > 1 {
		fmt.Fprintln(bw, "Cadence")
		fmt.Fprintf(bw, "Mean gap: %s (min %s, max %s)\n", cadence.MeanGap, cadence.MinGap, cadence.MaxGap)
		fmt.Fprintf(bw, "Keys/sec: %.2f\n", cadence.KeysPerSecond)
		fmt.Fprintf(bw, "Gaps: [%s]\n", stats.Sparkline(stats.Intervals(snap.CapturedStream)))
		fmt.Fprintln(bw, "")
	}

	if err := stats.RenderKeyTable(bw, stats.KeyFrequency(snap.CapturedStream), TopKeys); err != nil {
		return err
	}

	fmt.Fprintln(bw, "Reconstructed Text")
	text := html.UnescapeString(snap.ReconstructedText)
	if text == "" {
		text = "(empty)"
	}
	fmt.Fprintln(bw, text)
	fmt.Fprintln(bw, "")
	fmt.Fprintln(bw, "This report was produced by a local educational simulation.")
	fmt.Fprintln(bw, "No keystrokes were captured outside the sandbox or sent anywhere.")
	return bw.Flush()
}

// WriteFile renders snap into dir and returns the file path. The file
// appears atomically.
func WriteFile(dir string, snap model.ReportSnapshot, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".klsim-report-*")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		if rerr := os.Remove(tmpPath); rerr != nil {
			// Best-effort temp cleanup.
			_ = rerr
		}
	}

	if err := Render(tmp, snap, now); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close report file: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}
