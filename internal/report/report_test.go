package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/klsim/internal/model"
)

func sample() model.ReportSnapshot {
	start := time.Unix(1000, 0)
	var stream []model.KeystrokeEvent
	for i, r := range "a&b a" {
		stream = append(stream, model.KeystrokeEvent{Key: string(r), Timestamp: start.Add(time.Duration(i) * 300 * time.Millisecond)})
	}
	return model.ReportSnapshot{
		SessionID:         "session-42",
		PeakRisk:          model.RiskMedium,
		ScanCount:         2,
		BlockCount:        1,
		CapturedStream:    stream,
		ReconstructedText: "a&amp;b a",
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := Render(&buf, sample(), at); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Generated: 2026-03-04T05:06:07Z",
		"Session:   session-42",
		"Peak risk: Medium",
		"AV scans: 2",
		"Auto-blocks: 1",
		"Keystrokes captured: 5",
		"Mean gap: 300ms",
		"<space>",
		"a&b a\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestRenderEmptySession(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, model.ReportSnapshot{PeakRisk: model.RiskLow}, time.Unix(0, 0)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Cadence") {
		t.Fatalf("unexpected cadence section:\n%s", out)
	}
	if !strings.Contains(out, "(empty)") {
		t.Fatalf("expected empty text marker:\n%s", out)
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	path, err := WriteFile(dir, sample(), at)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "keylogger-simulation-report-20260304-050607.txt" {
		t.Fatalf("unexpected file name %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "KEYLOGGER SIMULATION REPORT") {
		t.Fatalf("unexpected content: %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the report in dir, got %d entries", len(entries))
	}
}
