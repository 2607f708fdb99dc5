package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Key", "Count", "Share"}
	rows := [][]string{
		{"a", "12", "80.0%"},
		{"<space>", "3", "20.0%"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := FormatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Key     Count Share" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "a          12 80.0%" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "<space>     3 20.0%" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableUsesCellWidth(t *testing.T) {
	lines := FormatTable([]string{"Key", "N"}, [][]string{{"語", "1"}, {"ab", "2"}}, nil)
	if lines[1] != "語  1" {
		t.Fatalf("unexpected wide row: %q", lines[1])
	}
	if lines[2] != "ab  2" {
		t.Fatalf("unexpected row: %q", lines[2])
	}
}
