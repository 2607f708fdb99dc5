package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultPlotHeight   = 6
	minPlotWidth        = 10
	axisLabelWidth      = 8
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

// blockLevels are eighth-height column glyphs.
var blockLevels = []rune(" ▁▂▃▄▅▆▇█")

var colorPalette = []string{
	"\x1b[36m",
	"\x1b[35m",
	"\x1b[33m",
	"\x1b[32m",
}

// PlotSeries renders each series as a column chart. Series are scaled
// independently and resampled to width columns.
func PlotSeries(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(TerminalWidth())
	}
	width = max(width, minPlotWidth)
	useColor := shouldUseColor(w, forceColor)

	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for i, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		values := resample(s.Values, width)
		lo, hi := minMax(values)
		color := ""
		if useColor {
			color = colorPalette[i%len(colorPalette)]
		}
		for row := height - 1; row >= 0; row-- {
			label := ""
			switch row {
			case height - 1:
				label = formatAxis(hi)
			case 0:
				label = formatAxis(lo)
			}
			line := runewidth.FillLeft(label, axisLabelWidth) + axisSeparator + columnRow(values, lo, hi, height, row)
			if color != "" {
				line = color + line + colorReset
			}
			if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s  %s (min %s, max %s)\n", strings.Repeat(" ", axisLabelWidth), s.Name, formatAxis(lo), formatAxis(hi)); err != nil {
			return err
		}
	}
	return nil
}

func columnRow(values []float64, lo, hi float64, height, row int) string {
	levels := len(blockLevels) - 1
	var b strings.Builder
	for _, v := range values {
		filled := levels * height / 2
		if span := hi - lo; span > 1e-9 {
			filled = int(math.Round((v - lo) / span * float64(levels*height)))
		}
		cell := max(0, min(filled-row*levels, levels))
		b.WriteRune(blockLevels[cell])
	}
	return b.String()
}

func formatAxis(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func resample(values []float64, width int) []float64 {
	if len(values) <= width {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, width)
	for i := range out {
		start := i * len(values) / width
		end := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisLabelWidth-runewidth.StringWidth(axisSeparator), minPlotWidth)
}

// TerminalWidth returns the width of stdout, or 80 when it is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
