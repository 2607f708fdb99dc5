// Package statsui provides the Bubble Tea browser for saved session reports.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/stats"
	"github.com/verte-zerg/klsim/internal/store"
)

const (
	tabOverview = iota
	tabReports
	tabKeys
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Config filters the reports shown.
type Config struct {
	// Last limits the browser to the newest reports; 0 shows all.
	Last        int
	CurveWindow int
}

// Model implements the Bubble Tea history UI.
type Model struct {
	store *store.Store
	cfg   Config
	now   func() time.Time

	history stats.History
	errMsg  string

	tabs        []string
	activeTab   int
	overview    viewport.Model
	reportTable table.Model
	keyTable    table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	pendingDelete string
}

// NewModel constructs a history UI model.
func NewModel(st *store.Store, cfg Config) *Model {
	if cfg.CurveWindow < 1 {
		cfg.CurveWindow = 1
	}
	m := &Model{
		store:       st,
		cfg:         cfg,
		now:         time.Now,
		tabs:        []string{"Overview", "Reports", "Keys"},
		overview:    viewport.New(0, 0),
		reportTable: newTable(reportColumns()),
		keyTable:    newTable(keyColumns()),
	}
	m.initInputs()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.pendingDelete != "" {
			return m.updateDelete(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.renderOverview()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.renderOverview()
			return m, nil
		case "/":
			return m.startFilter()
		case "d":
			if m.activeTab == tabReports {
				m.pendingDelete = m.reportIDAt(m.reportTable.Cursor())
			}
			return m, nil
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabReports:
			m.reportTable, cmd = m.reportTable.Update(msg)
		case tabKeys:
			m.keyTable, cmd = m.keyTable.Update(msg)
		default:
			m.overview, cmd = m.overview.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Last: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 6
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	if m.cfg.Last > 0 {
		m.filterInputs[0].SetValue(strconv.Itoa(m.cfg.Last))
	} else {
		m.filterInputs[0].SetValue("")
	}
	m.filterInputs[1].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" || m.pendingDelete != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	for _, t := range []*table.Model{&m.reportTable, &m.keyTable} {
		t.SetWidth(m.width)
		t.SetHeight(max(1, bodyHeight-1))
	}
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	m.reportTable.Blur()
	m.keyTable.Blur()
	switch m.activeTab {
	case tabReports:
		m.reportTable.Focus()
	case tabKeys:
		m.keyTable.Focus()
	}
}

func (m *Model) refresh() {
	history, err := stats.BuildHistory(context.Background(), m.store, m.cfg.Last)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load reports.")
		return
	}
	m.errMsg = ""
	m.history = history
	m.reportTable.SetRows(reportRows(history.Records, m.now()))
	m.reportTable.SetCursor(0)
	m.keyTable.SetRows(keyRows(history.KeyCounts))
	m.keyTable.SetCursor(0)
	m.renderOverview()
}

func (m *Model) renderOverview() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	var buf bytes.Buffer
	if err := stats.RenderHistorySummary(&buf, m.history.Records); err != nil {
		m.overview.SetContent(fmt.Sprintf("Failed to render summary: %v", err))
		return
	}
	if err := stats.RenderRiskCurves(&buf, m.history.Records, m.cfg.CurveWindow, width, true); err != nil {
		m.overview.SetContent(fmt.Sprintf("Failed to render curves: %v", err))
		return
	}
	m.overview.SetContent(strings.TrimRight(buf.String(), "\n"))
}

// reportIDAt maps a table row, newest first, to its report ID.
func (m *Model) reportIDAt(row int) string {
	idx := len(m.history.Records) - 1 - row
	if idx < 0 || idx >= len(m.history.Records) {
		return ""
	}
	return m.history.Records[idx].ID
}

func (m *Model) updateDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.pendingDelete
	m.pendingDelete = ""
	if msg.String() != "y" {
		return m, nil
	}
	if err := m.store.DeleteReport(context.Background(), id); err != nil {
		m.errMsg = fmt.Sprintf("failed to delete report: %v", err)
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refresh()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	last := 0
	if input := strings.TrimSpace(m.filterInputs[0].Value()); input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}
	window := 1
	if input := strings.TrimSpace(m.filterInputs[1].Value()); input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}
	m.cfg = Config{Last: last, CurveWindow: window}
	return nil
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Reports: %d  last=%s  window=%d", len(m.history.Records), last, m.cfg.CurveWindow)
	return m.renderTabs() + "\n" + headerStyle.Render(runewidth.Truncate(summary, max(m.width, 1), "..."))
}

func (m *Model) renderBody() string {
	if m.filterMode {
		lines := []string{"Settings (enter to apply, esc to cancel)"}
		for _, input := range m.filterInputs {
			lines = append(lines, input.View())
		}
		if m.filterError != "" {
			lines = append(lines, errorStyle.Render(m.filterError))
		}
		return strings.Join(lines, "\n")
	}
	switch m.activeTab {
	case tabReports:
		if len(m.history.Records) == 0 {
			return "No reports found."
		}
		return tableMutedStyle.Render(m.reportTable.View())
	case tabKeys:
		if len(m.history.KeyCounts) == 0 {
			return "No keystrokes captured."
		}
		return tableMutedStyle.Render(m.keyTable.View())
	default:
		return m.overview.View()
	}
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabReports {
		help = "Nav: left/right  Select: up/down  Delete: d  Settings: /  Quit: q"
	}
	lines := []string{headerStyle.Render(help)}
	if m.pendingDelete != "" {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("Delete report %s? (y/n)", shortID(m.pendingDelete))))
	} else if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(m.errMsg))
	}
	return strings.Join(lines, "\n")
}

func reportColumns() []table.Column {
	return []table.Column{
		{Title: "When", Width: 16},
		{Title: "Session", Width: 8},
		{Title: "Peak", Width: 6},
		{Title: "Keys", Width: 6},
		{Title: "Scans", Width: 5},
		{Title: "Blocks", Width: 6},
		{Title: "Text", Width: 30},
	}
}

func keyColumns() []table.Column {
	return []table.Column{
		{Title: "Key", Width: 8},
		{Title: "Count", Width: 7},
		{Title: "Share", Width: 7},
	}
}

// reportRows lists records newest first.
func reportRows(records []model.ReportRecord, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		text := "(unavailable)"
		if r.TextAvailable {
			text = r.Text
		}
		rows = append(rows, table.Row{
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			shortID(r.SessionID),
			r.PeakRisk.String(),
			strconv.Itoa(r.Keystrokes),
			strconv.Itoa(r.ScanCount),
			strconv.Itoa(r.BlockCount),
			text,
		})
	}
	return rows
}

func keyRows(counts []model.KeyCount) []table.Row {
	counts = stats.TopKeys(counts, 0)
	total := 0
	for _, kc := range counts {
		total += kc.Count
	}
	rows := make([]table.Row, 0, len(counts))
	for _, kc := range counts {
		rows = append(rows, table.Row{
			stats.KeyLabel(kc.Key),
			strconv.Itoa(kc.Count),
			fmt.Sprintf("%.1f%%", float64(kc.Count)/float64(total)*100),
		})
	}
	return rows
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	t.SetStyles(styles)
	return t
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
