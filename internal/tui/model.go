// Package tui provides the Bubble Tea sandbox interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/klsim/internal/engine"
	"github.com/verte-zerg/klsim/internal/logging"
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/prefs"
	"github.com/verte-zerg/klsim/internal/report"
	"github.com/verte-zerg/klsim/internal/sanitize"
	"github.com/verte-zerg/klsim/internal/scenario"
	"github.com/verte-zerg/klsim/internal/stats"
	"github.com/verte-zerg/klsim/internal/store"
)

const animationInterval = 300 * time.Millisecond

var transmitFrames = []string{"·  ", "·· ", "···", " ··", "  ·", "   "}

var stageNames = []string{"Idle", "Capturing", "Transmitting", "Scanning", "Detected", "Removed"}

var (
	keyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	spaceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	digitStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	symbolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	sensitiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)

	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	activeStageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)

	riskStyles = map[model.RiskLevel]lipgloss.Style{
		model.RiskLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true),
		model.RiskMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true),
		model.RiskHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true),
	}
)

// Options wires the sandbox to its collaborators. Only Engine is required.
type Options struct {
	Engine    *engine.Engine
	Catalog   *scenario.Catalog
	Prefs     *prefs.Store
	Store     *store.Store
	Logger    *slog.Logger
	ReportDir string
	// Scenario is a scenario ID or literal text played on start.
	Scenario string
}

type snapshotMsg model.Snapshot

type updatesClosedMsg struct{}

type playbackDoneMsg struct {
	name string
	err  error
}

type reportSavedMsg struct {
	path string
	err  error
}

type tickMsg time.Time

// Model implements the Bubble Tea sandbox UI.
type Model struct {
	engine    *engine.Engine
	catalog   *scenario.Catalog
	prefs     *prefs.Store
	store     *store.Store
	logger    *slog.Logger
	reportDir string
	initial   string

	updates     <-chan model.Snapshot
	unsubscribe func()

	snap     model.Snapshot
	input    textinput.Model
	accepted string

	scenarioIdx int
	playing     string
	video       string
	lesson      string
	status      string

	frame   int
	ticking bool

	width  int
	height int
}

// NewModel constructs a sandbox model subscribed to opts.Engine.
func NewModel(opts Options) *Model {
	m := &Model{
		engine:      opts.Engine,
		catalog:     opts.Catalog,
		prefs:       opts.Prefs,
		store:       opts.Store,
		logger:      opts.Logger,
		reportDir:   opts.ReportDir,
		initial:     opts.Scenario,
		scenarioIdx: -1,
	}
	if m.catalog == nil {
		m.catalog = scenario.Builtin()
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	m.updates, m.unsubscribe = m.engine.Subscribe()

	m.input = textinput.New()
	m.input.Prompt = "> "
	m.input.Placeholder = "Type anything. Every key is captured."
	m.input.CharLimit = sanitize.MaxLength
	m.input.Focus()
	m.applyCursorMode()

	m.applySnapshot(m.engine.Snapshot())
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForSnapshot(m.updates)}
	if !m.appearance().ReducedMotion {
		cmds = append(cmds, textinput.Blink)
	}
	cmds = append(cmds, m.startTicking())
	if m.initial != "" {
		cmds = append(cmds, m.playScenario(m.initial))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, m.contentWidth()-lipgloss.Width(m.input.Prompt)-1)
		return m, nil
	case snapshotMsg:
		m.applySnapshot(model.Snapshot(msg))
		return m, waitForSnapshot(m.updates)
	case updatesClosedMsg:
		return m, nil
	case playbackDoneMsg:
		m.playing = ""
		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("Scenario %q finished", msg.name)
		case errors.Is(msg.err, context.Canceled):
		default:
			m.status = fmt.Sprintf("Scenario %q stopped: %v", msg.name, msg.err)
		}
		return m, nil
	case reportSavedMsg:
		if msg.err != nil {
			m.logger.Error("failed to save report", "error", msg.err)
			m.status = fmt.Sprintf("Report failed: %v", msg.err)
		} else {
			m.status = "Report saved to " + msg.path
		}
		return m, nil
	case tickMsg:
		if m.appearance().ReducedMotion {
			m.ticking = false
			return m, nil
		}
		if m.snap.Settings.TransmissionAnimationEnabled && m.snap.TimelineStage == model.StageTransmitting {
			m.frame = (m.frame + 1) % len(transmitFrames)
		}
		return m, tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.String() {
	case "ctrl+c":
		m.Close()
		return m, tea.Quit
	case "ctrl+s":
		m.engine.StartAVScan()
	case "ctrl+q":
		m.engine.QuarantineThreat()
	case "ctrl+r":
		m.engine.RemoveThreat()
	case "ctrl+x":
		m.engine.ResetSimulation()
		m.playing = ""
		m.status = "Simulation reset"
	case "ctrl+u":
		m.engine.Unblock()
	case "ctrl+a":
		m.engine.ToggleAdminMode()
	case "ctrl+b":
		enabled := !m.snap.Settings.AutoBlockingEnabled
		m.engine.UpdateSettings(model.SettingsPatch{AutoBlockingEnabled: &enabled})
	case "ctrl+g":
		cmd = m.saveReport()
	case "ctrl+n":
		all := m.catalog.All()
		if len(all) > 0 {
			m.scenarioIdx = (m.scenarioIdx + 1) % len(all)
			cmd = m.playScenario(all[m.scenarioIdx].ID)
		}
	case "ctrl+o":
		cmd = m.toggleReducedMotion()
	case "ctrl+t":
		m.toggleDensity()
	default:
		return m, m.updateInput(msg)
	}
	m.applySnapshot(m.engine.Snapshot())
	return m, cmd
}

// updateInput feeds an edit through the engine. Edits the engine did not
// take are reverted so the field always shows the sandbox text.
func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	value := m.input.Value()
	if value == m.accepted {
		return cmd
	}
	m.engine.SetDemoInput(value)
	m.snap = m.engine.Snapshot()

	res, err := sanitize.Ingest(value)
	if err == nil && res.Text == m.snap.DemoInput {
		m.accepted = value
		return cmd
	}
	m.input.SetValue(m.accepted)
	m.input.CursorEnd()
	switch {
	case err != nil:
		m.status = "Input rejected: unsafe pattern"
	case m.snap.IsBlocked:
		m.status = "Input blocked"
	case m.snap.RateLimitExceeded:
		m.status = "Rate limit exceeded"
	}
	return cmd
}

func (m *Model) applySnapshot(snap model.Snapshot) {
	if snap.Revision < m.snap.Revision {
		return
	}
	m.snap = snap
	if ingested(m.input.Value()) == snap.DemoInput {
		return
	}
	text := html.UnescapeString(snap.DemoInput)
	m.input.SetValue(text)
	m.input.CursorEnd()
	m.accepted = text
}

func ingested(value string) string {
	res, err := sanitize.Ingest(value)
	if err != nil {
		return ""
	}
	return res.Text
}

// Close unsubscribes from the engine.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func waitForSnapshot(ch <-chan model.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(animationInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) startTicking() tea.Cmd {
	if m.ticking || m.appearance().ReducedMotion {
		return nil
	}
	m.ticking = true
	return tick()
}

func (m *Model) playScenario(idOrText string) tea.Cmd {
	name := idOrText
	m.video = ""
	m.lesson = ""
	if s, ok := m.catalog.Lookup(idOrText); ok {
		name = s.Name
		if l, ok := scenario.BuiltinLibrary().Lesson(s.ID); ok {
			m.lesson = fmt.Sprintf("Lesson: %s (klsim quiz %s)", l.Title, s.ID)
		}
		if m.prefs != nil {
			if url, ok := m.prefs.VideoFor(s.ID); ok {
				m.video = url
			}
		} else if url, ok := prefs.ScenarioVideo(s.ID); ok {
			m.video = url
		}
	}
	text := m.catalog.Text(idOrText)
	m.playing = name
	m.status = ""
	done := m.engine.RunScenario(context.Background(), text)
	return func() tea.Msg {
		return playbackDoneMsg{name: name, err: <-done}
	}
}

func (m *Model) saveReport() tea.Cmd {
	snap := m.engine.ReportSnapshot()
	dir := m.reportDir
	st := m.store
	return func() tea.Msg {
		now := time.Now()
		path, err := report.WriteFile(dir, snap, now)
		if err != nil {
			return reportSavedMsg{err: err}
		}
		if st != nil {
			if _, err := st.InsertReport(context.Background(), snap, stats.KeyFrequency(snap.CapturedStream), now); err != nil {
				return reportSavedMsg{path: path, err: fmt.Errorf("failed to record report: %w", err)}
			}
		}
		return reportSavedMsg{path: path}
	}
}

func (m *Model) appearance() prefs.Appearance {
	if m.prefs == nil {
		return prefs.DefaultAppearance()
	}
	return m.prefs.Appearance()
}

func (m *Model) applyCursorMode() tea.Cmd {
	if m.appearance().ReducedMotion {
		return m.input.Cursor.SetMode(cursor.CursorStatic)
	}
	return m.input.Cursor.SetMode(cursor.CursorBlink)
}

func (m *Model) toggleReducedMotion() tea.Cmd {
	if m.prefs == nil {
		return nil
	}
	if err := m.prefs.ToggleReducedMotion(); err != nil {
		m.logger.Error("failed to save preferences", "error", err)
		m.status = fmt.Sprintf("Preferences not saved: %v", err)
	}
	return tea.Batch(m.applyCursorMode(), m.startTicking())
}

func (m *Model) toggleDensity() {
	if m.prefs == nil {
		return
	}
	next := prefs.DensityCompact
	if m.appearance().Density == prefs.DensityCompact {
		next = prefs.DensityComfortable
	}
	if err := m.prefs.SetDensity(next); err != nil {
		m.logger.Error("failed to save preferences", "error", err)
		m.status = fmt.Sprintf("Preferences not saved: %v", err)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	compact := m.appearance().Density == prefs.DensityCompact
	sep := "\n"
	if !compact {
		sep = "\n\n"
	}
	sections := []string{m.renderHeader(), m.input.View()}
	if banner := m.renderBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderPanels(compact))
	if m.snap.AdminDemoModeEnabled {
		sections = append(sections, m.renderAttackerPanel(compact))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, sep)
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m *Model) panelStyle(compact bool) lipgloss.Style {
	if compact {
		return panelStyle.Padding(0, 0)
	}
	return panelStyle.Padding(0, 1)
}

func (m *Model) renderHeader() string {
	s := m.snap.Settings
	auto := "off"
	if s.AutoBlockingEnabled {
		auto = "on"
	}
	lines := []string{
		titleStyle.Render("Keylogger simulation sandbox") + "  " + mutedStyle.Render("session "+shortID(m.snap.SessionID)),
		mutedStyle.Render(fmt.Sprintf("auto-block %s · scan %s · thresholds %d/%d · playback %s",
			auto, s.AVScanDuration, s.RiskThresholds.Medium, s.RiskThresholds.High, s.ScenarioPlaybackSpeed)),
	}
	if m.playing != "" {
		line := "Playing scenario: " + m.playing
		if m.video != "" {
			line += "  video: " + m.video
		}
		lines = append(lines, mutedStyle.Render(line))
		if m.lesson != "" {
			lines = append(lines, mutedStyle.Render(m.lesson))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBanner() string {
	switch {
	case m.snap.IsBlocked:
		return bannerStyle.Render("Input blocked: auto-block triggered. Press ctrl+u to unblock.")
	case m.snap.RateLimitExceeded:
		return bannerStyle.Render("Rate limit exceeded: keystrokes are being dropped.")
	default:
		return ""
	}
}

func (m *Model) renderPanels(compact bool) string {
	style := m.panelStyle(compact)
	panels := []string{
		style.Render(m.renderRiskPanel()),
		style.Render(m.renderAVPanel()),
		style.Render(m.renderTimeline()),
	}
	total := 0
	for _, p := range panels {
		total += lipgloss.Width(p)
	}
	if total > m.contentWidth() {
		return lipgloss.JoinVertical(lipgloss.Left, panels...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
}

func (m *Model) renderRiskPanel() string {
	level := riskStyles[m.snap.RiskLevel].Render(m.snap.RiskLevel.String())
	peak := riskStyles[m.snap.PeakRisk].Render(m.snap.PeakRisk.String())
	reasons := "none"
	if len(m.snap.Reasons) > 0 {
		reasons = strings.Join(m.snap.Reasons, ", ")
	}
	lines := []string{
		titleStyle.Render("Risk"),
		"Level: " + level,
		fmt.Sprintf("Score: %d", m.snap.PatternScore),
		fmt.Sprintf("Speed: %.1f keys/s", m.snap.TypingSpeed),
		"Peak: " + peak,
		mutedStyle.Render("Signals: " + reasons),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderAVPanel() string {
	hint := ""
	switch m.snap.AVStatus {
	case model.AVIdle:
		hint = "ctrl+s to scan"
	case model.AVScanning:
		hint = "scan in progress"
	case model.AVDetected:
		hint = "ctrl+q quarantine · ctrl+r remove"
	case model.AVQuarantined:
		hint = "threat contained"
	case model.AVRemoved:
		hint = "ctrl+x to reset"
	}
	lines := []string{
		titleStyle.Render("Antivirus"),
		"Status: " + string(m.snap.AVStatus),
		fmt.Sprintf("Scans: %d", m.snap.ScanCount),
		fmt.Sprintf("Auto-blocks: %d", m.snap.BlockCount),
		mutedStyle.Render(hint),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderTimeline() string {
	lines := []string{titleStyle.Render("Attack timeline")}
	for i, name := range stageNames {
		marker := "○ "
		style := mutedStyle
		if i == m.snap.TimelineStage {
			marker = "● "
			style = activeStageStyle
		}
		line := style.Render(marker + name)
		if i == model.StageTransmitting && i == m.snap.TimelineStage && m.snap.Settings.TransmissionAnimationEnabled {
			frame := transmitFrames[0]
			if !m.appearance().ReducedMotion {
				frame = transmitFrames[m.frame%len(transmitFrames)]
			}
			line += " " + activeStageStyle.Render(frame)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderAttackerPanel(compact bool) string {
	style := m.panelStyle(compact)
	width := max(10, m.contentWidth()-style.GetHorizontalFrameSize())
	title := titleStyle.Render(fmt.Sprintf("Attacker view · %d keys captured", len(m.snap.CapturedStream)))
	body := mutedStyle.Render("(nothing captured yet)")
	if len(m.snap.CapturedStream) > 0 {
		body = wrapStyledRunes(buildStyledRunes(m.snap.CapturedStream), width)
	}
	return style.Width(width).Render(title + "\n" + body)
}

func (m *Model) renderFooter() string {
	segments := []string{
		"ctrl+s scan", "ctrl+q quarantine", "ctrl+r remove", "ctrl+x reset",
		"ctrl+u unblock", "ctrl+a admin", "ctrl+b auto-block", "ctrl+n scenario",
		"ctrl+g report", "ctrl+o motion", "ctrl+t density", "ctrl+c quit",
	}
	footer := footerStyle.Render(strings.Join(segments, "  "))
	if m.status != "" {
		footer = mutedStyle.Render(m.status) + "\n" + footer
	}
	return footer
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
