// Package quizui provides the Bubble Tea awareness quiz.
package quizui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/klsim/internal/scenario"
)

const defaultWidth = 80

const (
	phaseLesson = iota
	phaseQuestion
	phaseDone
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	panelStyle    = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder(), true).BorderForeground(lipgloss.Color("#4A4A4A"))
	explainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// Config selects what the quiz shows.
type Config struct {
	Title     string
	Lesson    *scenario.Lesson
	Questions []scenario.Question
}

// Model implements the Bubble Tea quiz.
type Model struct {
	cfg      Config
	phase    int
	current  int
	cursor   int
	answered bool
	answers  []int
	width    int
}

// NewModel returns a quiz that opens on the lesson when one is given.
func NewModel(cfg Config) *Model {
	m := &Model{cfg: cfg, width: defaultWidth}
	m.restart()
	return m
}

// Score returns the result so far.
func (m *Model) Score() scenario.Score {
	return scenario.Grade(m.cfg.Questions, m.answers)
}

// Done reports whether every question was answered.
func (m *Model) Done() bool {
	return m.phase == phaseDone
}

func (m *Model) restart() {
	m.phase = phaseQuestion
	if m.cfg.Lesson != nil {
		m.phase = phaseLesson
	}
	if len(m.cfg.Questions) == 0 && m.phase == phaseQuestion {
		m.phase = phaseDone
	}
	m.current = 0
	m.cursor = 0
	m.answered = false
	m.answers = make([]int, 0, len(m.cfg.Questions))
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	}
	switch m.phase {
	case phaseLesson:
		if msg.String() == "enter" || msg.String() == " " {
			m.phase = phaseQuestion
			if len(m.cfg.Questions) == 0 {
				m.phase = phaseDone
			}
		}
	case phaseQuestion:
		m.handleQuestionKey(msg)
	case phaseDone:
		if msg.String() == "r" {
			m.restart()
		}
	}
	return m, nil
}

func (m *Model) handleQuestionKey(msg tea.KeyMsg) {
	q := m.cfg.Questions[m.current]
	key := msg.String()
	if m.answered {
		if key == "enter" || key == " " || key == "n" {
			m.next()
		}
		return
	}
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(q.Options)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.answer(m.cursor)
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if idx := int(key[0] - '1'); idx < len(q.Options) {
				m.cursor = idx
				m.answer(idx)
			}
		}
	}
}

func (m *Model) answer(idx int) {
	m.answers = append(m.answers, idx)
	m.answered = true
}

func (m *Model) next() {
	m.answered = false
	m.cursor = 0
	if m.current < len(m.cfg.Questions)-1 {
		m.current++
		return
	}
	m.phase = phaseDone
}

func (m *Model) View() string {
	var body, help string
	switch m.phase {
	case phaseLesson:
		body = m.renderLesson()
		help = "enter start quiz · q quit"
	case phaseQuestion:
		body = m.renderQuestion()
		help = "↑/↓ choose · 1-9 answer · enter confirm · q quit"
		if m.answered {
			help = "enter next · q quit"
		}
	default:
		body = m.renderSummary()
		help = "r restart · q quit"
	}
	lines := []string{titleStyle.Render(m.cfg.Title), body, footerStyle.Render(help)}
	return strings.Join(lines, "\n\n")
}

func (m *Model) textWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) renderLesson() string {
	l := m.cfg.Lesson
	wrapped := lipgloss.NewStyle().Width(m.textWidth()).Render(l.Body)
	return panelStyle.Render(titleStyle.Render(l.Title) + "\n\n" + wrapped)
}

func (m *Model) renderQuestion() string {
	q := m.cfg.Questions[m.current]
	wrap := lipgloss.NewStyle().Width(m.textWidth())
	lines := []string{
		progressStyle.Render(fmt.Sprintf("Question %d of %d · score %d", m.current+1, len(m.cfg.Questions), m.Score().Correct)),
		wrap.Render(q.Prompt),
		"",
	}
	for i, opt := range q.Options {
		lines = append(lines, m.optionLine(q, i, opt))
	}
	if m.answered {
		verdict := wrongStyle.Render("Incorrect.")
		if m.answers[m.current] == q.Answer {
			verdict = correctStyle.Render("Correct!")
		}
		lines = append(lines, "", verdict, explainStyle.Width(m.textWidth()).Render(q.Explanation))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) optionLine(q scenario.Question, i int, opt string) string {
	label := fmt.Sprintf("%d. %s", i+1, opt)
	if !m.answered {
		if i == m.cursor {
			return cursorStyle.Render("> " + label)
		}
		return "  " + label
	}
	switch {
	case i == q.Answer:
		return correctStyle.Render("✓ " + label)
	case i == m.answers[m.current]:
		return wrongStyle.Render("✗ " + label)
	default:
		return mutedStyle.Render("  " + label)
	}
}

func (m *Model) renderSummary() string {
	s := m.Score()
	lines := []string{
		"Quiz complete!",
		scoreStyle.Render(fmt.Sprintf("%d / %d", s.Correct, s.Total)),
		mutedStyle.Render(fmt.Sprintf("You scored %d%%", s.Percent())),
		lipgloss.NewStyle().Width(m.textWidth()).Render(s.Verdict()),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
