package scenario

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var contentYAML []byte

// Question is a multiple-choice quiz item. Answer indexes Options.
type Question struct {
	Prompt      string   `yaml:"question"`
	Options     []string `yaml:"options"`
	Answer      int      `yaml:"answer"`
	Explanation string   `yaml:"explanation"`
}

// Lesson is the awareness text attached to a scenario.
type Lesson struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type lessonEntry struct {
	Learning Lesson     `yaml:"learning"`
	Quiz     []Question `yaml:"quiz"`
}

type libraryFile struct {
	Awareness []Question             `yaml:"awareness"`
	Scenarios map[string]lessonEntry `yaml:"scenarios"`
}

// Library holds lessons and quizzes keyed by scenario ID plus the general
// awareness quiz.
type Library struct {
	awareness []Question
	entries   map[string]lessonEntry
}

var builtinLibrary = sync.OnceValue(func() *Library {
	lib, err := ParseLibrary(contentYAML)
	if err != nil {
		panic(fmt.Sprintf("scenario: bundled lessons: %v", err))
	}
	return lib
})

// BuiltinLibrary returns the bundled lessons and quizzes.
func BuiltinLibrary() *Library {
	return builtinLibrary()
}

// ParseLibrary decodes and validates lesson content.
func ParseLibrary(data []byte) (*Library, error) {
	var lf libraryFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to decode lessons: %w", err)
	}
	if err := validateQuestions("awareness", lf.Awareness); err != nil {
		return nil, err
	}
	for id, entry := range lf.Scenarios {
		if strings.TrimSpace(entry.Learning.Title) == "" {
			return nil, fmt.Errorf("lesson %q: title is required", id)
		}
		if err := validateQuestions(id, entry.Quiz); err != nil {
			return nil, err
		}
	}
	return &Library{awareness: lf.Awareness, entries: lf.Scenarios}, nil
}

func validateQuestions(owner string, questions []Question) error {
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("quiz %q question %d: prompt is required", owner, i+1)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("quiz %q question %d: at least two options required", owner, i+1)
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return fmt.Errorf("quiz %q question %d: answer %d out of range", owner, i+1, q.Answer)
		}
	}
	return nil
}

// Awareness returns the general keylogger awareness quiz.
func (l *Library) Awareness() []Question {
	return append([]Question(nil), l.awareness...)
}

// Lesson returns the lesson for a scenario.
func (l *Library) Lesson(scenarioID string) (Lesson, bool) {
	entry, ok := l.entries[scenarioID]
	if !ok {
		return Lesson{}, false
	}
	return entry.Learning, true
}

// Quiz returns the questions for a scenario.
func (l *Library) Quiz(scenarioID string) ([]Question, bool) {
	entry, ok := l.entries[scenarioID]
	if !ok || len(entry.Quiz) == 0 {
		return nil, false
	}
	return append([]Question(nil), entry.Quiz...), true
}

// Score is the result of a finished quiz.
type Score struct {
	Correct int
	Total   int
}

// Grade counts answers matching each question's correct option. Missing
// answers count as wrong.
func Grade(questions []Question, answers []int) Score {
	s := Score{Total: len(questions)}
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.Answer {
			s.Correct++
		}
	}
	return s
}

// Percent returns the rounded share of correct answers.
func (s Score) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(float64(s.Correct) * 100 / float64(s.Total)))
}

// Verdict is the feedback line shown with the score.
func (s Score) Verdict() string {
	switch p := s.Percent(); {
	case p >= 80:
		return "Excellent! You have a strong understanding of keylogger threats and prevention."
	case p >= 60:
		return "Good job! Review the awareness content to strengthen your knowledge."
	default:
		return "Keep learning! Review the prevention tips and scenario lessons to improve your awareness."
	}
}
