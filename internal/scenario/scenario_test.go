package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/klsim/internal/clock"
)

func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()
	assert.Len(t, c.All(), 11)
	s, ok := c.Lookup("auto-block-trigger")
	require.True(t, ok)
	assert.Equal(t, "AdminPassword123!@#$%", s.Text)
	assert.Equal(t, "free text", c.Text("free text"))
	assert.Equal(t, "Hello world", c.Text("low-risk"))
}

func TestCatalogMergeReplacesInPlace(t *testing.T) {
	c := Builtin()
	c.Merge([]Scenario{{ID: "low-risk", Name: "Custom", Text: "hi"}, {ID: "extra", Text: "x"}})
	all := c.All()
	assert.Equal(t, "low-risk", all[0].ID)
	assert.Equal(t, "hi", all[0].Text)
	assert.Equal(t, "extra", all[len(all)-1].ID)
}

func TestLoadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	data := "scenarios:\n  - id: bank-login\n    text: \"bank password Secure#2024\"\n    expected: High risk\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	scenarios, err := LoadPack(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "bank-login", scenarios[0].Name)
	assert.Equal(t, "High risk", scenarios[0].Expected)
}

func TestParsePackRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "scenarios: []\n",
		"no id":     "scenarios:\n  - text: hi\n",
		"duplicate": "scenarios:\n  - id: a\n    text: x\n  - id: a\n    text: y\n",
		"no text":   "scenarios:\n  - id: a\n",
		"unsafe":    "scenarios:\n  - id: a\n    text: \"<script>x</script>\"\n",
	}
	for name, data := range cases {
		_, err := ParsePack([]byte(data))
		assert.Error(t, err, name)
	}
}

type recordingTypist struct {
	mu     sync.Mutex
	inputs []string
}

func (r *recordingTypist) SetDemoInput(candidate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, candidate)
}

func TestPlayerTypesPrefixes(t *testing.T) {
	typist := &recordingTypist{}
	p := NewPlayer(clock.Real())
	require.NoError(t, p.Play(context.Background(), typist, "héllo", time.Millisecond))
	assert.Equal(t, []string{"h", "hé", "hél", "héll", "héllo"}, typist.inputs)
}

func TestPlayerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPlayer(clock.Real())
	err := p.Play(ctx, &recordingTypist{}, "abc", time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewSeededGenerator(7).Phrase(6)
	b := NewSeededGenerator(7).Phrase(6)
	assert.Equal(t, a, b)
	assert.Len(t, strings.Fields(a), 6)
}

func TestGenerateWeightedFavorsFocus(t *testing.T) {
	g := NewSeededGenerator(1)
	words := g.GenerateWeighted([]string{"alpha", "password"}, 200, 0, 0, nil, []string{"password"}, 20)
	hits := 0
	for _, w := range words {
		if w == "password" {
			hits++
		}
	}
	assert.Greater(t, hits, 150)
}

func TestFocusedPhraseWordCount(t *testing.T) {
	g := NewSeededGenerator(7)
	phrase := g.FocusedPhrase(60, []string{" PASS ", ""})
	assert.Len(t, strings.Fields(phrase), 60)
	assert.Contains(t, strings.ToLower(phrase), "pass")
}

func TestBuiltinLibraryCoversCatalog(t *testing.T) {
	lib := BuiltinLibrary()
	for _, s := range Builtin().All() {
		lesson, ok := lib.Lesson(s.ID)
		require.True(t, ok, s.ID)
		assert.NotEmpty(t, lesson.Title)
		assert.NotEmpty(t, lesson.Body)
		quiz, ok := lib.Quiz(s.ID)
		require.True(t, ok, s.ID)
		assert.Len(t, quiz, 5)
	}
	assert.Len(t, lib.Awareness(), 5)
	_, ok := lib.Lesson("custom")
	assert.False(t, ok)
}

func TestParseLibraryRejectsBadAnswer(t *testing.T) {
	_, err := ParseLibrary([]byte(`
scenarios:
  demo:
    learning: {title: Demo, body: text}
    quiz:
      - question: Pick one
        options: [a, b]
        answer: 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = ParseLibrary([]byte("scenarios:\n  demo:\n    learning: {body: text}\n"))
	require.Error(t, err)
}

func TestGrade(t *testing.T) {
	questions := BuiltinLibrary().Awareness()
	answers := make([]int, len(questions))
	for i, q := range questions {
		answers[i] = q.Answer
	}
	full := Grade(questions, answers)
	assert.Equal(t, Score{Correct: 5, Total: 5}, full)
	assert.Equal(t, 100, full.Percent())
	assert.Contains(t, full.Verdict(), "Excellent")

	partial := Grade(questions, answers[:3])
	assert.Equal(t, 60, partial.Percent())
	assert.Contains(t, partial.Verdict(), "Good job")

	assert.Contains(t, Grade(questions, nil).Verdict(), "Keep learning")
	assert.Equal(t, 0, Score{}.Percent())
}
