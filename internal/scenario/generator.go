package scenario

import (
	"math/rand"
	"strings"
	"time"
	"unicode"
)

// DefaultVocabulary mixes everyday words with credential-looking tokens.
var DefaultVocabulary = []string{
	"hello", "meeting", "invoice", "coffee", "report", "weekend", "project", "login",
	"password", "admin", "username", "secret", "token", "account", "bank", "email",
	"P@ssw0rd", "Summer2024!", "qwerty", "letmein", "root", "backup", "draft", "notes",
}

// DefaultPunctSet is used when no punctuation set is supplied.
const DefaultPunctSet = ".,!?@#$%&*"

// Generator produces randomized typing text.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a Generator seeded with the current time.
func NewGenerator() *Generator {
	return NewSeededGenerator(time.Now().UnixNano())
}

// NewSeededGenerator returns a deterministic Generator.
func NewSeededGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate selects words uniformly and applies caps/punctuation rules.
func (g *Generator) Generate(words []string, count int, capsPct, punctPct float64, punctSet []rune) []string {
	if len(words) == 0 || count <= 0 {
		return nil
	}
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		word := words[g.rnd.Intn(len(words))]
		word = applyCaps(g.rnd, word, capsPct)
		word = applyPunct(g.rnd, word, punctPct, punctSet)
		result = append(result, word)
	}
	return result
}

// GenerateWeighted selects words with a bias toward those containing any of
// the focus substrings.
func (g *Generator) GenerateWeighted(words []string, count int, capsPct, punctPct float64, punctSet []rune, focus []string, factor float64) []string {
	if len(words) == 0 || count <= 0 {
		return nil
	}
	weights := make([]float64, len(words))
	total := 0.0
	for i, word := range words {
		hits := 0
		lower := strings.ToLower(word)
		for _, f := range focus {
			if strings.Contains(lower, f) {
				hits++
			}
		}
		w := 1.0 + float64(hits)*factor
		weights[i] = w
		total += w
	}

	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		r := g.rnd.Float64() * total
		acc := 0.0
		idx := len(words) - 1
		for j, w := range weights {
			acc += w
			if r <= acc {
				idx = j
				break
			}
		}
		word := words[idx]
		word = applyCaps(g.rnd, word, capsPct)
		word = applyPunct(g.rnd, word, punctPct, punctSet)
		result = append(result, word)
	}
	return result
}

// Phrase generates count words from DefaultVocabulary joined by spaces.
func (g *Generator) Phrase(count int) string {
	return strings.Join(g.Generate(DefaultVocabulary, count, 0.3, 0.2, []rune(DefaultPunctSet)), " ")
}

// FocusedPhrase is Phrase biased toward vocabulary words containing any of
// the focus substrings.
func (g *Generator) FocusedPhrase(count int, focus []string) string {
	lowered := make([]string, 0, len(focus))
	for _, f := range focus {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lowered = append(lowered, f)
		}
	}
	words := g.GenerateWeighted(DefaultVocabulary, count, 0.3, 0.2, []rune(DefaultPunctSet), lowered, focusFactor)
	return strings.Join(words, " ")
}

const focusFactor = 4.0

func applyCaps(rnd *rand.Rand, word string, capsPct float64) string {
	if capsPct <= 0 {
		return word
	}
	if rnd.Float64() > capsPct {
		return word
	}
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func applyPunct(rnd *rand.Rand, word string, punctPct float64, punctSet []rune) string {
	if punctPct <= 0 || len(punctSet) == 0 {
		return word
	}
	if rnd.Float64() > punctPct {
		return word
	}
	punct := punctSet[rnd.Intn(len(punctSet))]
	return word + string(punct)
}
