package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/klsim/internal/sanitize"
)

type packFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadPack reads extra scenarios from a YAML file.
func LoadPack(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario pack: %w", err)
	}
	return ParsePack(data)
}

// ParsePack decodes and validates a YAML scenario pack.
func ParsePack(data []byte) ([]Scenario, error) {
	var pf packFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to decode scenario pack: %w", err)
	}
	if len(pf.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario pack is empty")
	}
	seen := map[string]struct{}{}
	for i, s := range pf.Scenarios {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("scenario %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate id", id)
		}
		seen[id] = struct{}{}
		if s.Text == "" {
			return nil, fmt.Errorf("scenario %q: text is required", id)
		}
		if !sanitize.Validate(s.Text) {
			return nil, fmt.Errorf("scenario %q: text contains unsafe content", id)
		}
		if s.Name == "" {
			s.Name = id
		}
		s.ID = id
		pf.Scenarios[i] = s
	}
	return pf.Scenarios, nil
}
