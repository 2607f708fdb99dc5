// Package scenario provides scripted typing scenarios and their playback.
package scenario

import "sort"

// Scenario is a scripted typing sample with its expected outcome.
type Scenario struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Expected    string `yaml:"expected"`
	Text        string `yaml:"text"`
	Recommended bool   `yaml:"recommended"`
}

var builtin = []Scenario{
	{ID: "low-risk", Name: "Low Risk", Description: "Normal typing behavior", Expected: "Low risk level", Text: "Hello world"},
	{ID: "medium-risk", Name: "Medium Risk", Description: "Moderate typing with numbers", Expected: "Medium risk level", Text: "This is a longer text with some numbers 123"},
	{ID: "high-risk", Name: "High Risk", Description: "Password-like patterns", Expected: "High risk level", Text: "MyPassword123!@# AdminAccess"},
	{ID: "password-pattern", Name: "Password Pattern", Description: "Strong password format", Expected: "High risk, auto-block", Text: "P@ssw0rd123!"},
	{ID: "rapid-typing", Name: "Rapid Typing", Description: "Very fast input speed", Expected: "Medium-High risk", Text: "QuickTypingTestForRapidDetection"},
	{ID: "sensitive-keywords", Name: "Sensitive Keywords", Description: "Admin/password terms", Expected: "High risk", Text: "admin password login credentials"},
	{ID: "long-input", Name: "Long Input", Description: "Extended text entry", Expected: "Medium risk", Text: "This is a very long input that simulates someone typing a lot of text continuously without stopping for a while"},
	{ID: "false-positive", Name: "False Positive", Description: "Normal text flagged", Expected: "Low risk (safe)", Text: "Normal text"},
	{ID: "auto-block-trigger", Name: "Auto-Block Trigger", Description: "Immediate blocking", Expected: "Auto-block activated", Text: "AdminPassword123!@#$%"},
	{ID: "mixed-patterns", Name: "Mixed Patterns", Description: "Multiple risk factors", Expected: "High risk, detection", Text: "User123 password admin P@ssw0rd"},
	{ID: "public-shared-computer-login", Name: "Public Computer Login", Description: "Library/cafe login scenario", Expected: "High risk, auto-block", Text: "username: john.doe@email.com password: MySecureP@ss2024!", Recommended: true},
}

// Catalog is an ordered set of scenarios keyed by ID.
type Catalog struct {
	order []string
	byID  map[string]Scenario
}

// Builtin returns a catalog of the bundled scenarios.
func Builtin() *Catalog {
	c := &Catalog{byID: map[string]Scenario{}}
	for _, s := range builtin {
		c.add(s)
	}
	return c
}

// Merge adds or replaces scenarios. Replaced entries keep their position.
func (c *Catalog) Merge(scenarios []Scenario) {
	for _, s := range scenarios {
		c.add(s)
	}
}

func (c *Catalog) add(s Scenario) {
	if _, ok := c.byID[s.ID]; !ok {
		c.order = append(c.order, s.ID)
	}
	c.byID[s.ID] = s
}

// All returns scenarios in catalog order.
func (c *Catalog) All() []Scenario {
	out := make([]Scenario, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Lookup finds a scenario by ID.
func (c *Catalog) Lookup(id string) (Scenario, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Text returns the scenario text for idOrText, or idOrText itself when no
// scenario has that ID.
func (c *Catalog) Text(idOrText string) string {
	if s, ok := c.byID[idOrText]; ok {
		return s.Text
	}
	return idOrText
}

// IDs returns the sorted scenario IDs.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
