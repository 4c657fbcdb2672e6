package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SelectorEntry names a CSS selector whose element is snapshotted at every capture point.
type SelectorEntry struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
}

// Interaction is a simulated click followed by a settle delay.
// A zero Settle means the probe-wide settle delay applies.
type Interaction struct {
	Name   string        `yaml:"name" json:"name"`
	Click  string        `yaml:"click" json:"click"`
	Settle time.Duration `yaml:"settle,omitempty" json:"settle,omitempty"`
}

// Plan is the top-level YAML description of what a probe captures and clicks.
type Plan struct {
	Selectors    []SelectorEntry `yaml:"selectors" json:"selectors"`
	Interactions []Interaction   `yaml:"interactions,omitempty" json:"interactions,omitempty"`
}

// DefaultPlan snapshots the document body and performs no interactions.
func DefaultPlan() *Plan {
	return &Plan{
		Selectors: []SelectorEntry{{Name: "body", Selector: "body"}},
	}
}

// LoadPlan reads and validates a probe plan YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probe plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("probe plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks names are present and unique and selectors are non-empty.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Selectors))
	for i, s := range p.Selectors {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("probe plan: selectors[%d] missing name", i)
		}
		if strings.TrimSpace(s.Selector) == "" {
			return fmt.Errorf("probe plan: selectors[%d] (%s) missing selector", i, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("probe plan: duplicate selector name %q", s.Name)
		}
		seen[s.Name] = true
	}

	steps := make(map[string]bool, len(p.Interactions))
	for i, in := range p.Interactions {
		if !validStepName(in.Name) {
			return fmt.Errorf("probe plan: interactions[%d] name %q must be [a-z0-9_-]+", i, in.Name)
		}
		if strings.TrimSpace(in.Click) == "" {
			return fmt.Errorf("probe plan: interactions[%d] (%s) missing click selector", i, in.Name)
		}
		if in.Settle < 0 {
			return fmt.Errorf("probe plan: interactions[%d] (%s) negative settle", i, in.Name)
		}
		if steps[in.Name] {
			return fmt.Errorf("probe plan: duplicate interaction name %q", in.Name)
		}
		steps[in.Name] = true
	}
	return nil
}

// Step names end up in artifact filenames.
func validStepName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
