package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/payconfirm/internal/config"
	"github.com/roach88/payconfirm/internal/testutil"
)

// Scenario is one scripted reconciliation.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Identifier is used by start and push steps that do not name one.
	Identifier string `yaml:"identifier"`

	// Policy overrides the default 2s x 30 poll policy.
	Policy *PolicySpec `yaml:"policy,omitempty"`

	// Probe scripts the probe answers in call order. Once exhausted every
	// probe answers "not confirmed".
	Probe []testutil.ProbeStep `yaml:"probe,omitempty"`

	// Steps drive the coordinator.
	Steps []Step `yaml:"steps"`

	// Expect is checked against the final summary.
	Expect Expect `yaml:"expect"`
}

// PolicySpec is the YAML form of reconcile.Policy.
type PolicySpec struct {
	Interval    config.Duration `yaml:"interval"`
	MaxAttempts int             `yaml:"max_attempts"`
}

// Step is exactly one action.
type Step struct {
	Start *StartStep `yaml:"start,omitempty"`
	Tick  int        `yaml:"tick,omitempty"` // number of ticks
	Push  *PushStep  `yaml:"push,omitempty"`
	Retry bool       `yaml:"retry,omitempty"`
	Close bool       `yaml:"close,omitempty"`
}

// StartStep calls Coordinator.Start.
type StartStep struct {
	Identifier string `yaml:"identifier,omitempty"`
	Target     string `yaml:"target,omitempty"`
}

// PushStep publishes one paymentConfirmed message.
type PushStep struct {
	Identifier string `yaml:"identifier,omitempty"`
	Target     string `yaml:"target,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
}

// Expect lists final-state expectations. Nil fields are not checked.
type Expect struct {
	Status    string `yaml:"status"`
	Successes *int   `yaml:"successes,omitempty"`
	Timeouts  *int   `yaml:"timeouts,omitempty"`
	Closed    *int   `yaml:"closed,omitempty"`
	Alerts    *int   `yaml:"alerts,omitempty"`
	Probes    *int   `yaml:"probes,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Expect.Status == "" {
		return fmt.Errorf("expect.status is required")
	}

	if s.Policy != nil {
		if s.Policy.Interval <= 0 {
			return fmt.Errorf("policy.interval must be positive")
		}
		if s.Policy.MaxAttempts < 1 {
			return fmt.Errorf("policy.max_attempts must be at least 1")
		}
	}

	for i, step := range s.Steps {
		n := 0
		if step.Start != nil {
			n++
		}
		if step.Tick != 0 {
			n++
		}
		if step.Push != nil {
			n++
		}
		if step.Retry {
			n++
		}
		if step.Close {
			n++
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of start, tick, push, retry, close is required", i)
		}
		if step.Tick < 0 {
			return fmt.Errorf("steps[%d]: tick must be positive", i)
		}
	}

	return nil
}
