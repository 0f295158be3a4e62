package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted session against the runtime: optional setup, a
// flow of user and backend actions, and assertions on the resulting trace and
// final state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// InitialHref is the first history entry. Default: "/".
	InitialHref string `yaml:"initial_href,omitempty"`

	// Host reports the system appearance: "light" (default) or "dark".
	Host string `yaml:"host,omitempty"`

	// Config overrides the default runtime configuration. It has the same
	// shape as the config file.
	Config yaml.Node `yaml:"config,omitempty"`

	// Setup runs before the runtime starts. Setup steps are not traced and
	// must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow runs after the runtime started. Every step is traced.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one action with its arguments.
type Step struct {
	Action string         `yaml:"action"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Expect checks the step's own outcome. Nil accepts any outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome a step must have.
type Expect struct {
	// Outcome is ok, rejected or error.
	Outcome string `yaml:"outcome"`

	// Error must be a substring of the step's error message.
	Error string `yaml:"error,omitempty"`

	// Result is matched against the step's result. Maps match as subsets.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is trace_contains, trace_order, trace_count or final_state.
	Type string `yaml:"type"`

	// Action names the traced action (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset of the traced args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Outcome, when set, restricts trace_contains and trace_count to steps
	// with that outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the exact number of matching steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions must appear in this order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Path is a dotted path into the final state (final_state).
	Path string `yaml:"path,omitempty"`

	// Expect is the value at Path. Maps match as subsets.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Step outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
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

func validateScenario(s *Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	switch s.Host {
	case "", "light", "dark":
	default:
		errs = append(errs, fmt.Errorf("host must be light or dark, got %q", s.Host))
	}
	if len(s.Flow) == 0 {
		errs = append(errs, errors.New("flow list is required and must be non-empty"))
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			errs = append(errs, fmt.Errorf("setup[%d]: %w", i, err))
		}
		if step.Expect != nil {
			errs = append(errs, fmt.Errorf("setup[%d]: expect is only allowed in flow", i))
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			errs = append(errs, fmt.Errorf("flow[%d]: %w", i, err))
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateStep(step Step) error {
	if step.Action == "" {
		return errors.New("action is required")
	}
	if _, ok := actions[step.Action]; !ok {
		return fmt.Errorf("unknown action %q", step.Action)
	}
	if step.Expect != nil && !validOutcome(step.Expect.Outcome) {
		return fmt.Errorf("expect.outcome must be ok, rejected or error, got %q", step.Expect.Outcome)
	}
	return nil
}

func validOutcome(o string) bool {
	return slices.Contains([]string{OutcomeOK, OutcomeRejected, OutcomeError}, o)
}

func validateAssertion(a Assertion) error {
	if a.Outcome != "" && !validOutcome(a.Outcome) {
		return fmt.Errorf("unknown outcome %q", a.Outcome)
	}
	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return errors.New("action is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return errors.New("actions list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return errors.New("action is required for trace_count")
		}
		if a.Count < 0 {
			return errors.New("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		if a.Path == "" {
			return errors.New("path is required for final_state")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
