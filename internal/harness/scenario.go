package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/almanac/internal/ir"
)

// Scenario defines a protocol scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are sent to the worker in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step sends one request.
type Step struct {
	// Send is the message type. Any value other than INIT, LOG and GET is
	// sent as an unrecognized request.
	Send string `yaml:"send"`

	// ID overrides the request id. Defaults to the 1-based step number.
	ID int64 `yaml:"id,omitempty"`

	Module string `yaml:"module,omitempty"`
	Query  string `yaml:"query,omitempty"`
	Result string `yaml:"result,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`

	// Snapshot selects the INIT payload: none (default), latest, or invalid.
	Snapshot string `yaml:"snapshot,omitempty"`

	// Restart stops the worker and starts a fresh one before this step.
	Restart bool `yaml:"restart,omitempty"`

	// NoWait sends the next step without waiting for this response.
	NoWait bool `yaml:"no_wait,omitempty"`

	// Expect validates the response. If nil, any response is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected response to a step.
type Expect struct {
	// Type is SUCCESS or ERROR.
	Type string `yaml:"type"`

	// Kind is the expected error kind (ERROR only).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of entries (GET only).
	Count *int `yaml:"count,omitempty"`

	// Entries are matched in order against the returned entries.
	// Only the fields that are set are compared.
	Entries []EntryMatch `yaml:"entries,omitempty"`

	// Persist is the number of PERSIST frames emitted while handling the step.
	Persist *int `yaml:"persist,omitempty"`
}

// EntryMatch is a partial log entry. Zero fields are not compared.
type EntryMatch struct {
	ID     int64  `yaml:"id,omitempty"`
	Module string `yaml:"module,omitempty"`
	Query  string `yaml:"query,omitempty"`
	Result string `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a matching event exists
	// - "trace_order": Messages appear in order
	// - "trace_count": Message appears exactly Count times
	// - "final_state": GET on the final worker matches
	Type string `yaml:"type"`

	// Message is the message type (trace_contains, trace_count).
	Message string `yaml:"message,omitempty"`

	// Dir restricts trace assertions to "send" or "recv" events.
	Dir string `yaml:"dir,omitempty"`

	// ID, Module and Kind narrow trace_contains.
	ID     *int64 `yaml:"id,omitempty"`
	Module string `yaml:"module,omitempty"`
	Kind   string `yaml:"kind,omitempty"`

	// Count is the expected occurrences (trace_count) or entries (final_state).
	Count *int `yaml:"count,omitempty"`

	// Messages is the expected order (trace_order).
	Messages []string `yaml:"messages,omitempty"`

	// Entries are the expected final entries, newest first (final_state).
	Entries []EntryMatch `yaml:"entries,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// INIT snapshot sources.
const (
	SnapshotNone    = "none"
	SnapshotLatest  = "latest"
	SnapshotInvalid = "invalid"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "asertions:".
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

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
// If filter is non-empty, only files whose base name matches the glob are loaded.
func LoadScenarios(dir, filter string) ([]*Scenario, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, name)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	if step.Send == "" {
		return fmt.Errorf("steps[%d]: send is required", index)
	}

	switch step.Snapshot {
	case "", SnapshotNone, SnapshotLatest, SnapshotInvalid:
	default:
		return fmt.Errorf("steps[%d]: unknown snapshot source %q", index, step.Snapshot)
	}
	if step.Snapshot != "" && ir.MessageType(step.Send) != ir.TypeInit {
		return fmt.Errorf("steps[%d]: snapshot is only valid for INIT", index)
	}
	if step.Limit < 0 {
		return fmt.Errorf("steps[%d]: limit must be non-negative", index)
	}

	if e := step.Expect; e != nil {
		switch ir.MessageType(e.Type) {
		case ir.TypeSuccess:
			if e.Kind != "" {
				return fmt.Errorf("steps[%d].expect: kind is only valid for ERROR", index)
			}
		case ir.TypeError:
			if len(e.Entries) > 0 || e.Count != nil {
				return fmt.Errorf("steps[%d].expect: entries are only valid for SUCCESS", index)
			}
		default:
			return fmt.Errorf("steps[%d].expect: type must be SUCCESS or ERROR, got %q", index, e.Type)
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Dir != "" && a.Dir != DirSend && a.Dir != DirRecv {
		return fmt.Errorf("assertions[%d]: dir must be %q or %q", index, DirSend, DirRecv)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Messages) == 0 {
			return fmt.Errorf("assertions[%d]: messages list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertFinalState:
		if a.Count == nil && len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: count or entries is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
