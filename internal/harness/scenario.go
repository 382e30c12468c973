package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an engine scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Engine configures the engine under test.
	Engine EngineOptions `yaml:"engine,omitempty"`

	// SessionID is an optional fixed session ID.
	// If empty, defaults to "test-session-default".
	SessionID string `yaml:"session_id,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final environment, stats and execution log.
	Assertions []Assertion `yaml:"assertions"`
}

// EngineOptions mirrors the engine section of pymd.toml.
type EngineOptions struct {
	Capacity    int    `yaml:"capacity,omitempty"`
	MaxSteps    uint64 `yaml:"max_steps,omitempty"`
	StrictInput bool   `yaml:"strict_input,omitempty"`
}

// Step is one scenario action. Exactly one of the action fields is set.
type Step struct {
	// Execute runs an executable block.
	Execute *string `yaml:"execute,omitempty"`

	// Display presents a display block.
	Display *string `yaml:"display,omitempty"`

	// Index is the block position for execute and display (default 0).
	Index int `yaml:"index,omitempty"`

	// Set binds values from the host side. YAML scalars, lists and maps are
	// converted to Starlark values.
	Set map[string]any `yaml:"set,omitempty"`

	// Checkpoint saves the environment under this index.
	Checkpoint *int `yaml:"checkpoint,omitempty"`

	// Restore restores the checkpoint at this index.
	Restore *int `yaml:"restore,omitempty"`

	// Clear calls ClearAll.
	Clear bool `yaml:"clear,omitempty"`

	// Render renders a whole document.
	Render *string `yaml:"render,omitempty"`

	// Expect validates the step's outcome.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect lists the outcome fields to check. Unset fields are not checked.
type StepExpect struct {
	Success   *bool             `yaml:"success,omitempty"`
	CacheHit  *bool             `yaml:"cache_hit,omitempty"`
	Stdout    *string           `yaml:"stdout,omitempty"`
	ErrorKind string            `yaml:"error_kind,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Restored  *bool             `yaml:"restored,omitempty"`
	Output    *string           `yaml:"output,omitempty"`
	Shortcut  *bool             `yaml:"shortcut,omitempty"`
}

// Op returns the step's action name.
func (s Step) Op() string {
	switch {
	case s.Execute != nil:
		return OpExecute
	case s.Display != nil:
		return OpDisplay
	case s.Set != nil:
		return OpSet
	case s.Checkpoint != nil:
		return OpCheckpoint
	case s.Restore != nil:
		return OpRestore
	case s.Clear:
		return OpClear
	case s.Render != nil:
		return OpRender
	default:
		return ""
	}
}

func (s Step) actionCount() int {
	n := 0
	for _, set := range []bool{
		s.Execute != nil, s.Display != nil, s.Set != nil,
		s.Checkpoint != nil, s.Restore != nil, s.Clear, s.Render != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Step operation names, as they appear in traces.
const (
	OpExecute    = "execute"
	OpDisplay    = "display"
	OpSet        = "set"
	OpCheckpoint = "checkpoint"
	OpRestore    = "restore"
	OpClear      = "clear"
	OpRender     = "render"
)

// Assertion validates the final state of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_env": environment snapshot equals Env exactly
	// - "stats": counters listed in Expect match
	// - "record_count": execution log holds Count records
	Type string `yaml:"type"`

	// Env is the expected snapshot as name -> repr (used by final_env).
	Env map[string]string `yaml:"env,omitempty"`

	// Expect maps counter names to values (used by stats).
	Expect map[string]int64 `yaml:"expect,omitempty"`

	// Hit restricts record_count to hits (true) or misses (false).
	Hit *bool `yaml:"hit,omitempty"`

	// Count is the expected number of records (used by record_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalEnv    = "final_env"
	AssertStats       = "stats"
	AssertRecordCount = "record_count"
)

// statNames are the counters a stats assertion may name.
var statNames = map[string]bool{
	"total_executions": true,
	"cache_hits":       true,
	"cache_misses":     true,
	"cache_size":       true,
	"checkpoints":      true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
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
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Engine.Capacity != 0 && s.Engine.Capacity < 2 {
		return fmt.Errorf("engine.capacity must be at least 2")
	}

	for i, step := range s.Steps {
		if n := step.actionCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, found %d", i, n)
		}
		if step.Index < 0 {
			return fmt.Errorf("steps[%d]: index must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalEnv:
		if a.Env == nil {
			return fmt.Errorf("assertions[%d]: env is required for final_env (use {} for empty)", index)
		}
	case AssertStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
		for name := range a.Expect {
			if !statNames[name] {
				return fmt.Errorf("assertions[%d]: unknown counter %q", index, name)
			}
		}
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
