package harness

import "github.com/treeleaves30760/PyMD/internal/ir"

// TraceEvent records one step. Cache keys and timings are left out so the
// trace is stable across runs.
type TraceEvent struct {
	Step      int               `json:"step"`
	Op        string            `json:"op"`
	Index     int               `json:"index,omitempty"`
	CacheHit  bool              `json:"cache_hit,omitempty"`
	Success   bool              `json:"success,omitempty"`
	Stdout    string            `json:"stdout,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Restored  bool              `json:"restored,omitempty"`
	Output    string            `json:"output,omitempty"`
	Shortcut  bool              `json:"shortcut,omitempty"`
	Env       map[string]string `json:"env"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats is the engine's view after the last step.
	Stats ir.Stats `json:"stats"`

	// Env is the final environment snapshot.
	Env map[string]string `json:"env"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Env:    map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
