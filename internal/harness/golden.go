package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Stats        ir.Stats     `json:"stats"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Timings are left out; they are floats and vary with the clock.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step": event.Step,
			"op":   event.Op,
			"env":  envMap(event.Env),
		}
		switch event.Op {
		case OpExecute, OpDisplay:
			eventMap["index"] = event.Index
			eventMap["cache_hit"] = event.CacheHit
			eventMap["success"] = event.Success
			eventMap["stdout"] = event.Stdout
			if event.ErrorKind != "" {
				eventMap["error_kind"] = event.ErrorKind
			}
		case OpCheckpoint:
			eventMap["index"] = event.Index
		case OpRestore:
			eventMap["index"] = event.Index
			eventMap["restored"] = event.Restored
		case OpRender:
			eventMap["output"] = event.Output
			eventMap["shortcut"] = event.Shortcut
		}
		traceList[i] = eventMap
	}

	stats := map[string]any{}
	for name, v := range statValues(s.Stats) {
		stats[name] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"stats":         stats,
	}
}

func envMap(env map[string]string) map[string]any {
	out := make(map[string]any, len(env))
	for name, repr := range env {
		out[name] = repr
	}
	return out
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Transcript(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

// Transcript returns the canonical JSON golden transcript of a result.
func Transcript(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Stats:        result.Stats,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}
