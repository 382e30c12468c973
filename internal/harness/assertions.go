package harness

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Op {
		case OpExecute, OpDisplay:
			fmt.Fprintf(&buf, "  [%d] %s block %d hit=%t success=%t\n",
				event.Step, event.Op, event.Index, event.CacheHit, event.Success)
		default:
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Step, event.Op)
		}
	}

	return buf.String()
}

// assertFinalEnv checks that the final snapshot equals the expected one exactly.
func assertFinalEnv(result *Result, assertion Assertion) error {
	if maps.Equal(result.Env, assertion.Env) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalEnv,
		Expected: formatEnv(assertion.Env),
		Actual:   formatEnv(result.Env),
		Trace:    result.Trace,
	}
}

// assertStats checks the counters named in the assertion. Unnamed counters
// are not compared.
func assertStats(result *Result, assertion Assertion) error {
	actual := statValues(result.Stats)

	names := make([]string, 0, len(assertion.Expect))
	for name := range assertion.Expect {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []string
	for _, name := range names {
		if want := assertion.Expect[name]; actual[name] != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, actual[name], want))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertStats,
		Expected: fmt.Sprintf("%v", assertion.Expect),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    result.Trace,
	}
}

// assertRecordCount counts execution log records, optionally only hits or
// only misses.
func assertRecordCount(result *Result, records []ir.ExecutionRecord, assertion Assertion) error {
	count := 0
	for _, rec := range records {
		if assertion.Hit == nil || rec.CacheHit == *assertion.Hit {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	filter := "all"
	if assertion.Hit != nil {
		filter = map[bool]string{true: "hits", false: "misses"}[*assertion.Hit]
	}
	return &AssertionError{
		Type:     AssertRecordCount,
		Expected: fmt.Sprintf("%d records (%s)", assertion.Count, filter),
		Actual:   fmt.Sprintf("%d records", count),
		Trace:    result.Trace,
	}
}

func statValues(s ir.Stats) map[string]int64 {
	return map[string]int64{
		"total_executions": s.TotalExecutions,
		"cache_hits":       s.CacheHits,
		"cache_misses":     s.CacheMisses,
		"cache_size":       int64(s.CacheSize),
		"checkpoints":      int64(s.Checkpoints),
	}
}

func formatEnv(env map[string]string) string {
	if len(env) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + env[name]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// EvaluateAssertions runs all assertions and returns error messages.
// Returns empty slice if all assertions pass.
func EvaluateAssertions(result *Result, records []ir.ExecutionRecord, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalEnv:
			err = assertFinalEnv(result, assertion)
		case AssertStats:
			err = assertStats(result, assertion)
		case AssertRecordCount:
			err = assertRecordCount(result, records, assertion)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}

	return errors
}
