package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

func sampleResult() *Result {
	r := NewResult()
	r.Env = map[string]string{"x": "5", "y": "6"}
	r.Stats = ir.Stats{TotalExecutions: 3, CacheHits: 1, CacheMisses: 2, CacheSize: 2, Checkpoints: 1}
	r.Trace = []TraceEvent{
		{Step: 0, Op: OpExecute, Index: 0, Success: true},
		{Step: 1, Op: OpCheckpoint, Index: 1},
		{Step: 2, Op: OpExecute, Index: 1, CacheHit: true, Success: true},
	}
	return r
}

func sampleRecords() []ir.ExecutionRecord {
	return []ir.ExecutionRecord{
		{Seq: 1, CacheHit: false},
		{Seq: 2, CacheHit: false},
		{Seq: 3, CacheHit: true},
	}
}

func TestAssertFinalEnv(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertFinalEnv(r, Assertion{Type: AssertFinalEnv, Env: map[string]string{"x": "5", "y": "6"}}))

	err := assertFinalEnv(r, Assertion{Type: AssertFinalEnv, Env: map[string]string{"x": "5"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "{x=5}", ae.Expected)
	assert.Equal(t, "{x=5, y=6}", ae.Actual)
}

func TestAssertFinalEnv_Empty(t *testing.T) {
	r := NewResult()
	assert.NoError(t, assertFinalEnv(r, Assertion{Type: AssertFinalEnv, Env: map[string]string{}}))
}

func TestAssertStats(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertStats(r, Assertion{Type: AssertStats, Expect: map[string]int64{
		"total_executions": 3,
		"cache_hits":       1,
		"cache_misses":     2,
		"cache_size":       2,
		"checkpoints":      1,
	}}))

	err := assertStats(r, Assertion{Type: AssertStats, Expect: map[string]int64{
		"cache_misses": 2,
		"cache_hits":   5,
		"cache_size":   9,
	}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "cache_hits=1 (want 5), cache_size=2 (want 9)", ae.Actual)
}

func TestAssertRecordCount(t *testing.T) {
	r := sampleResult()
	records := sampleRecords()

	tests := []struct {
		name    string
		hit     *bool
		count   int
		wantErr bool
	}{
		{"all", nil, 3, false},
		{"hits", boolPtr(true), 1, false},
		{"misses", boolPtr(false), 2, false},
		{"wrong total", nil, 2, true},
		{"wrong hits", boolPtr(true), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertRecordCount(r, records, Assertion{Type: AssertRecordCount, Hit: tt.hit, Count: tt.count})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertRecordCount_FilterInMessage(t *testing.T) {
	err := assertRecordCount(sampleResult(), sampleRecords(), Assertion{Type: AssertRecordCount, Hit: boolPtr(false), Count: 7})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "7 records (misses)", ae.Expected)
	assert.Equal(t, "2 records", ae.Actual)
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), sampleRecords(), []Assertion{
		{Type: AssertFinalEnv, Env: map[string]string{"x": "5", "y": "6"}},
		{Type: AssertStats, Expect: map[string]int64{"cache_hits": 1}},
		{Type: AssertRecordCount, Count: 3},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), sampleRecords(), []Assertion{
		{Type: AssertFinalEnv, Env: map[string]string{"x": "5", "y": "6"}},
		{Type: AssertStats, Expect: map[string]int64{"cache_hits": 4}},
		{Type: AssertRecordCount, Count: 0},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 1")
	assert.Contains(t, errs[1], "assertion 2")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), nil, []Assertion{{Type: "trace_order"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "unknown assertion type: trace_order")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertFinalEnv,
		Expected: "{x=5}",
		Actual:   "{}",
		Trace:    sampleResult().Trace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: final_env")
	assert.Contains(t, msg, "Expected: {x=5}")
	assert.Contains(t, msg, "Actual: {}")
	assert.Contains(t, msg, "[0] execute block 0 hit=false success=true")
	assert.Contains(t, msg, "[1] checkpoint")
	assert.Contains(t, msg, "[2] execute block 1 hit=true success=true")
}
