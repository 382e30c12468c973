package ir

import (
	"fmt"
	"slices"
	"strings"
)

// BlockKind distinguishes executable blocks from display-only blocks.
type BlockKind int

const (
	// BlockExecute is a script block that is evaluated against the environment.
	BlockExecute BlockKind = iota + 1
	// BlockDisplay is presented as-is and never evaluated.
	BlockDisplay
)

// String returns the lower-case name used in logs, scenarios and the store.
func (k BlockKind) String() string {
	switch k {
	case BlockExecute:
		return "execute"
	case BlockDisplay:
		return "display"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseBlockKind is the inverse of BlockKind.String.
func ParseBlockKind(s string) (BlockKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "execute":
		return BlockExecute, nil
	case "display":
		return BlockDisplay, nil
	default:
		return 0, fmt.Errorf("unknown block kind %q", s)
	}
}

// ScriptBlock is one unit of document text handed to the engine by a segmenter.
// Source must be re-derivable byte-for-byte from unchanged raw document text.
type ScriptBlock struct {
	Index  int       `json:"index"`
	Source string    `json:"source"`
	Kind   BlockKind `json:"kind"`
}

// Executable reports whether the block is evaluated.
func (b ScriptBlock) Executable() bool {
	return b.Kind != BlockDisplay
}

// Binding is one entry of a snapshot: a binding name and its display string.
type Binding struct {
	Name string `json:"name"`
	Repr string `json:"repr"`
}

// Snapshot is an ordered, best-effort string view of environment bindings.
// It is always sorted by name and is used for hashing and reporting only.
type Snapshot []Binding

// NewSnapshot builds a sorted snapshot from a name -> repr map.
func NewSnapshot(m map[string]string) Snapshot {
	snap := make(Snapshot, 0, len(m))
	for name, repr := range m {
		snap = append(snap, Binding{Name: name, Repr: repr})
	}
	snap.sort()
	return snap
}

func (s Snapshot) sort() {
	slices.SortFunc(s, func(a, b Binding) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// Lookup returns the repr bound to name.
func (s Snapshot) Lookup(name string) (string, bool) {
	i, found := slices.BinarySearchFunc(s, name, func(b Binding, target string) int {
		return strings.Compare(b.Name, target)
	})
	if !found {
		return "", false
	}
	return s[i].Repr, true
}

// Names returns binding names in snapshot order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s))
	for i, b := range s {
		names[i] = b.Name
	}
	return names
}

// Map returns the snapshot as a name -> repr map.
func (s Snapshot) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, b := range s {
		m[b.Name] = b.Repr
	}
	return m
}

// Equal reports whether both snapshots hold identical name/repr pairs.
func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s, other)
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// ErrorCategory is the top level of the error taxonomy.
type ErrorCategory string

const (
	// CategoryValidation covers unmet preconditions such as missing mock input.
	CategoryValidation ErrorCategory = "validation"
	// CategoryEvaluation covers every failure raised by the evaluated script.
	CategoryEvaluation ErrorCategory = "evaluation"
	// CategoryInternal covers engine bugs; not expected in normal operation.
	CategoryInternal ErrorCategory = "internal"
)

// Error kinds reported in ErrorDetail.Kind.
const (
	KindInputMissing   = "InputMissing"
	KindInputExhausted = "InputExhausted"

	KindSyntaxError    = "SyntaxError"
	KindUndefinedName  = "UndefinedName"
	KindDivisionByZero = "DivisionByZero"
	KindTypeError      = "TypeError"
	KindKeyError       = "KeyError"
	KindIndexError     = "IndexError"
	KindStepLimit      = "StepLimit"
	KindCancelled      = "Cancelled"
	KindEvalError      = "EvalError"

	KindInternal = "InternalError"
)

// ErrorDetail is the structured descriptor attached to a failed ExecutionResult.
type ErrorDetail struct {
	Category ErrorCategory `json:"category"`
	Kind     string        `json:"kind"`
	Message  string        `json:"message"`
	Trace    string        `json:"trace,omitempty"`
}

// Error implements the error interface so details can flow through Go error paths.
func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ExecutionResult is the outcome of executing (or presenting) one block.
//
// PostState is the full environment snapshot at completion on success, or at
// the failure point on failure. Stdout keeps any output captured before a
// failure.
type ExecutionResult struct {
	BlockIndex   int          `json:"block_index"`
	Success      bool         `json:"success"`
	Stdout       string       `json:"stdout"`
	Error        *ErrorDetail `json:"error,omitempty"`
	PostState    Snapshot     `json:"post_state"`
	CacheKey     string       `json:"cache_key"`
	CacheHit     bool         `json:"cache_hit"`
	ElapsedMs    float64      `json:"elapsed_ms"`
	HeavyImports []string     `json:"heavy_imports,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r ExecutionResult) Clone() ExecutionResult {
	out := r
	out.PostState = r.PostState.Clone()
	if r.HeavyImports != nil {
		out.HeavyImports = slices.Clone(r.HeavyImports)
	}
	if r.Error != nil {
		detail := *r.Error
		out.Error = &detail
	}
	return out
}

// Stats is a read-only view of the engine counters.
//
// AverageTimeMs divides cumulative miss time by all executions, hits
// included. AverageMissTimeMs divides it by misses only.
type Stats struct {
	TotalExecutions   int64   `json:"total_executions"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	TotalTimeMs       float64 `json:"total_time_ms"`
	AverageTimeMs     float64 `json:"average_time_ms"`
	AverageMissTimeMs float64 `json:"average_miss_time_ms"`
	CacheSize         int     `json:"cache_size"`
	Checkpoints       int     `json:"checkpoints"`
}

// ExecutionRecord is one row of the execution log.
type ExecutionRecord struct {
	Seq          int64     `json:"seq"`
	SessionID    string    `json:"session_id"`
	BlockIndex   int       `json:"block_index"`
	Kind         BlockKind `json:"kind"`
	CacheKey     string    `json:"cache_key"`
	CacheHit     bool      `json:"cache_hit"`
	Success      bool      `json:"success"`
	ElapsedMs    float64   `json:"elapsed_ms"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Stdout       string    `json:"stdout"`
	PostState    Snapshot  `json:"post_state"`
	HeavyImports []string  `json:"heavy_imports,omitempty"`
}

// NewExecutionRecord flattens a result into a log record.
func NewExecutionRecord(seq int64, sessionID string, block ScriptBlock, res ExecutionResult) ExecutionRecord {
	kind := BlockExecute
	if !block.Executable() {
		kind = BlockDisplay
	}
	rec := ExecutionRecord{
		Seq:          seq,
		SessionID:    sessionID,
		BlockIndex:   block.Index,
		Kind:         kind,
		CacheKey:     res.CacheKey,
		CacheHit:     res.CacheHit,
		Success:      res.Success,
		ElapsedMs:    res.ElapsedMs,
		Stdout:       res.Stdout,
		PostState:    res.PostState.Clone(),
		HeavyImports: slices.Clone(res.HeavyImports),
	}
	if res.Error != nil {
		rec.ErrorKind = res.Error.Kind
		rec.ErrorMessage = res.Error.Message
	}
	return rec
}
