package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates an execution record with minimal required fields.
func createTestRecord(sessionID string, seq int64, blockIndex int) ir.ExecutionRecord {
	return ir.ExecutionRecord{
		Seq:        seq,
		SessionID:  sessionID,
		BlockIndex: blockIndex,
		Kind:       ir.BlockExecute,
		CacheKey:   "key-" + sessionID,
		Success:    true,
		PostState:  ir.Snapshot{{Name: "x", Repr: "1"}},
	}
}
