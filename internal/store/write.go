package store

import (
	"context"
	"fmt"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// Session is one engine lifetime: a render run, a watch loop or a REPL.
type Session struct {
	ID           string `json:"id"`
	Document     string `json:"document"`
	DocumentHash string `json:"document_hash"`
	StartSeq     int64  `json:"start_seq"`
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - rewriting a session is ignored.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, document, document_hash, start_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Document,
		sess.DocumentHash,
		sess.StartSeq,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// RecordExecution appends one execution record. It satisfies engine.Recorder.
//
// A session row is created on demand so an engine can log without an explicit
// WriteSession. Duplicate (session, seq) pairs are silently ignored.
func (s *Store) RecordExecution(ctx context.Context, rec ir.ExecutionRecord) error {
	postState, err := marshalPostState(rec.PostState)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	heavy, err := marshalHeavyImports(rec.HeavyImports)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record execution: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, start_seq) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.SessionID, rec.Seq); err != nil {
		return fmt.Errorf("record execution: ensure session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions
		(session_id, seq, block_index, kind, cache_key, cache_hit, success, elapsed_ms,
		 error_kind, error_message, stdout, post_state, heavy_imports)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		rec.SessionID,
		rec.Seq,
		rec.BlockIndex,
		rec.Kind.String(),
		rec.CacheKey,
		boolToInt(rec.CacheHit),
		boolToInt(rec.Success),
		rec.ElapsedMs,
		rec.ErrorKind,
		rec.ErrorMessage,
		rec.Stdout,
		postState,
		heavy,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record execution: commit: %w", err)
	}
	return nil
}
