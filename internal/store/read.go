package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

const executionColumns = `session_id, seq, block_index, kind, cache_key, cache_hit, success, elapsed_ms,
	error_kind, error_message, stdout, post_state, heavy_imports`

// ReadExecutions returns all executions for a session ordered by seq.
// Returns an empty slice (not nil) if the session has none.
func (s *Store) ReadExecutions(ctx context.Context, sessionID string) ([]ir.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	return collectExecutions(rows)
}

// ReadBlockExecutions returns the executions of one block position in a session.
func (s *Store) ReadBlockExecutions(ctx context.Context, sessionID string, blockIndex int) ([]ir.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE session_id = ? AND block_index = ?
		ORDER BY seq ASC
	`, sessionID, blockIndex)
	if err != nil {
		return nil, fmt.Errorf("query block executions: %w", err)
	}
	return collectExecutions(rows)
}

// ReadSessions returns every session ordered by start_seq, then id.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, document_hash, start_seq
		FROM sessions
		ORDER BY start_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Document, &sess.DocumentHash, &sess.StartSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the session with the highest start_seq.
// Returns sql.ErrNoRows if the log is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document, document_hash, start_seq
		FROM sessions
		ORDER BY start_seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&sess.ID, &sess.Document, &sess.DocumentHash, &sess.StartSeq)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// MaxSeq returns the highest sequence number in the log, or 0 when empty.
// Engines continue numbering from it with engine.NewClockAt.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM executions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq.Int64, nil
}

func collectExecutions(rows *sql.Rows) ([]ir.ExecutionRecord, error) {
	defer rows.Close()

	records := []ir.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return records, nil
}

func scanExecution(rows *sql.Rows) (ir.ExecutionRecord, error) {
	var (
		rec       ir.ExecutionRecord
		kind      string
		cacheHit  int
		success   int
		postState []byte
		heavy     string
	)
	err := rows.Scan(
		&rec.SessionID,
		&rec.Seq,
		&rec.BlockIndex,
		&kind,
		&rec.CacheKey,
		&cacheHit,
		&success,
		&rec.ElapsedMs,
		&rec.ErrorKind,
		&rec.ErrorMessage,
		&rec.Stdout,
		&postState,
		&heavy,
	)
	if err != nil {
		return ir.ExecutionRecord{}, fmt.Errorf("scan execution: %w", err)
	}

	if rec.Kind, err = ir.ParseBlockKind(kind); err != nil {
		return ir.ExecutionRecord{}, fmt.Errorf("scan execution: %w", err)
	}
	rec.CacheHit = cacheHit != 0
	rec.Success = success != 0
	if rec.PostState, err = unmarshalPostState(postState); err != nil {
		return ir.ExecutionRecord{}, err
	}
	if rec.HeavyImports, err = unmarshalHeavyImports(heavy); err != nil {
		return ir.ExecutionRecord{}, err
	}
	return rec, nil
}
