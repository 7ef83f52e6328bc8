package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/payconfirm/internal/confirm"
)

// OutcomeFilter narrows ReadOutcomes. Zero values match everything.
type OutcomeFilter struct {
	Identifier string
	Kind       confirm.OutcomeKind
	Limit      int
}

// WriteOutcome appends a terminal transition to the history.
func (s *Store) WriteOutcome(ctx context.Context, o confirm.Outcome) error {
	ref := ""
	if len(o.ForObjectRef) > 0 {
		ref = string(o.ForObjectRef)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(seq, identifier, cycle, kind, attempt, target, for_object_ref, elapsed_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.Seq,
		confirm.NormalizeIdentifier(o.Identifier),
		o.Cycle,
		string(o.Kind),
		o.Attempt,
		o.Target,
		ref,
		o.ElapsedMs,
		formatTime(o.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// LastOutcomeSeq returns the highest recorded seq, or 0 for an empty
// history. The watch command resumes its clock from it.
func (s *Store) LastOutcomeSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM outcomes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last outcome seq: %w", err)
	}
	return seq, nil
}

// ReadOutcomes returns outcomes in insertion order. Two processes sharing
// a store can interleave their seq values, so seq is not the sort key.
func (s *Store) ReadOutcomes(ctx context.Context, f OutcomeFilter) ([]confirm.Outcome, error) {
	var (
		where []string
		args  []any
	)
	if f.Identifier != "" {
		where = append(where, "identifier = ?")
		args = append(args, confirm.NormalizeIdentifier(f.Identifier))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT seq, identifier, cycle, kind, attempt, target, for_object_ref, elapsed_ms, recorded_at FROM outcomes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	defer rows.Close()

	var out []confirm.Outcome
	for rows.Next() {
		var (
			o              confirm.Outcome
			kind, ref, rec string
		)
		if err := rows.Scan(&o.Seq, &o.Identifier, &o.Cycle, &kind, &o.Attempt, &o.Target, &ref, &o.ElapsedMs, &rec); err != nil {
			return nil, fmt.Errorf("read outcomes: scan: %w", err)
		}
		o.Kind = confirm.OutcomeKind(kind)
		if ref != "" {
			o.ForObjectRef = json.RawMessage(ref)
		}
		if o.RecordedAt, err = parseTime(rec); err != nil {
			return nil, fmt.Errorf("read outcomes: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	return out, nil
}
