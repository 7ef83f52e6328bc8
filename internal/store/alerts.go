package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/payconfirm/internal/confirm"
)

// MarkAlerted records that an alert has been raised for a.Identifier.
// Returns first=true only for the call that inserted the row; every later
// call for the same identifier is a no-op returning first=false.
func (s *Store) MarkAlerted(ctx context.Context, a confirm.Alert) (first bool, err error) {
	id := confirm.NormalizeIdentifier(a.Identifier)
	if id == "" {
		return false, fmt.Errorf("mark alerted: empty identifier")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
		(identifier, alert_id, alert_type, severity, elapsed_ms, environment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO NOTHING
	`,
		id,
		a.ID,
		a.Type,
		a.Severity,
		a.ElapsedMs,
		a.Environment,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark alerted: rows affected: %w", err)
	}
	return n == 1, nil
}

// Alerted reports whether an alert has been recorded for identifier.
func (s *Store) Alerted(ctx context.Context, identifier string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE identifier = ?`,
		confirm.NormalizeIdentifier(identifier),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read alert: %w", err)
	}
	return n > 0, nil
}

// ListAlerts returns every recorded alert, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]confirm.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, alert_id, alert_type, severity, elapsed_ms, environment, created_at
		FROM alerts
		ORDER BY created_at ASC, identifier COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []confirm.Alert
	for rows.Next() {
		var (
			a       confirm.Alert
			created string
		)
		if err := rows.Scan(&a.Identifier, &a.ID, &a.Type, &a.Severity, &a.ElapsedMs, &a.Environment, &created); err != nil {
			return nil, fmt.Errorf("list alerts: scan: %w", err)
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("list alerts: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
