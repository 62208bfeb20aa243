package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	audit "lendgate/pkg/platform/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS simulation_audit (
	id               UUID PRIMARY KEY,
	occurred_at      TIMESTAMPTZ NOT NULL,
	user_id          TEXT NOT NULL,
	action           TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	processor_status INTEGER NOT NULL DEFAULT 0,
	request_id       TEXT NOT NULL DEFAULT '',
	client_ip        TEXT NOT NULL DEFAULT '',
	caller           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS simulation_audit_user_idx ON simulation_audit (user_id, occurred_at);
`

// Store implements audit.Store on a simulation_audit table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = audit.Normalize(event, time.Now())
	query := `
		INSERT INTO simulation_audit (
			id, occurred_at, user_id, action, reason,
			processor_status, request_id, client_ip, caller
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.UserID,
		string(event.Action),
		event.Reason,
		event.ProcessorStatus,
		event.RequestID,
		event.ClientIP,
		event.Caller,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns a user's events, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]audit.Event, error) {
	query := `
		SELECT id, occurred_at, user_id, action, reason,
			   processor_status, request_id, client_ip, caller
		FROM simulation_audit
		WHERE user_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event  audit.Event
			action string
		)
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.UserID,
			&action,
			&event.Reason,
			&event.ProcessorStatus,
			&event.RequestID,
			&event.ClientIP,
			&event.Caller,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
