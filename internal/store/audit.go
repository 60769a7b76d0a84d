package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/raven/internal/model"
)

// AuditStore appends to the logs table. The service only ever writes;
// reading is left to operator tooling.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(userID int64, action, details string) error {
	_, err := s.db.Exec(
		`INSERT INTO logs (user_id, action, details) VALUES (?, ?, ?)`,
		userID, action, details,
	)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// ListByUser returns the most recent entries for an account, newest first.
// Used by tests and admin tooling, not the request path.
func (s *AuditStore) ListByUser(userID int64, limit int) ([]*model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, action, details, created_at FROM logs WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
