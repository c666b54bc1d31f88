// Package audit records every RFID toggle decision in the access_events
// table so operators can review who gated which fleet and which badge
// swipes were refused.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/countrelay/internal/infrastructure/database"
)

// Decision reasons.
const (
	ReasonGranted            = "granted"
	ReasonCredentialMismatch = "credential_mismatch"
	ReasonNoOwner            = "no_owner"
)

// Page size bounds for List.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AccessEvent is one toggle decision. Entries are append-only.
type AccessEvent struct {
	ID  string `json:"id"`
	Pin string `json:"pin"`
	// UUID is the credential presented by the device.
	UUID string `json:"uuid"`
	// UserID is the owner whose fleet was toggled; nil unless granted.
	UserID  *int64 `json:"user_id,omitempty"`
	Granted bool   `json:"granted"`
	// Enabled is the state applied to the fleet; nil unless granted.
	Enabled   *bool     `json:"enabled,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which access events to return.
type Filter struct {
	Pin     string // optional
	Granted *bool  // optional
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult contains a page of access events.
type ListResult struct {
	Events []AccessEvent `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// Repository defines the interface for access event persistence.
type Repository interface {
	Record(ctx context.Context, event *AccessEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores access events in SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new access event repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an access event. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, event *AccessEvent) error {
	if event.ID == "" {
		event.ID = "acc-" + uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	var enabled any
	if event.Enabled != nil {
		enabled = boolToInt(*event.Enabled)
	}
	var userID any
	if event.UserID != nil {
		userID = *event.UserID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_events (id, pin, uuid, user_id, granted, enabled, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Pin, event.UUID, userID,
		boolToInt(event.Granted), enabled, event.Reason,
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access event: %w", err)
	}
	return nil
}

// List returns access events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Pin != "" {
		conditions = append(conditions, "pin = ?")
		args = append(args, filter.Pin)
	}
	if filter.Granted != nil {
		conditions = append(conditions, "granted = ?")
		args = append(args, boolToInt(*filter.Granted))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_events "+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from parameterised conditions
		return nil, fmt.Errorf("counting access events: %w", err)
	}

	query := "SELECT id, pin, uuid, user_id, granted, enabled, reason, created_at FROM access_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying access events: %w", err)
	}
	defer rows.Close()

	events := []AccessEvent{}
	for rows.Next() {
		var e AccessEvent
		var userID sql.NullInt64
		var enabled sql.NullInt64
		var granted int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Pin, &e.UUID, &userID, &granted, &enabled, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning access event: %w", err)
		}
		e.Granted = granted == 1
		if userID.Valid {
			id := userID.Int64
			e.UserID = &id
		}
		if enabled.Valid {
			v := enabled.Int64 == 1
			e.Enabled = &v
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access events: %w", err)
	}

	return &ListResult{Events: events, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
