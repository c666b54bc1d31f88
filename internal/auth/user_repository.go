package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/countrelay/internal/infrastructure/database"
)

// UserRepository defines the persistence the auth service needs.
type UserRepository interface {
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetRFID(ctx context.Context, id int64, uid string) error
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *database.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const selectUser = "SELECT id, username, password_hash, rfid_uid, created_at FROM users"

// Create inserts a new user. A taken username yields ErrUsernameExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}
	return &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetByID retrieves a user by ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE id = ?", id))
}

// GetByUsername retrieves a user by username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE username = ?", username))
}

// SetRFID stores the user's badge UID. An empty uid clears it.
func (r *SQLiteUserRepository) SetRFID(ctx context.Context, id int64, uid string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET rfid_uid = ? WHERE id = ?", nullString(uid), id)
	if err != nil {
		return fmt.Errorf("updating rfid: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var rfid sql.NullString
	var createdAt string

	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &rfid, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.RFIDUID = rfid.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &u, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
