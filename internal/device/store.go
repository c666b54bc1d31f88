package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/countrelay/internal/infrastructure/database"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the durable state of every counter device.
//
// All public methods are safe for concurrent use.
type Store struct {
	db     *database.DB
	locks  pinLocks
	logger Logger
}

// NewStore creates a Store backed by a migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:     db,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// ensureDevice inserts pin with default values unless it already exists.
func ensureDevice(ctx context.Context, tx *sql.Tx, pin string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO devices (pin, current_count, enabled, mode) VALUES (?, 0, 1, ?)",
		pin, string(DefaultMode),
	)
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	var d Device
	var enabled int
	var mode string
	if err := row.Scan(&d.Pin, &d.CurrentCount, &enabled, &mode); err != nil {
		return nil, err
	}
	d.Enabled = enabled == 1
	d.Mode = Mode(mode)
	return &d, nil
}

const selectDevice = "SELECT pin, current_count, enabled, mode FROM devices WHERE pin = ?"

// ApplyChange adds delta to the pin's counter and appends the matching log
// entry in one transaction. An unknown pin is created with defaults first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - pin: Device identifier
//   - delta: -1 or +1
//   - at: Receipt time, stored as Unix seconds
//
// Returns:
//   - int64: The counter value after the change
//   - error: ErrInvalidPin, ErrInvalidChange, ErrDeviceDisabled, or a persistence error
func (s *Store) ApplyChange(ctx context.Context, pin string, delta int, at time.Time) (int64, error) {
	if pin == "" {
		return 0, ErrInvalidPin
	}
	if !validChange(delta) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChange, delta)
	}

	unlock := s.locks.lock(pin)
	defer unlock()

	var newCount int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, pin); err != nil {
			return err
		}

		// The enabled check and the increment read the same row version.
		err := tx.QueryRowContext(ctx,
			`UPDATE devices
			 SET current_count = current_count + ?,
			     updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			 WHERE pin = ? AND enabled = 1
			 RETURNING current_count`,
			delta, pin,
		).Scan(&newCount)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDeviceDisabled
		}
		if err != nil {
			return fmt.Errorf("updating count: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO logs (pin, change, new_count, ts) VALUES (?, ?, ?, ?)",
			pin, delta, newCount, at.Unix(),
		); err != nil {
			return fmt.Errorf("appending log: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

// GetOrCreate returns the device for pin, creating it with defaults
// (count 0, enabled, increment) on first reference.
func (s *Store) GetOrCreate(ctx context.Context, pin string) (*Device, error) {
	if pin == "" {
		return nil, ErrInvalidPin
	}

	unlock := s.locks.lock(pin)
	defer unlock()

	var d *Device
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, pin); err != nil {
			return err
		}
		var err error
		d, err = scanDevice(tx.QueryRowContext(ctx, selectDevice, pin))
		if err != nil {
			return fmt.Errorf("reading device: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns the device for pin or ErrDeviceNotFound.
func (s *Store) Get(ctx context.Context, pin string) (*Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, selectDevice, pin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading device: %w", err)
	}
	return d, nil
}

// CurrentCount returns the pin's counter, or 0 for an unknown pin.
// It never creates a device.
func (s *Store) CurrentCount(ctx context.Context, pin string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT current_count FROM devices WHERE pin = ?", pin).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading count: %w", err)
	}
	return count, nil
}

// GetMode returns the pin's mode, creating the device if needed. A stored
// value outside the enum is repaired to DefaultMode.
func (s *Store) GetMode(ctx context.Context, pin string) (Mode, error) {
	if pin == "" {
		return "", ErrInvalidPin
	}

	unlock := s.locks.lock(pin)
	defer unlock()

	var mode Mode
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, pin); err != nil {
			return err
		}

		var raw string
		if err := tx.QueryRowContext(ctx, "SELECT mode FROM devices WHERE pin = ?", pin).Scan(&raw); err != nil {
			return fmt.Errorf("reading mode: %w", err)
		}

		mode = Mode(strings.ToLower(strings.TrimSpace(raw)))
		if mode.Valid() && string(mode) == raw {
			return nil
		}
		if !mode.Valid() {
			s.logger.Warn("repairing invalid device mode", "pin", pin, "stored", raw)
			mode = DefaultMode
		}
		if _, err := tx.ExecContext(ctx, "UPDATE devices SET mode = ? WHERE pin = ?", string(mode), pin); err != nil {
			return fmt.Errorf("repairing mode: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return mode, nil
}

// SetMode validates raw and stores it as the pin's mode, creating the
// device if needed. An invalid value leaves the stored mode unchanged.
func (s *Store) SetMode(ctx context.Context, pin, raw string) (Mode, error) {
	if pin == "" {
		return "", ErrInvalidPin
	}
	mode, err := ParseMode(raw)
	if err != nil {
		return "", err
	}

	unlock := s.locks.lock(pin)
	defer unlock()

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, pin); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE devices SET mode = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE pin = ?",
			string(mode), pin,
		)
		if err != nil {
			return fmt.Errorf("updating mode: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return mode, nil
}

// SetEnabled sets the enabled flag of every listed pin in one transaction.
// Pins without a device row are skipped.
//
// Returns:
//   - int64: Number of devices updated
//   - error: nil on success, otherwise the persistence error (nothing is changed)
func (s *Store) SetEnabled(ctx context.Context, pins []string, enabled bool) (int64, error) {
	pins = uniquePins(pins)
	if len(pins) == 0 {
		return 0, nil
	}

	unlock := s.locks.lockAll(pins)
	defer unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pins)), ",")
	args := make([]any, 0, len(pins)+1)
	args = append(args, boolToInt(enabled))
	for _, pin := range pins {
		args = append(args, pin)
	}

	var affected int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		//nolint:gosec // placeholders are only "?" characters
		res, err := tx.ExecContext(ctx,
			"UPDATE devices SET enabled = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE pin IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return fmt.Errorf("updating enabled: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("fleet enabled state changed", "pins", len(pins), "updated", affected, "enabled", enabled)
	return affected, nil
}

// Logs returns the pin's most recent log entries, newest first.
// The limit is clamped with ClampLogLimit.
func (s *Store) Logs(ctx context.Context, pin string, limit int) ([]LogEntry, error) {
	limit = ClampLogLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pin, change, new_count, ts
		 FROM logs
		 WHERE pin = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		pin, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0, limit)
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Pin, &e.Change, &e.NewCount, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return entries, nil
}

func uniquePins(pins []string) []string {
	seen := make(map[string]struct{}, len(pins))
	out := make([]string, 0, len(pins))
	for _, pin := range pins {
		if pin == "" {
			continue
		}
		if _, ok := seen[pin]; ok {
			continue
		}
		seen[pin] = struct{}{}
		out = append(out, pin)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
