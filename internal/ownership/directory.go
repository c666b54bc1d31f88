// Package ownership maps users to the device pins they own.
//
// The directory is read by the access-control gate (who owns this pin, and
// what is their badge) and by the fan-out hub (which of these pins may this
// viewer see). Removing the last owner of a pin purges the device and its
// log history.
package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/infrastructure/database"
)

// ErrNotLinked is returned when unlinking a pin the user does not own.
var ErrNotLinked = errors.New("ownership: pin not linked to user")

// Owner is a user linked to a pin, with the badge credential used to
// authorise fleet toggles. RFIDUID is empty when none is registered.
type Owner struct {
	UserID   int64
	Username string
	RFIDUID  string
}

// HasCredential reports whether the owner registered a badge.
func (o Owner) HasCredential() bool {
	return o.RFIDUID != ""
}

// Directory is the SQLite-backed ownership directory.
type Directory struct {
	db *database.DB
}

// NewDirectory creates a Directory.
func NewDirectory(db *database.DB) *Directory {
	return &Directory{db: db}
}

// Link makes userID an owner of pin, creating the device with defaults if
// it does not exist. Linking an already owned pin is a no-op.
//
// Returns:
//   - bool: true when a new link was created
//   - error: device.ErrInvalidPin or a persistence error
func (d *Directory) Link(ctx context.Context, userID int64, pin string) (bool, error) {
	if pin == "" {
		return false, device.ErrInvalidPin
	}

	var created bool
	err := d.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO devices (pin, current_count, enabled, mode) VALUES (?, 0, 1, ?)",
			pin, string(device.DefaultMode),
		); err != nil {
			return fmt.Errorf("creating device: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_devices (user_id, pin) VALUES (?, ?)",
			userID, pin,
		)
		if err != nil {
			return fmt.Errorf("linking device: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		created = n == 1
		return nil
	})
	return created, err
}

// Unlink removes userID's link to pin. When no owner remains the device and
// its logs are deleted in the same transaction.
//
// Returns:
//   - bool: true when the device was purged
//   - error: ErrNotLinked if there was no such link, or a persistence error
func (d *Directory) Unlink(ctx context.Context, userID int64, pin string) (bool, error) {
	var purged bool
	err := d.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM user_devices WHERE user_id = ? AND pin = ?",
			userID, pin,
		)
		if err != nil {
			return fmt.Errorf("unlinking device: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotLinked
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM user_devices WHERE pin = ?", pin,
		).Scan(&remaining); err != nil {
			return fmt.Errorf("counting owners: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		// logs rows go with the device via ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE pin = ?", pin); err != nil {
			return fmt.Errorf("deleting orphaned device: %w", err)
		}
		purged = true
		return nil
	})
	return purged, err
}

// Owners returns every owner of pin in link order.
func (d *Directory) Owners(ctx context.Context, pin string) ([]Owner, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT u.id, u.username, COALESCE(u.rfid_uid, '')
		 FROM user_devices ud
		 JOIN users u ON u.id = ud.user_id
		 WHERE ud.pin = ?
		 ORDER BY ud.id`,
		pin,
	)
	if err != nil {
		return nil, fmt.Errorf("querying owners: %w", err)
	}
	defer rows.Close()

	var owners []Owner
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.UserID, &o.Username, &o.RFIDUID); err != nil {
			return nil, fmt.Errorf("scanning owner: %w", err)
		}
		owners = append(owners, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owners: %w", err)
	}
	return owners, nil
}

// IsOwned reports whether userID owns pin.
func (d *Directory) IsOwned(ctx context.Context, userID int64, pin string) (bool, error) {
	var exists int
	err := d.db.QueryRowContext(ctx,
		"SELECT 1 FROM user_devices WHERE user_id = ? AND pin = ?",
		userID, pin,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ownership: %w", err)
	}
	return true, nil
}

// ListOwnedPins returns the pins userID owns, sorted.
func (d *Directory) ListOwnedPins(ctx context.Context, userID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT pin FROM user_devices WHERE user_id = ? ORDER BY pin",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying owned pins: %w", err)
	}
	defer rows.Close()

	pins := []string{}
	for rows.Next() {
		var pin string
		if err := rows.Scan(&pin); err != nil {
			return nil, fmt.Errorf("scanning pin: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owned pins: %w", err)
	}
	return pins, nil
}

// ListOwnedDevices returns the devices userID owns, ordered by pin.
func (d *Directory) ListOwnedDevices(ctx context.Context, userID int64) ([]device.Device, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT d.pin, d.current_count, d.enabled, d.mode
		 FROM user_devices ud
		 JOIN devices d ON d.pin = ud.pin
		 WHERE ud.user_id = ?
		 ORDER BY d.pin`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying owned devices: %w", err)
	}
	defer rows.Close()

	devices := []device.Device{}
	for rows.Next() {
		var dev device.Device
		var enabled int
		var mode string
		if err := rows.Scan(&dev.Pin, &dev.CurrentCount, &enabled, &mode); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		dev.Enabled = enabled == 1
		dev.Mode = device.Mode(mode)
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owned devices: %w", err)
	}
	return devices, nil
}
