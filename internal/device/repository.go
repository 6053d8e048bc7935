package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, MongoDB,
// mock) and enables unit testing without database dependencies.
type Repository interface {
	// Register upserts d keyed by its ID, setting it online.
	// An existing row keeps its registered_at, and last_seen never moves
	// backwards. Returns ErrCodeConflict if a different device with the same
	// code is online and was seen at or after liveSince. On success d is
	// updated with the stored timestamps.
	Register(ctx context.Context, d *Device, liveSince time.Time) error

	// Touch records contact from a device: last_seen becomes the later of its
	// current value and at, and status becomes online.
	// Returns false if the device is unknown.
	Touch(ctx context.Context, id string, at time.Time) (bool, error)

	// FindLiveByCode returns the most recently seen online device with the
	// given code and last_seen at or after since.
	// Returns ErrDeviceNotFound if there is none.
	FindLiveByCode(ctx context.Context, code string, since time.Time) (*Device, error)

	// ListLive returns online devices seen at or after since, most recent first.
	ListLive(ctx context.Context, since time.Time) ([]Device, error)

	// MarkStale flips every online device last seen before the cutoff to
	// offline and returns the devices it flipped.
	MarkStale(ctx context.Context, before time.Time) ([]Device, error)

	// CountByStatus returns the number of devices in each status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, code, kind, status, last_seen, registered_at`

// Register upserts a device inside one immediate transaction so the
// collision check and the write cannot interleave with another registration.
func (r *SQLiteRepository) Register(ctx context.Context, d *Device, liveSince time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var holder string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM devices
			WHERE code = ? AND id <> ? AND status = 'online' AND last_seen >= ?
			LIMIT 1`,
			d.Code, d.ID, database.FormatTime(liveSince),
		).Scan(&holder)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrCodeConflict, d.Code)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking code holder: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (id, code, kind, status, last_seen, registered_at)
			VALUES (?, ?, ?, 'online', ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				code = excluded.code,
				kind = excluded.kind,
				status = 'online',
				last_seen = MAX(devices.last_seen, excluded.last_seen)`,
			d.ID, d.Code, d.Kind,
			database.FormatTime(d.LastSeen), database.FormatTime(d.RegisteredAt),
		)
		if err != nil {
			return fmt.Errorf("upserting device: %w", err)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, d.ID)
		stored, err := scanDevice(row)
		if err != nil {
			return fmt.Errorf("reading registered device: %w", err)
		}
		*d = *stored
		return nil
	})
}

// Touch records contact from a device.
func (r *SQLiteRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET last_seen = MAX(last_seen, ?), status = 'online'
		WHERE id = ?`,
		database.FormatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("touching device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// FindLiveByCode returns the most recently seen live device with code.
func (r *SQLiteRepository) FindLiveByCode(ctx context.Context, code string, since time.Time) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE code = ? AND status = 'online' AND last_seen >= ?
		ORDER BY last_seen DESC
		LIMIT 1`,
		code, database.FormatTime(since),
	)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by code: %w", err)
	}
	return d, nil
}

// ListLive returns live devices, most recently seen first.
func (r *SQLiteRepository) ListLive(ctx context.Context, since time.Time) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE status = 'online' AND last_seen >= ?
		ORDER BY last_seen DESC`,
		database.FormatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("querying live devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// MarkStale flips stale online devices to offline in one transaction.
func (r *SQLiteRepository) MarkStale(ctx context.Context, before time.Time) ([]Device, error) {
	cutoff := database.FormatTime(before)
	var flipped []Device

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+deviceColumns+`
			FROM devices
			WHERE status = 'online' AND last_seen < ?
			ORDER BY last_seen`,
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("querying stale devices: %w", err)
		}
		flipped, err = scanDevices(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE devices SET status = 'offline'
			WHERE status = 'online' AND last_seen < ?`,
			cutoff,
		); err != nil {
			return fmt.Errorf("marking devices offline: %w", err)
		}
		for i := range flipped {
			flipped[i].Status = StatusOffline
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}

// CountByStatus returns device counts keyed by status. Every status is
// present in the result, zero if no device has it.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(AllStatuses()))
	for _, s := range AllStatuses() {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning device count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device counts: %w", err)
	}
	return counts, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var status, lastSeen, registeredAt string

	if err := row.Scan(&d.ID, &d.Code, &d.Kind, &status, &lastSeen, &registeredAt); err != nil {
		return nil, err
	}
	d.Status = Status(status)

	var err error
	if d.LastSeen, err = database.ParseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	if d.RegisteredAt, err = database.ParseTime(registeredAt); err != nil {
		return nil, fmt.Errorf("parsing registered_at: %w", err)
	}
	return &d, nil
}

func scanDevices(rows *sql.Rows) ([]Device, error) {
	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}
