package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
)

// Repository defines the interface for command persistence.
type Repository interface {
	// Insert stores c as pending and returns its store-assigned id.
	Insert(ctx context.Context, c *Command) (int64, error)

	// ClaimPending atomically selects up to limit of the oldest pending
	// commands for deviceID and marks them completed at the given time.
	// Payloads are returned as stored, without validation. If an error
	// interrupts a claim that has already completed some commands, those
	// commands are returned together with the error.
	ClaimPending(ctx context.Context, deviceID string, limit int, at time.Time) ([]Command, error)

	// DeleteCompletedBefore removes completed commands executed before the
	// cutoff. Pending commands are never removed.
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)

	// CountByStatus returns the number of commands in each status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a pending command.
func (r *SQLiteRepository) Insert(ctx context.Context, c *Command) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (device_id, device_code, payload, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)`,
		c.DeviceID, c.DeviceCode, string(c.Payload), database.FormatTime(c.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting command: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading command id: %w", err)
	}
	return id, nil
}

// ClaimPending selects and completes pending commands in one immediate
// transaction. The update is guarded by status so that a row another
// drain already claimed can never be returned twice; if the guard drops a
// row the whole claim is rolled back.
func (r *SQLiteRepository) ClaimPending(ctx context.Context, deviceID string, limit int, at time.Time) ([]Command, error) {
	executedAt := at.UTC()
	var claimed []Command

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, device_id, device_code, payload, created_at
			FROM commands
			WHERE device_id = ? AND status = 'pending'
			ORDER BY id
			LIMIT ?`,
			deviceID, limit,
		)
		if err != nil {
			return fmt.Errorf("selecting pending commands: %w", err)
		}
		claimed, err = scanCommands(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]any, 0, len(claimed)+1)
		ids = append(ids, database.FormatTime(executedAt))
		for _, c := range claimed {
			ids = append(ids, c.ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(claimed)), ",")

		result, err := tx.ExecContext(ctx, `
			UPDATE commands
			SET status = 'completed', executed_at = ?
			WHERE status = 'pending' AND id IN (`+placeholders+`)`,
			ids...,
		)
		if err != nil {
			return fmt.Errorf("completing commands: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n != int64(len(claimed)) {
			return fmt.Errorf("%w: selected %d, completed %d", ErrClaimConflict, len(claimed), n)
		}

		for i := range claimed {
			claimed[i].Status = StatusCompleted
			claimed[i].ExecutedAt = &executedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// DeleteCompletedBefore purges completed commands.
func (r *SQLiteRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM commands
		WHERE status = 'completed' AND executed_at < ?`,
		database.FormatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting completed commands: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// CountByStatus returns command counts keyed by status, zero-filled.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM commands GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting commands: %w", err)
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
			return nil, fmt.Errorf("scanning command count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command counts: %w", err)
	}
	return counts, nil
}

func scanCommands(rows *sql.Rows) ([]Command, error) {
	var commands []Command
	for rows.Next() {
		var c Command
		var payload, createdAt string
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.DeviceCode, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		c.Payload = json.RawMessage(payload)
		c.Status = StatusPending

		var err error
		if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for command %d: %w", c.ID, err)
		}
		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return commands, nil
}
