package mailbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
)

// Repository defines the interface for response persistence.
type Repository interface {
	// Insert stores a response and returns its store-assigned id.
	Insert(ctx context.Context, r *Response) (int64, error)

	// TakeRecent atomically selects up to limit responses for code created
	// at or after since, newest first, and deletes them.
	// Payloads are returned as stored, without validation. Responses
	// already deleted before an error are returned together with it.
	TakeRecent(ctx context.Context, code string, since time.Time, limit int) ([]Response, error)

	// DeleteBefore removes responses created before the cutoff.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Count returns the number of stored responses.
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a response.
func (r *SQLiteRepository) Insert(ctx context.Context, resp *Response) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO responses (device_id, device_code, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		resp.DeviceID, resp.DeviceCode, string(resp.Payload), database.FormatTime(resp.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting response: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading response id: %w", err)
	}
	return id, nil
}

// TakeRecent reads and deletes in one immediate transaction.
func (r *SQLiteRepository) TakeRecent(ctx context.Context, code string, since time.Time, limit int) ([]Response, error) {
	var taken []Response

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, device_id, device_code, payload, created_at
			FROM responses
			WHERE device_code = ? AND created_at >= ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`,
			code, database.FormatTime(since), limit,
		)
		if err != nil {
			return fmt.Errorf("selecting responses: %w", err)
		}
		taken, err = scanResponses(rows)
		rows.Close()
		if err != nil || len(taken) == 0 {
			return err
		}

		ids := make([]any, len(taken))
		for i, resp := range taken {
			ids[i] = resp.ID
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(taken)), ",")
		if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE id IN (`+placeholders+`)`, ids...); err != nil {
			return fmt.Errorf("deleting read responses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// DeleteBefore purges aged responses.
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM responses WHERE created_at < ?`, database.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting responses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of stored responses.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return n, nil
}

func scanResponses(rows *sql.Rows) ([]Response, error) {
	var responses []Response
	for rows.Next() {
		var resp Response
		var payload, createdAt string
		if err := rows.Scan(&resp.ID, &resp.DeviceID, &resp.DeviceCode, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		resp.Payload = json.RawMessage(payload)

		var err error
		if resp.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for response %d: %w", resp.ID, err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}
	return responses, nil
}
