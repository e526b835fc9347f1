package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSessionBlob reads the singleton worker_sessions row (§3 "Worker
// Session Blob"), the second-priority source in the Session Manager's
// resolution order (§4.A).
func (d *Database) GetSessionBlob(ctx context.Context) ([]byte, error) {
	var data []byte
	err := d.DB.QueryRowContext(ctx, `SELECT session_data FROM worker_sessions WHERE id = 'default'`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session blob: %w", err)
	}
	return data, nil
}

// UpsertSessionBlob rewrites the singleton row, used by the Session
// Manager's hourly copy-back (§4.A).
func (d *Database) UpsertSessionBlob(ctx context.Context, data []byte) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO worker_sessions (id, session_data, updated_at) VALUES ('default', $1, now())
		ON CONFLICT (id) DO UPDATE SET session_data = EXCLUDED.session_data, updated_at = now()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert session blob: %w", err)
	}
	return nil
}
