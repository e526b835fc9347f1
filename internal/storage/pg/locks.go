package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// LockDurations mirrors original_source's LOCK_DURATIONS map: every lock
// type has a fixed nominal lease length.
var LockDurations = map[model.LockType]time.Duration{
	model.LockTypeListener: 30 * time.Minute,
	model.LockTypeGlobal:   5 * time.Minute,
	model.LockTypeSingle:   2 * time.Minute,
}

// DeleteExpiredLocks removes rows whose lease has already lapsed, the
// first half of acquire()'s cleanup pass (§4.B).
func (d *Database) DeleteExpiredLocks(ctx context.Context) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM locks WHERE expires_at < now()`)
	if err != nil {
		return fmt.Errorf("delete expired locks: %w", err)
	}
	return nil
}

// LiveLocksOnHost returns non-expired lock rows owned by the given
// hostname, used to drive the dead-PID cleanup pass. Stale-holder cleanup
// must never target remote hostnames (§4.B).
func (d *Database) LiveLocksOnHost(ctx context.Context, hostname string) ([]*model.Lock, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, lock_type, lock_key, process_id, hostname, acquired_at, heartbeat_at, expires_at, metadata
		FROM locks WHERE hostname = $1 AND expires_at >= now()`, hostname)
	if err != nil {
		return nil, fmt.Errorf("live locks on host: %w", err)
	}
	defer rows.Close()

	var out []*model.Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLockByID removes a single lock row by id, used by dead-PID cleanup.
func (d *Database) DeleteLockByID(ctx context.Context, id string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM locks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lock by id: %w", err)
	}
	return nil
}

// TryAcquireLock performs the insert-if-not-exists half of acquire():
// expired-row and dead-holder cleanup must have already run by the time
// this is called. Returns the inserted lock id and true iff the insert
// produced a row.
func (d *Database) TryAcquireLock(ctx context.Context, lockType model.LockType, lockKey string, processID int, hostname string, metadata map[string]interface{}) (string, bool, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", false, fmt.Errorf("marshal lock metadata: %w", err)
	}
	duration := LockDurations[lockType]

	var id string
	err = d.DB.QueryRowContext(ctx, `
		INSERT INTO locks (lock_type, lock_key, process_id, hostname, expires_at, metadata)
		VALUES ($1, $2, $3, $4, now() + $5::interval, $6)
		ON CONFLICT (lock_type, lock_key) DO NOTHING
		RETURNING id`,
		lockType, lockKey, processID, hostname, fmt.Sprintf("%d seconds", int(duration.Seconds())), metadataJSON,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("try acquire lock: %w", err)
	}
	return id, true, nil
}

// HeartbeatLock refreshes heartbeat_at and extends expires_at for a lock
// still owned by this process id, returning whether a row was refreshed.
func (d *Database) HeartbeatLock(ctx context.Context, id string, processID int, lockType model.LockType) (bool, error) {
	duration := LockDurations[lockType]
	res, err := d.DB.ExecContext(ctx, `
		UPDATE locks SET heartbeat_at = now(), expires_at = now() + $3::interval
		WHERE id = $1 AND process_id = $2`,
		id, processID, fmt.Sprintf("%d seconds", int(duration.Seconds())),
	)
	if err != nil {
		return false, fmt.Errorf("heartbeat lock: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseLock deletes a single lock row owned by processID.
func (d *Database) ReleaseLock(ctx context.Context, lockType model.LockType, lockKey string, processID int) error {
	_, err := d.DB.ExecContext(ctx, `
		DELETE FROM locks WHERE lock_type = $1 AND lock_key = $2 AND process_id = $3`,
		lockType, lockKey, processID,
	)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// ReleaseAllLocksForProcess drops every lock owned by processID, used on
// shutdown (§5 "Locks owned by this process are released").
func (d *Database) ReleaseAllLocksForProcess(ctx context.Context, processID int) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM locks WHERE process_id = $1`, processID)
	if err != nil {
		return fmt.Errorf("release all locks for process: %w", err)
	}
	return nil
}

// ForceReleaseLock is the operator escape hatch (§4.B force_release), not
// scoped to any particular process id.
func (d *Database) ForceReleaseLock(ctx context.Context, lockType model.LockType, lockKey string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM locks WHERE lock_type = $1 AND lock_key = $2`, lockType, lockKey)
	if err != nil {
		return fmt.Errorf("force release lock: %w", err)
	}
	return nil
}

// GetLiveLock returns the holder row if a non-expired lock exists,
// ErrNotFound otherwise — used by check().
func (d *Database) GetLiveLock(ctx context.Context, lockType model.LockType, lockKey string) (*model.Lock, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, lock_type, lock_key, process_id, hostname, acquired_at, heartbeat_at, expires_at, metadata
		FROM locks WHERE lock_type = $1 AND lock_key = $2 AND expires_at >= now()`, lockType, lockKey)
	l, err := scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get live lock: %w", err)
	}
	return l, nil
}

// ListAllLocks lists every lock row, oldest acquisition first.
func (d *Database) ListAllLocks(ctx context.Context) ([]*model.Lock, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, lock_type, lock_key, process_id, hostname, acquired_at, heartbeat_at, expires_at, metadata
		FROM locks ORDER BY acquired_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all locks: %w", err)
	}
	defer rows.Close()

	var out []*model.Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLock(row interface{ Scan(dest ...interface{}) error }) (*model.Lock, error) {
	var l model.Lock
	var metadataJSON []byte
	if err := row.Scan(&l.ID, &l.LockType, &l.LockKey, &l.ProcessID, &l.Hostname, &l.AcquiredAt, &l.HeartbeatAt, &l.ExpiresAt, &metadataJSON); err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &l.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal lock metadata: %w", err)
		}
	}
	return &l, nil
}
