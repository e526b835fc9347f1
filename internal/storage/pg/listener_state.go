package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// UpsertListenerState is the singleton upsert from original_source's
// ListenerStateManager.update_state: started_at is only reset when
// transitioning into "running" from a non-running status.
func (d *Database) UpsertListenerState(ctx context.Context, status model.ListenerStatus, processID int, hostname string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO listener_state (id, status, started_at, last_heartbeat, process_id, hostname, updated_at)
		VALUES ('singleton', $1, now(), now(), $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = CASE
				WHEN EXCLUDED.status = 'running' AND listener_state.status != 'running' THEN now()
				ELSE listener_state.started_at
			END,
			last_heartbeat = now(),
			process_id = EXCLUDED.process_id,
			hostname = EXCLUDED.hostname,
			updated_at = now()`,
		status, processID, hostname,
	)
	if err != nil {
		return fmt.Errorf("upsert listener state: %w", err)
	}
	return nil
}

// IncrementMessagesReceived bumps the singleton row's message counter,
// called only on an actual insert (§4.D step 7).
func (d *Database) IncrementMessagesReceived(ctx context.Context, n int64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE listener_state SET messages_received = messages_received + $1, last_heartbeat = now(), updated_at = now()
		WHERE id = 'singleton'`, n)
	if err != nil {
		return fmt.Errorf("increment messages received: %w", err)
	}
	return nil
}

// RecordListenerErrors persists the most-recent 10 entries of the rolling
// in-memory error list (§7 propagation policy).
func (d *Database) RecordListenerErrors(ctx context.Context, errs []model.ListenerErrorEntry) error {
	if len(errs) > 10 {
		errs = errs[len(errs)-10:]
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal listener errors: %w", err)
	}
	_, err = d.DB.ExecContext(ctx, `
		UPDATE listener_state SET recent_errors = $1, updated_at = now() WHERE id = 'singleton'`, errsJSON)
	if err != nil {
		return fmt.Errorf("record listener errors: %w", err)
	}
	return nil
}

// GetListenerState reads the singleton row, used by the Health Surface.
func (d *Database) GetListenerState(ctx context.Context) (*model.ListenerState, error) {
	var s model.ListenerState
	var startedAt, lastHeartbeat sql.NullTime
	var errsJSON []byte
	var processID sql.NullInt32
	var hostname sql.NullString

	err := d.DB.QueryRowContext(ctx, `
		SELECT status, started_at, last_heartbeat, messages_received, recent_errors, process_id, hostname
		FROM listener_state WHERE id = 'singleton'`,
	).Scan(&s.Status, &startedAt, &lastHeartbeat, &s.MessagesReceived, &errsJSON, &processID, &hostname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listener state: %w", err)
	}

	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if lastHeartbeat.Valid {
		s.LastHeartbeat = &lastHeartbeat.Time
	}
	s.ProcessID = int(processID.Int32)
	s.Hostname = hostname.String
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &s.RecentErrors); err != nil {
			return nil, fmt.Errorf("unmarshal recent errors: %w", err)
		}
	}
	return &s, nil
}
