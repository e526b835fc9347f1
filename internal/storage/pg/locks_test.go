package pg

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

func TestTryAcquireLockSucceedsOnFreshKey(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectQuery("INSERT INTO locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lock-1"))

	id, ok, err := d.TryAcquireLock(context.Background(), model.LockTypeListener, "telegram", 1234, "host-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || id != "lock-1" {
		t.Fatalf("expected acquired lock-1, got ok=%v id=%q", ok, id)
	}
}

func TestTryAcquireLockReportsContentionOnConflict(t *testing.T) {
	d, mock := newMockDatabase(t)

	// ON CONFLICT DO NOTHING ... RETURNING id returns no row when another
	// holder already owns the (lock_type, lock_key) pair.
	mock.ExpectQuery("INSERT INTO locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, ok, err := d.TryAcquireLock(context.Background(), model.LockTypeListener, "telegram", 1234, "host-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || id != "" {
		t.Fatalf("expected contested acquire, got ok=%v id=%q", ok, id)
	}
}

func TestHeartbeatLockReportsFalseWhenNoRowsMatch(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectExec("UPDATE locks SET heartbeat_at").
		WithArgs("lock-1", 1234, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	refreshed, err := d.HeartbeatLock(context.Background(), "lock-1", 1234, model.LockTypeListener)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refreshed {
		t.Fatal("expected refreshed=false when no row matched (lock lost to another holder)")
	}
}

func TestGetLiveLockReturnsErrNotFoundWhenExpired(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectQuery("SELECT .* FROM locks WHERE lock_type = \\$1 AND lock_key = \\$2 AND expires_at >= now\\(\\)").
		WithArgs(model.LockTypeListener, "telegram").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lock_type", "lock_key", "process_id", "hostname",
			"acquired_at", "heartbeat_at", "expires_at", "metadata",
		}))

	_, err := d.GetLiveLock(context.Background(), model.LockTypeListener, "telegram")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
