package lockservice

import (
	"context"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.New(logger.Config{})
	svc := New(&pg.Database{DB: sqlDB}, log)
	return svc, mock
}

// TestAcquireRunsCleanupBeforeInsert exercises the §4.B ordering: expired
// rows and dead local holders are cleaned up before the insert-if-not-
// exists is even attempted, so a stale lease never blocks a fresh one.
func TestAcquireRunsCleanupBeforeInsert(t *testing.T) {
	svc, mock := newTestService(t)
	hostname, _ := os.Hostname()

	mock.ExpectExec("DELETE FROM locks WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM locks WHERE hostname").
		WithArgs(hostname).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lock_type", "lock_key", "process_id", "hostname",
			"acquired_at", "heartbeat_at", "expires_at", "metadata",
		}))
	mock.ExpectQuery("INSERT INTO locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lock-1"))

	ok, err := svc.Acquire(context.Background(), model.LockTypeListener, "telegram", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcquireReportsContentionWithoutError(t *testing.T) {
	svc, mock := newTestService(t)
	hostname, _ := os.Hostname()

	mock.ExpectExec("DELETE FROM locks WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM locks WHERE hostname").
		WithArgs(hostname).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lock_type", "lock_key", "process_id", "hostname",
			"acquired_at", "heartbeat_at", "expires_at", "metadata",
		}))
	mock.ExpectQuery("INSERT INTO locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := svc.Acquire(context.Background(), model.LockTypeListener, "telegram", nil)
	if err != nil {
		t.Fatalf("expected contention to be reported without an error, got %v", err)
	}
	if ok {
		t.Fatal("expected acquire to fail on contention")
	}
}

// TestHeartbeatDropsLeaseOnceLostToAnotherHolder checks that a failed
// refresh (lease stolen or expired) removes the lock from the in-process
// held set, so a subsequent Release never deletes someone else's row.
func TestHeartbeatDropsLeaseOnceLostToAnotherHolder(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM locks WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 0))
	hostname, _ := os.Hostname()
	mock.ExpectQuery("SELECT .* FROM locks WHERE hostname").
		WithArgs(hostname).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lock_type", "lock_key", "process_id", "hostname",
			"acquired_at", "heartbeat_at", "expires_at", "metadata",
		}))
	mock.ExpectQuery("INSERT INTO locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lock-1"))

	ctx := context.Background()
	ok, err := svc.Acquire(ctx, model.LockTypeListener, "telegram", nil)
	if err != nil || !ok {
		t.Fatalf("setup acquire failed: ok=%v err=%v", ok, err)
	}

	mock.ExpectExec("UPDATE locks SET heartbeat_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	svc.Heartbeat(ctx)

	svc.mu.Lock()
	_, stillHeld := svc.held[heldKey(model.LockTypeListener, "telegram")]
	svc.mu.Unlock()
	if stillHeld {
		t.Fatal("expected lock dropped from held set after a failed heartbeat")
	}
}
