// Package lockservice implements the distributed lease on top of
// internal/storage/pg, plus the singleton Listener State row. It is the
// Go-side embodiment of spec.md §4.B: every method here maps to one bullet
// of that section.
package lockservice

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

// heldLock is what this process remembers about a lease it is holding, so
// heartbeat/release don't need a round trip to re-derive the lock type.
type heldLock struct {
	id       string
	lockType model.LockType
	lockKey  string
}

// Service is the Lock & State Service (§4.B). One instance per process;
// its in-process held-lock map is never shared across processes, matching
// §5's "no shared mutable in-memory state beyond" list.
type Service struct {
	db        *pg.Database
	log       *logger.Logger
	processID int
	hostname  string

	mu   sync.Mutex
	held map[string]*heldLock // "lockType/lockKey" -> heldLock
}

// New constructs a Service bound to this process's PID and hostname.
func New(db *pg.Database, log *logger.Logger) *Service {
	hostname, _ := os.Hostname()
	return &Service{
		db:        db,
		log:       log.WithComponent("lockservice"),
		processID: os.Getpid(),
		hostname:  hostname,
		held:      make(map[string]*heldLock),
	}
}

func heldKey(lockType model.LockType, lockKey string) string {
	return string(lockType) + "/" + lockKey
}

// Acquire implements §4.B acquire(): expired-row cleanup, then dead-local-
// holder cleanup (never targeting remote hostnames), then an
// insert-if-not-exists. Returns false (not an error) on contention.
func (s *Service) Acquire(ctx context.Context, lockType model.LockType, lockKey string, metadata map[string]interface{}) (bool, error) {
	if err := s.db.DeleteExpiredLocks(ctx); err != nil {
		return false, fmt.Errorf("acquire %s/%s: %w", lockType, lockKey, err)
	}

	if err := s.cleanupDeadLocalHolders(ctx); err != nil {
		return false, fmt.Errorf("acquire %s/%s: %w", lockType, lockKey, err)
	}

	id, ok, err := s.db.TryAcquireLock(ctx, lockType, lockKey, s.processID, s.hostname, metadata)
	if err != nil {
		return false, fmt.Errorf("acquire %s/%s: %w", lockType, lockKey, err)
	}
	if !ok {
		s.log.Debug("lock contested", "lock_type", lockType, "lock_key", lockKey)
		return false, nil
	}

	s.mu.Lock()
	s.held[heldKey(lockType, lockKey)] = &heldLock{id: id, lockType: lockType, lockKey: lockKey}
	s.mu.Unlock()

	s.log.Info("lock acquired", "lock_type", lockType, "lock_key", lockKey)
	return true, nil
}

// cleanupDeadLocalHolders probes every non-expired lock held on this host
// with a signal-0 liveness check, deleting rows whose owning PID is gone.
// Remote hostnames are never touched (§4.B "must never target remote
// hostnames").
func (s *Service) cleanupDeadLocalHolders(ctx context.Context) error {
	locks, err := s.db.LiveLocksOnHost(ctx, s.hostname)
	if err != nil {
		return err
	}
	for _, l := range locks {
		if l.ProcessID == s.processID {
			continue
		}
		if processAlive(l.ProcessID) {
			continue
		}
		if err := s.db.DeleteLockByID(ctx, l.ID); err != nil {
			return err
		}
		s.log.Info("cleaned up dead local holder", "lock_type", l.LockType, "lock_key", l.LockKey, "dead_pid", l.ProcessID)
	}
	return nil
}

// processAlive performs the signal-0 probe §4.B describes: sending signal
// 0 doesn't actually deliver a signal, just checks permission/existence.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Heartbeat refreshes every in-process lock's heartbeat_at/expires_at.
// Must be called at least every half-lease (§4.B); the caller owns the
// 30s invocation period (§4.B "Invoke period: 30 s").
func (s *Service) Heartbeat(ctx context.Context) {
	s.mu.Lock()
	locks := make([]*heldLock, 0, len(s.held))
	for _, l := range s.held {
		locks = append(locks, l)
	}
	s.mu.Unlock()

	for _, l := range locks {
		ok, err := s.db.HeartbeatLock(ctx, l.id, s.processID, l.lockType)
		if err != nil {
			s.log.LogError(ctx, err, "heartbeat failed", "lock_type", l.lockType, "lock_key", l.lockKey)
			continue
		}
		if !ok {
			// Lost the lease (expired or stolen); drop it from the held set so
			// Release doesn't try to delete a row we no longer own.
			s.mu.Lock()
			delete(s.held, heldKey(l.lockType, l.lockKey))
			s.mu.Unlock()
			s.log.Warn("lock heartbeat found lease gone", "lock_type", l.lockType, "lock_key", l.lockKey)
		}
	}
}

// Release drops a single lock this process holds.
func (s *Service) Release(ctx context.Context, lockType model.LockType, lockKey string) error {
	s.mu.Lock()
	delete(s.held, heldKey(lockType, lockKey))
	s.mu.Unlock()

	if err := s.db.ReleaseLock(ctx, lockType, lockKey, s.processID); err != nil {
		return fmt.Errorf("release %s/%s: %w", lockType, lockKey, err)
	}
	return nil
}

// ReleaseAll drops every lock this process holds, used on shutdown (§5).
func (s *Service) ReleaseAll(ctx context.Context) error {
	s.mu.Lock()
	s.held = make(map[string]*heldLock)
	s.mu.Unlock()

	if err := s.db.ReleaseAllLocksForProcess(ctx, s.processID); err != nil {
		return fmt.Errorf("release all locks: %w", err)
	}
	return nil
}

// ForceRelease is the operator escape hatch (§4.B force_release).
func (s *Service) ForceRelease(ctx context.Context, lockType model.LockType, lockKey string) error {
	return s.db.ForceReleaseLock(ctx, lockType, lockKey)
}

// HolderDescriptor is what Check returns for a live lock.
type HolderDescriptor struct {
	ProcessID int
	Hostname  string
	AcquiredAt time.Time
}

// Check implements §4.B check(): returns the holder descriptor for a
// non-expired row, cleaning it up (and reporting absence) when the holder
// lived on this host and is no longer alive.
func (s *Service) Check(ctx context.Context, lockType model.LockType, lockKey string, verifyAlive bool) (*HolderDescriptor, bool, error) {
	l, err := s.db.GetLiveLock(ctx, lockType, lockKey)
	if err != nil {
		if err == pg.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("check %s/%s: %w", lockType, lockKey, err)
	}

	if verifyAlive && l.Hostname == s.hostname && !processAlive(l.ProcessID) {
		if err := s.db.DeleteLockByID(ctx, l.ID); err != nil {
			return nil, false, fmt.Errorf("check %s/%s cleanup: %w", lockType, lockKey, err)
		}
		return nil, false, nil
	}

	return &HolderDescriptor{ProcessID: l.ProcessID, Hostname: l.Hostname, AcquiredAt: l.AcquiredAt}, true, nil
}

// RunHeartbeatLoop runs Heartbeat on the given period until ctx is
// cancelled. Intended to be started as one cooperative task by the
// coordinator (§5 "Scheduling model").
func (s *Service) RunHeartbeatLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Heartbeat(ctx)
		}
	}
}

// UpdateListenerState implements §4.B's "Listener-state operations".
func (s *Service) UpdateListenerState(ctx context.Context, status model.ListenerStatus) error {
	return s.db.UpsertListenerState(ctx, status, s.processID, s.hostname)
}

// IncrementMessages implements increment_messages(n=1).
func (s *Service) IncrementMessages(ctx context.Context, n int64) error {
	return s.db.IncrementMessagesReceived(ctx, n)
}

// GetState implements get_state().
func (s *Service) GetState(ctx context.Context) (*model.ListenerState, error) {
	return s.db.GetListenerState(ctx)
}

// RecordErrors persists the most-recent 10 entries of a rolling in-memory
// error list (§7 "Errors are recorded with timestamps...").
func (s *Service) RecordErrors(ctx context.Context, errs []model.ListenerErrorEntry) error {
	return s.db.RecordListenerErrors(ctx, errs)
}
