// Package coordinator wires the Session Manager, Lock & State Service,
// Router/Processor, discovery loops, Outbox Sender, and health surface
// into the single worker process (spec.md §5), and implements the
// restart policy (§4.G) around the realtime listener connection.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/discovery"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/health"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/ingest"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/lockservice"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/outbox"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/session"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/upstream"
)

// maxRestarts is the §4.G restart ceiling: after this many consecutive
// restarts, the coordinator gives up and the process exits 1 for an
// external supervisor (systemd, k8s) to restart it from a clean slate.
const maxRestarts = 10

// Coordinator owns every long-lived component's lifecycle.
type Coordinator struct {
	cfg  *config.Config
	db   *pg.Database
	log  *logger.Logger
	sess *session.Manager
	lock *lockservice.Service
}

// New builds a Coordinator from already-initialized config, store, and
// logger.
func New(cfg *config.Config, db *pg.Database, log *logger.Logger) *Coordinator {
	sess := session.New(db, log, cfg.SessionPath, cfg.TelegramSessionB64)
	lock := lockservice.New(db, log)
	return &Coordinator{cfg: cfg, db: db, log: log, sess: sess, lock: lock}
}

// Run is the top-level entry point: acquire the listener lock, then run
// the restart loop until ctx is cancelled or restarts are exhausted.
func (co *Coordinator) Run(ctx context.Context) error {
	if err := co.sess.Ensure(ctx); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	acquired, err := co.lock.Acquire(ctx, model.LockTypeListener, "primary", nil)
	if err != nil {
		return fmt.Errorf("acquire listener lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("listener lock held by another process")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(co.cfg.ServerShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := co.lock.ReleaseAll(shutdownCtx); err != nil {
			co.log.LogError(shutdownCtx, err, "release all locks failed")
		}
	}()

	errLog := lockservice.NewErrorLog()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_ = co.lock.UpdateListenerState(ctx, model.ListenerStarting)
		runErr := co.runOnce(ctx, errLog)
		if runErr == nil || ctx.Err() != nil {
			_ = co.lock.UpdateListenerState(ctx, model.ListenerStopped)
			return runErr
		}

		attempt++
		errLog.Add(runErr)
		_ = co.lock.RecordErrors(ctx, errLog.Recent10())
		co.log.LogError(ctx, runErr, "worker run failed, considering restart", "attempt", attempt)

		if attempt > maxRestarts {
			_ = co.lock.UpdateListenerState(ctx, model.ListenerFailed)
			co.log.Error("restart ceiling exceeded, exiting", "max_restarts", maxRestarts)
			os.Exit(1)
		}

		_ = co.lock.UpdateListenerState(ctx, model.ListenerRestarting)
		backoff := restartBackoff(attempt)
		co.log.Warn("restarting worker after backoff", "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// restartBackoff implements §4.G's min(30, 5*attempt) seconds schedule.
func restartBackoff(attempt int) time.Duration {
	seconds := 5 * attempt
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

// runOnce builds every component fresh and runs them until one fails or
// ctx is cancelled; a fresh upstream connection and Router are built on
// every restart so a previous attempt's half-open state never leaks
// forward.
func (co *Coordinator) runOnce(ctx context.Context, errLog *lockservice.ErrorLog) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := ingest.NewRouter(co.cfg.IngestQueueBufferSize, co.cfg.IngestDedupMaxSize, co.cfg.IngestDedupTrimTo, co.log)
	processor := ingest.NewProcessor(co.db, router, co.lock, co.log)
	readState := ingest.NewReadState(co.db, co.log)
	presence := ingest.NewPresence(co.db, co.log)

	dispatcher := upstream.NewDispatcher(router, readState, presence, co.log)
	client, err := upstream.NewClient(co.cfg, dispatcher, co.log)
	if err != nil {
		return fmt.Errorf("build upstream client: %w", err)
	}

	disc := discovery.New(co.db, client, router, co.log, processor.InvalidateConversation)
	store := outbox.NewDiskFileStore(co.cfg.AttachmentStoreDir)
	hostname, _ := os.Hostname()
	sender := outbox.NewSender(co.db, client, store, fmt.Sprintf("%s:%d", hostname, os.Getpid()), co.log)
	healthSrv := health.New(co.cfg, co.lock, client, disc, co.sess, co.log)

	tasks := []func(){
		func() { processor.Run(runCtx) },
		func() { co.lock.RunHeartbeatLoop(runCtx, co.cfg.LockHeartbeatInterval) },
		func() { co.sess.RunSyncLoop(runCtx, time.Hour) },
		func() { disc.RunDialogDiscovery(runCtx, co.cfg.DialogDiscoveryInterval) },
		func() { disc.RunActivePoll(runCtx, co.cfg.ActivePollInterval) },
		func() { disc.RunFullCatchup(runCtx, co.cfg.FullCatchupInterval) },
		func() { sender.Run(runCtx, co.cfg.OutboxPollInterval, time.Duration(co.cfg.OutboxLockSeconds)*time.Second) },
		func() {
			if err := healthSrv.Run(); err != nil {
				co.log.LogError(runCtx, err, "health server exited")
			}
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Run(runCtx, func(dialCtx context.Context) error {
			for _, t := range tasks {
				go t()
			}
			if err := disc.RunStartupCatchupOnce(dialCtx); err != nil {
				co.log.LogError(dialCtx, err, "startup catch-up pass failed")
			}
			if err := disc.RunEmptyConversationsOnce(dialCtx); err != nil {
				co.log.LogError(dialCtx, err, "startup empty-conversations pass failed")
			}
			_ = co.lock.UpdateListenerState(dialCtx, model.ListenerRunning)
			<-dialCtx.Done()
			return dialCtx.Err()
		})
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			co.log.LogError(shutdownCtx, err, "health server shutdown failed")
		}
		cancel()
		<-done
		return nil
	case err := <-done:
		return err
	}
}
