// Package session implements the Session Manager (spec.md §4.A): making
// an authenticated upstream session file available on local storage
// before the MTProto client opens, resolving it from local disk, the
// store, or an environment fallback, in that order.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/coreerrors"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

// maxBackups is the rolling local backup count §4.A specifies ("retain
// most recent 5").
const maxBackups = 5

// Manager resolves and maintains the local session file at Path.
type Manager struct {
	db         *pg.Database
	log        *logger.Logger
	path       string
	sessionB64 string
	backupDir  string
}

// New constructs a Manager for the given SESSION_PATH and
// TELEGRAM_SESSION_BASE64 fallback.
func New(db *pg.Database, log *logger.Logger, sessionPath, sessionB64 string) *Manager {
	return &Manager{
		db:         db,
		log:        log.WithComponent("session_manager"),
		path:       sessionPath,
		sessionB64: sessionB64,
		backupDir:  filepath.Join(filepath.Dir(sessionPath), "backups"),
	}
}

// Path returns the local filesystem path the MTProto client should open.
func (m *Manager) Path() string {
	return m.path
}

// Ensure implements §4.A's resolution order, first success wins:
// (1) local file present and non-empty, (2) store blob, (3) env base64.
// On (2) or (3) the bytes are written atomically (temp file + rename).
// Returns coreerrors.ErrSessionUnavailable when all three are empty.
func (m *Manager) Ensure(ctx context.Context) error {
	if info, err := os.Stat(m.path); err == nil && info.Size() > 0 {
		m.log.Info("using existing local session file", "path", m.path)
		return nil
	}

	if data, err := m.db.GetSessionBlob(ctx); err == nil && len(data) > 0 {
		m.log.Info("restoring session from store blob")
		return m.writeAtomic(data)
	}

	if m.sessionB64 != "" {
		data, err := base64.StdEncoding.DecodeString(m.sessionB64)
		if err != nil {
			return fmt.Errorf("decode TELEGRAM_SESSION_BASE64: %w", err)
		}
		if len(data) > 0 {
			m.log.Info("restoring session from TELEGRAM_SESSION_BASE64")
			return m.writeAtomic(data)
		}
	}

	return coreerrors.ErrSessionUnavailable
}

// writeAtomic writes data to a temp file alongside m.path and renames it
// into place, so a crash mid-write never leaves a truncated session file.
func (m *Manager) writeAtomic(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename session file into place: %w", err)
	}
	return nil
}

// SyncToStore copies the live session bytes back to the store, the
// hourly loop §4.A describes. It also rotates a local backup and prunes
// to the most recent 5.
func (m *Manager) SyncToStore(ctx context.Context) error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read local session for sync: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := m.db.UpsertSessionBlob(ctx, data); err != nil {
		return fmt.Errorf("sync session to store: %w", err)
	}
	if err := m.rotateBackup(data); err != nil {
		m.log.LogError(ctx, err, "session backup rotation failed")
	}
	return nil
}

func (m *Manager) rotateBackup(data []byte) error {
	if err := os.MkdirAll(m.backupDir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(m.path), time.Now().UTC().Format("20060102T150405Z"))
	if err := os.WriteFile(filepath.Join(m.backupDir, name), data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return m.pruneBackups()
}

// pruneBackups keeps only the maxBackups most recent rolling backups,
// matching §4.A "keep a rolling local backup (retain most recent 5)".
func (m *Manager) pruneBackups() error {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	var names []string
	prefix := filepath.Base(m.path) + "."
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // timestamp suffix sorts lexically = chronologically
	for len(names) > maxBackups {
		if err := os.Remove(filepath.Join(m.backupDir, names[0])); err != nil {
			return fmt.Errorf("remove stale backup %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}

// Info is the session snapshot spec.md §6 requires on /status: "session
// info (size, mtime, backup count)".
type Info struct {
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	BackupCount int       `json:"backup_count"`
	Present     bool      `json:"present"`
}

// Info reports the local session file's current size/mtime and how many
// rolling backups exist, for the /status endpoint.
func (m *Manager) Info() Info {
	info := Info{Path: m.path}
	if fi, err := os.Stat(m.path); err == nil {
		info.Present = true
		info.SizeBytes = fi.Size()
		info.ModTime = fi.ModTime()
	}
	if entries, err := os.ReadDir(m.backupDir); err == nil {
		prefix := filepath.Base(m.path) + "."
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
				info.BackupCount++
			}
		}
	}
	return info
}

// RunSyncLoop runs SyncToStore on the given period until ctx is
// cancelled. The coordinator starts this as one cooperative task (§4.A
// "Periodically (hourly)").
func (m *Manager) RunSyncLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SyncToStore(ctx); err != nil {
				m.log.LogError(ctx, err, "session sync loop iteration failed")
			}
		}
	}
}
