package lockservice

import (
	"sync"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// ErrorLog is the rolling 20-deep in-memory error list §7 describes; the
// most-recent 10 entries of it get persisted to Listener State via
// Service.RecordErrors.
type ErrorLog struct {
	mu      sync.Mutex
	entries []model.ListenerErrorEntry
}

// NewErrorLog returns an empty log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

// Add appends an error, trimming the log to its most recent 20 entries.
func (l *ErrorLog) Add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.ListenerErrorEntry{At: time.Now().UTC(), Message: err.Error()})
	if len(l.entries) > 20 {
		l.entries = l.entries[len(l.entries)-20:]
	}
}

// Recent10 returns the most recent 10 entries, the slice persisted to
// Listener State.
func (l *ErrorLog) Recent10() []model.ListenerErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) <= 10 {
		out := make([]model.ListenerErrorEntry, len(l.entries))
		copy(out, l.entries)
		return out
	}
	out := make([]model.ListenerErrorEntry, 10)
	copy(out, l.entries[len(l.entries)-10:])
	return out
}
