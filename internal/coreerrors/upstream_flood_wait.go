package coreerrors

import (
	"errors"
	"fmt"
	"time"
)

// UpstreamFloodWaitError carries the exact duration Telegram asked the
// caller to wait before retrying the same unit of work. The caller sleeps
// for Wait, then retries without advancing any checkpoint.
type UpstreamFloodWaitError struct {
	Wait time.Duration
}

func (e *UpstreamFloodWaitError) Error() string {
	return fmt.Sprintf("upstream flood wait: retry after %s", e.Wait)
}

// AsFloodWait reports whether err is (or wraps) an UpstreamFloodWaitError
// and returns its wait duration.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *UpstreamFloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
