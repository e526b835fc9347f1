package coreerrors

import "fmt"

// LockContestedError reports that a lock is currently held by another
// process. This is not a failure: acquire() returns (false, nil) for
// contested locks. Ad-hoc jobs that need the LockType/LockKey for logging
// can wrap it with this type instead.
type LockContestedError struct {
	LockType string
	LockKey  string
	Holder   string // "hostname:pid" of the current holder, if known
}

func (e *LockContestedError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("lock %s/%s held by %s", e.LockType, e.LockKey, e.Holder)
	}
	return fmt.Sprintf("lock %s/%s contested", e.LockType, e.LockKey)
}
