package coreerrors

import "fmt"

// UpstreamAccessDeniedError covers the family of upstream refusals that are
// not failures for convergence purposes: private channels we can't read,
// admin-only entities, and entities that no longer resolve. The caller
// skips the unit of work and logs; it does not retry or count as an error.
type UpstreamAccessDeniedError struct {
	Reason string // e.g. "private_channel", "admin_required", "entity_not_found"
	ChatID string
}

func (e *UpstreamAccessDeniedError) Error() string {
	return fmt.Sprintf("upstream access denied for chat %s: %s", e.ChatID, e.Reason)
}
