package coreerrors

import "errors"

// ErrSessionUnavailable is returned by the Session Manager when none of the
// three resolution sources (local file, store blob, env fallback) yield a
// usable session. The caller's contract is to exit the process with code 1.
var ErrSessionUnavailable = errors.New("no upstream session available from any source")
