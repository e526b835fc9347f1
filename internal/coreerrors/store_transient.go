package coreerrors

// StoreTransientError wraps a store-layer failure that should cause the
// in-flight transaction to roll back without marking the dedup key
// consumed, so the message is retried on the next producer hit.
type StoreTransientError struct {
	Op  string
	Err error
}

func (e *StoreTransientError) Error() string {
	return "store transient error during " + e.Op + ": " + e.Err.Error()
}

func (e *StoreTransientError) Unwrap() error {
	return e.Err
}
