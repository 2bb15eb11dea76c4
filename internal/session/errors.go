package session

import "errors"

var (
	// ErrSessionNotFound means the session id has no record, either
	// because it never existed or because its TTL expired. Callers that
	// can create sessions on demand treat this as a normal outcome.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable wraps I/O failures against the backing store.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrCorruptState means a stored record could not be deserialized
	// or violates the session invariants.
	ErrCorruptState = errors.New("corrupt session state")
)
