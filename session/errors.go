package session

import "errors"

// ErrQuotaExceeded is returned when a write would exceed the storage byte
// budget. The write is aborted with no partial state.
var ErrQuotaExceeded = errors.New("session: storage quota exceeded")

// ErrSessionNotFound is returned when a snapshot ID does not resolve.
var ErrSessionNotFound = errors.New("session: session not found")

// ErrInvalidSession is returned when a snapshot fails validation.
var ErrInvalidSession = errors.New("session: invalid session")
