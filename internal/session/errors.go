package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session lifecycle. Check with errors.Is.
var (
	ErrDeckNotFound      = errors.New("session: deck not found")
	ErrSessionNotFound   = errors.New("session: session not found")
	ErrFlashcardNotFound = errors.New("session: flashcard not found")
	ErrNoCardsAvailable  = errors.New("session: no cards available for review")
	ErrInvalidStatus     = errors.New("session: invalid session status")
	// ErrReviewConflict is returned when a review repeatedly loses the
	// optimistic write race for its flashcard.
	ErrReviewConflict = errors.New("session: conflicting review in progress")
)

// PersistenceError wraps a store failure, keeping the cause for diagnostics
// without leaking store detail into the public error surface.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
