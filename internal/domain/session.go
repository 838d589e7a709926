package domain

import "time"

// SessionStatus is the lifecycle state of a study session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// Valid reports whether s is one of the known session statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInProgress, SessionCompleted, SessionAbandoned:
		return true
	}
	return false
}

// Terminal reports whether s is an end state of the session lifecycle.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// StudySession is a bounded run of card reviews against one deck.
// EndedAt is nil while the session is in progress.
type StudySession struct {
	ID        string
	UserID    string
	DeckID    string
	Status    SessionStatus
	StartedAt time.Time
	EndedAt   *time.Time
}

// ReviewEvent records a single rated review of a flashcard inside a session,
// together with a snapshot of the scheduling output at that moment. Events
// are append-only; they are never updated or deleted.
type ReviewEvent struct {
	ID             string
	UserID         string
	StudySessionID string
	FlashcardID    string
	Rating         int

	Stability      float64
	Difficulty     float64
	Retrievability float64
	NextDueAt      time.Time

	ReviewedAt time.Time
}
