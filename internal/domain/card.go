package domain

import "time"

// CardContent is a single question-answer-context entry as extracted from a
// source file, before it is attached to a deck.
type CardContent struct {
	Question string
	Answer   string
	Context  string
}

// Deck groups flashcards under a single owner.
type Deck struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Flashcard is a card together with its current scheduling state.
//
// Stability and Difficulty default to 1.0 and 5.0 for cards that have never
// been reviewed. LastReviewedAt is nil until the first review; NextDueAt is
// nil while the card is due immediately. Version increments on every
// scheduling write and backs the optimistic concurrency check.
type Flashcard struct {
	ID          string
	UserID      string
	DeckID      string
	Question    string
	Answer      string
	Context     string
	ContentHash string

	Stability      float64
	Difficulty     float64
	LastReviewedAt *time.Time
	NextDueAt      *time.Time

	Version   int64
	CreatedAt time.Time
}
