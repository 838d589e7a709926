// Package session orchestrates the study-session lifecycle: starting a
// session, re-selecting its due cards, recording rated reviews through the
// scheduler, and transitioning session status.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ciaranmul/recollect/internal/domain"
	"github.com/ciaranmul/recollect/internal/srs"
	"github.com/ciaranmul/recollect/internal/storage"
)

// Store is the persistence surface the session service needs.
// *storage.DB implements it.
type Store interface {
	GetDeck(ctx context.Context, userID, deckID string) (*domain.Deck, error)
	ListDeckFlashcards(ctx context.Context, userID, deckID string) ([]domain.Flashcard, error)
	GetFlashcard(ctx context.Context, userID, cardID string) (*domain.Flashcard, error)
	InsertSession(ctx context.Context, s *domain.StudySession) error
	GetSession(ctx context.Context, userID, sessionID string) (*domain.StudySession, error)
	UpdateSessionStatus(ctx context.Context, userID, sessionID string, status domain.SessionStatus, endedAt *time.Time) error
	RecordReview(ctx context.Context, ev *domain.ReviewEvent, expectedVersion int64) error
	ListSessionReviews(ctx context.Context, userID, sessionID string) ([]domain.ReviewEvent, error)
}

// reviewRetries bounds how often a review is recomputed after losing the
// optimistic write race before giving up with ErrReviewConflict.
const reviewRetries = 3

// Service is the session lifecycle manager.
type Service struct {
	store Store
	log   *slog.Logger
	limit int
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLimit overrides the per-session card limit.
func WithLimit(limit int) Option {
	return func(s *Service) { s.limit = limit }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service over the given store.
func NewService(store Store, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log,
		limit: srs.DefaultSessionLimit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CardView is the card shape exposed to session callers. Scheduling state
// stays internal.
type CardView struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// View is the session shape returned by Start and Get.
type View struct {
	ID     string               `json:"id"`
	Status domain.SessionStatus `json:"status"`
	Cards  []CardView           `json:"cards"`
}

// StatusView is returned by UpdateStatus.
type StatusView struct {
	ID      string               `json:"id"`
	Status  domain.SessionStatus `json:"status"`
	EndedAt *time.Time           `json:"endedAt"`
}

// ReviewView is returned by SubmitReview.
type ReviewView struct {
	ReviewEventID  string    `json:"reviewEventId"`
	Stability      float64   `json:"stability"`
	Difficulty     float64   `json:"difficulty"`
	Retrievability float64   `json:"retrievability"`
	NextDueAt      time.Time `json:"nextDueAt"`
}

// Summary is returned by GetSummary. Ratings always carries all four keys.
type Summary struct {
	CardsReviewed int         `json:"cardsReviewed"`
	Ratings       map[int]int `json:"ratings"`
}

// Start verifies deck ownership, selects the due cards, and persists a new
// in-progress session. ErrNoCardsAvailable covers both an empty deck and a
// deck with nothing currently due.
func (s *Service) Start(ctx context.Context, userID, deckID string) (*View, error) {
	deck, err := s.store.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, persistence("deck lookup", err)
	}
	if deck == nil {
		return nil, ErrDeckNotFound
	}

	cards, err := s.selectDeckCards(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}

	sess := &domain.StudySession{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeckID:    deckID,
		Status:    domain.SessionInProgress,
		StartedAt: s.now(),
	}
	if err := s.store.InsertSession(ctx, sess); err != nil {
		return nil, persistence("session insert", err)
	}

	s.log.InfoContext(ctx, "study session started",
		"session_id", sess.ID, "deck_id", deckID, "cards", len(cards))

	return &View{ID: sess.ID, Status: sess.Status, Cards: cards}, nil
}

// Get loads a session and re-selects its deck's due cards from live
// flashcard state. Cards reviewed since Start drop out of the list as their
// due dates move into the future; the roster is recomputed, not persisted.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*View, error) {
	sess, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	cards, err := s.selectDeckCards(ctx, userID, sess.DeckID)
	if err != nil && !errors.Is(err, ErrNoCardsAvailable) {
		return nil, err
	}
	if cards == nil {
		cards = []CardView{}
	}

	return &View{ID: sess.ID, Status: sess.Status, Cards: cards}, nil
}

// UpdateStatus transitions a session. Any transition to a non-in-progress
// status stamps EndedAt. Re-writing a terminal status is allowed and
// idempotent.
func (s *Service) UpdateStatus(ctx context.Context, userID, sessionID string, status domain.SessionStatus) (*StatusView, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if _, err := s.loadSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	var endedAt *time.Time
	if status != domain.SessionInProgress {
		t := s.now()
		endedAt = &t
	}
	if err := s.store.UpdateSessionStatus(ctx, userID, sessionID, status, endedAt); err != nil {
		return nil, persistence("session status update", err)
	}

	return &StatusView{ID: sessionID, Status: status, EndedAt: endedAt}, nil
}

// SubmitReview records a rated review: it schedules the card's next state,
// appends a review event, and overwrites the card's scheduling fields, the
// last two atomically. A lost optimistic write race is retried with freshly
// read card state so duplicate submissions still land consistently.
func (s *Service) SubmitReview(ctx context.Context, userID, sessionID, flashcardID string, rating int) (*ReviewView, error) {
	if _, err := s.loadSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < reviewRetries; attempt++ {
		card, err := s.store.GetFlashcard(ctx, userID, flashcardID)
		if err != nil {
			return nil, persistence("flashcard lookup", err)
		}
		if card == nil {
			return nil, ErrFlashcardNotFound
		}

		now := s.now()
		result, err := srs.Schedule(srs.Rating(rating), srs.State{
			Stability:      &card.Stability,
			Difficulty:     &card.Difficulty,
			LastReviewedAt: card.LastReviewedAt,
		}, now)
		if err != nil {
			return nil, err
		}

		ev := &domain.ReviewEvent{
			ID:             uuid.NewString(),
			UserID:         userID,
			StudySessionID: sessionID,
			FlashcardID:    flashcardID,
			Rating:         rating,
			Stability:      result.Stability,
			Difficulty:     result.Difficulty,
			Retrievability: result.Retrievability,
			NextDueAt:      result.NextDueAt,
			ReviewedAt:     now,
		}

		err = s.store.RecordReview(ctx, ev, card.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			s.log.WarnContext(ctx, "review write conflict, retrying",
				"flashcard_id", flashcardID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, persistence("review record", err)
		}

		return &ReviewView{
			ReviewEventID:  ev.ID,
			Stability:      ev.Stability,
			Difficulty:     ev.Difficulty,
			Retrievability: ev.Retrievability,
			NextDueAt:      ev.NextDueAt,
		}, nil
	}

	return nil, ErrReviewConflict
}

// GetSummary reports how many reviews a session recorded and a histogram
// over ratings 1 through 4; absent ratings report zero.
func (s *Service) GetSummary(ctx context.Context, userID, sessionID string) (*Summary, error) {
	if _, err := s.loadSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	events, err := s.store.ListSessionReviews(ctx, userID, sessionID)
	if err != nil {
		return nil, persistence("review list", err)
	}

	ratings := map[int]int{1: 0, 2: 0, 3: 0, 4: 0}
	for _, ev := range events {
		ratings[ev.Rating]++
	}
	return &Summary{CardsReviewed: len(events), Ratings: ratings}, nil
}

func (s *Service) loadSession(ctx context.Context, userID, sessionID string) (*domain.StudySession, error) {
	sess, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, persistence("session lookup", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// selectDeckCards loads a deck's live cards and runs the selector over them.
func (s *Service) selectDeckCards(ctx context.Context, userID, deckID string) ([]CardView, error) {
	cards, err := s.store.ListDeckFlashcards(ctx, userID, deckID)
	if err != nil {
		return nil, persistence("flashcard list", err)
	}
	if len(cards) == 0 {
		return nil, ErrNoCardsAvailable
	}

	byID := make(map[string]domain.Flashcard, len(cards))
	candidates := make([]srs.Candidate, 0, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
		candidates = append(candidates, srs.Candidate{
			ID:             c.ID,
			NextDueAt:      c.NextDueAt,
			LastReviewedAt: c.LastReviewedAt,
		})
	}

	due := srs.SelectDue(candidates, s.limit, s.now())
	if len(due) == 0 {
		return nil, ErrNoCardsAvailable
	}

	views := make([]CardView, 0, len(due))
	for _, c := range due {
		card := byID[c.ID]
		views = append(views, CardView{ID: card.ID, Question: card.Question, Answer: card.Answer})
	}
	return views, nil
}
