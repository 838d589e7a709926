package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciaranmul/recollect/internal/domain"
	"github.com/ciaranmul/recollect/internal/srs"
	"github.com/ciaranmul/recollect/internal/storage"
)

type fixture struct {
	db      *storage.DB
	svc     *Service
	deck    *domain.Deck
	nowFunc func() time.Time
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.nowFunc = func() time.Time { return f.now }

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(f.nowFunc)}, opts...)
	f.svc = NewService(db, log, opts...)

	f.deck = &domain.Deck{ID: uuid.NewString(), UserID: "alice", Name: "go", CreatedAt: f.now}
	require.NoError(t, db.InsertDeck(context.Background(), f.deck))
	return f
}

func (f *fixture) addCard(t *testing.T, question string) *domain.Flashcard {
	t.Helper()
	fc := &domain.Flashcard{
		ID:         uuid.NewString(),
		UserID:     "alice",
		DeckID:     f.deck.ID,
		Question:   question,
		Answer:     "answer",
		Stability:  srs.DefaultStability,
		Difficulty: srs.DefaultDifficulty,
		CreatedAt:  f.now,
	}
	require.NoError(t, f.db.InsertFlashcard(context.Background(), fc))
	return fc
}

func TestStartDeckNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), "alice", uuid.NewString())
	assert.ErrorIs(t, err, ErrDeckNotFound)

	// Another user's deck looks absent too.
	_, err = f.svc.Start(context.Background(), "bob", f.deck.ID)
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestStartEmptyDeck(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	assert.ErrorIs(t, err, ErrNoCardsAvailable)
}

func TestStartNothingDue(t *testing.T) {
	f := newFixture(t)
	fc := f.addCard(t, "q1")

	// Push the card's due date into the future via a review.
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitReview(context.Background(), "alice", view.ID, fc.ID, 4)
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), "alice", f.deck.ID)
	assert.ErrorIs(t, err, ErrNoCardsAvailable)
}

func TestStartHonorsSessionLimit(t *testing.T) {
	f := newFixture(t, WithLimit(2))
	f.addCard(t, "q1")
	f.addCard(t, "q2")
	f.addCard(t, "q3")

	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)
	assert.Len(t, view.Cards, 2)
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.NewString()

	_, err := f.svc.Get(ctx, "alice", missing)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.UpdateStatus(ctx, "alice", missing, domain.SessionCompleted)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.SubmitReview(ctx, "alice", missing, uuid.NewString(), 3)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.GetSummary(ctx, "alice", missing)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionOwnership(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), "bob", view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitReviewInvalidRating(t *testing.T) {
	f := newFixture(t)
	fc := f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	for _, rating := range []int{0, 5, -3} {
		_, err = f.svc.SubmitReview(context.Background(), "alice", view.ID, fc.ID, rating)
		assert.ErrorIs(t, err, srs.ErrInvalidRating, "rating %d", rating)
	}

	summary, err := f.svc.GetSummary(context.Background(), "alice", view.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.CardsReviewed)
}

func TestSubmitReviewFlashcardNotFound(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitReview(context.Background(), "alice", view.ID, uuid.NewString(), 3)
	assert.ErrorIs(t, err, ErrFlashcardNotFound)
}

func TestReviewedCardDropsOutOfSession(t *testing.T) {
	f := newFixture(t)
	fc := f.addCard(t, "only card")
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "alice", f.deck.ID)
	require.NoError(t, err)
	require.Len(t, view.Cards, 1)

	_, err = f.svc.SubmitReview(ctx, "alice", view.ID, fc.ID, 3)
	require.NoError(t, err)

	// The roster is recomputed from live card state. The reviewed card's
	// due date moved into the future, so it no longer appears.
	refreshed, err := f.svc.Get(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Empty(t, refreshed.Cards)
	assert.Equal(t, domain.SessionInProgress, refreshed.Status)
}

func TestFullSessionScenario(t *testing.T) {
	f := newFixture(t)
	c1 := f.addCard(t, "q1")
	c2 := f.addCard(t, "q2")
	f.addCard(t, "q3")
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "alice", f.deck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, view.Status)
	require.Len(t, view.Cards, 3)

	// Good on a never-reviewed card: stability 1.0 -> 2.5, difficulty
	// 5.0 -> 4.7, due in ceil(2.5) = 3 days.
	rev, err := f.svc.SubmitReview(ctx, "alice", view.ID, c1.ID, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, rev.Stability, 1e-9)
	assert.InDelta(t, 4.7, rev.Difficulty, 1e-9)
	assert.Equal(t, f.now.Add(3*24*time.Hour), rev.NextDueAt)

	// Again: due tomorrow.
	rev, err = f.svc.SubmitReview(ctx, "alice", view.ID, c2.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(24*time.Hour), rev.NextDueAt)

	summary, err := f.svc.GetSummary(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CardsReviewed)
	assert.Equal(t, map[int]int{1: 1, 2: 0, 3: 1, 4: 0}, summary.Ratings)

	status, err := f.svc.UpdateStatus(ctx, "alice", view.ID, domain.SessionCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, status.Status)
	require.NotNil(t, status.EndedAt)

	// Terminal re-writes are idempotent, not rejected.
	status, err = f.svc.UpdateStatus(ctx, "alice", view.ID, domain.SessionCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, status.Status)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), "alice", view.ID, "paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

// conflictStore makes RecordReview lose the optimistic race a fixed number
// of times before delegating to the real store.
type conflictStore struct {
	Store
	conflicts int
	calls     int
}

func (c *conflictStore) RecordReview(ctx context.Context, ev *domain.ReviewEvent, expectedVersion int64) error {
	c.calls++
	if c.calls <= c.conflicts {
		return storage.ErrVersionConflict
	}
	return c.Store.RecordReview(ctx, ev, expectedVersion)
}

func TestSubmitReviewRetriesOnWriteConflict(t *testing.T) {
	f := newFixture(t)
	fc := f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	cs := &conflictStore{Store: f.db, conflicts: 1}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cs, log, WithClock(f.nowFunc))

	rev, err := svc.SubmitReview(context.Background(), "alice", view.ID, fc.ID, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, rev.ReviewEventID)
	assert.Equal(t, 2, cs.calls)
}

func TestSubmitReviewGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	fc := f.addCard(t, "q1")
	view, err := f.svc.Start(context.Background(), "alice", f.deck.ID)
	require.NoError(t, err)

	cs := &conflictStore{Store: f.db, conflicts: reviewRetries + 1}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cs, log, WithClock(f.nowFunc))

	_, err = svc.SubmitReview(context.Background(), "alice", view.ID, fc.ID, 3)
	assert.ErrorIs(t, err, ErrReviewConflict)
}
