package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ciaranmul/recollect/internal/domain"
)

const flashcardColumns = `id, user_id, deck_id, question, answer, context, content_hash,
	stability, difficulty, last_reviewed_at, next_due_at, version, created_at`

func scanFlashcard(row interface{ Scan(...any) error }) (*domain.Flashcard, error) {
	var fc domain.Flashcard
	var lastReviewed, nextDue sql.NullTime
	err := row.Scan(
		&fc.ID, &fc.UserID, &fc.DeckID, &fc.Question, &fc.Answer, &fc.Context,
		&fc.ContentHash, &fc.Stability, &fc.Difficulty,
		&lastReviewed, &nextDue, &fc.Version, &fc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	fc.LastReviewedAt = timePtr(lastReviewed)
	fc.NextDueAt = timePtr(nextDue)
	return &fc, nil
}

// InsertFlashcard stores a new flashcard with its initial scheduling state.
func (db *DB) InsertFlashcard(ctx context.Context, fc *domain.Flashcard) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO flashcards (id, user_id, deck_id, question, answer, context, content_hash,
			stability, difficulty, last_reviewed_at, next_due_at, version, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		fc.ID, fc.UserID, fc.DeckID, fc.Question, fc.Answer, fc.Context, fc.ContentHash,
		fc.Stability, fc.Difficulty, nullTime(fc.LastReviewedAt), nullTime(fc.NextDueAt),
		fc.Version, fc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flashcard %s: %w", fc.ID, err)
	}
	return nil
}

// GetFlashcard returns the card owned by userID, or nil if it is absent or
// soft-deleted.
func (db *DB) GetFlashcard(ctx context.Context, userID, cardID string) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards WHERE id = ? AND user_id = ? AND deleted = 0
	`, cardID, userID)

	fc, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find flashcard %s: %w", cardID, err)
	}
	return fc, nil
}

// ListDeckFlashcards returns all non-deleted cards of a deck owned by userID.
func (db *DB) ListDeckFlashcards(ctx context.Context, userID, deckID string) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards WHERE deck_id = ? AND user_id = ? AND deleted = 0
		ORDER BY created_at, id
	`, deckID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		fc, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row: %w", err)
		}
		cards = append(cards, *fc)
	}
	return cards, rows.Err()
}

// FindFlashcardByHash returns the non-deleted card in a deck with the given
// content hash, or nil. Used by source sync to dedupe imports.
func (db *DB) FindFlashcardByHash(ctx context.Context, userID, deckID, hash string) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards
		WHERE deck_id = ? AND user_id = ? AND content_hash = ? AND deleted = 0
	`, deckID, userID, hash)

	fc, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find flashcard by hash: %w", err)
	}
	return fc, nil
}

// SoftDeleteFlashcard marks a card deleted without removing its review history.
func (db *DB) SoftDeleteFlashcard(ctx context.Context, userID, cardID string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE flashcards SET deleted = 1 WHERE id = ? AND user_id = ?
	`, cardID, userID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete flashcard %s: %w", cardID, err)
	}
	return nil
}

// updateFlashcardSchedule overwrites a card's scheduling state from a review
// event, guarded by the version read before scheduling. Zero rows affected
// means the row moved underneath us (or vanished) and the write must retry.
func updateFlashcardSchedule(ctx context.Context, tx DBTX, ev *domain.ReviewEvent, expectedVersion int64, reviewedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE flashcards
		SET stability = ?, difficulty = ?, last_reviewed_at = ?, next_due_at = ?,
			version = version + 1
		WHERE id = ? AND user_id = ? AND deleted = 0 AND version = ?
	`,
		ev.Stability, ev.Difficulty, reviewedAt, ev.NextDueAt,
		ev.FlashcardID, ev.UserID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update flashcard schedule for %s: %w", ev.FlashcardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
