package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ciaranmul/recollect/internal/domain"
)

// InsertDeck stores a new deck.
func (db *DB) InsertDeck(ctx context.Context, deck *domain.Deck) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, deck.ID, deck.UserID, deck.Name, deck.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
	}
	return nil
}

// GetDeck returns the deck owned by userID, or nil if there is none.
func (db *DB) GetDeck(ctx context.Context, userID, deckID string) (*domain.Deck, error) {
	var d domain.Deck
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM decks WHERE id = ? AND user_id = ? AND deleted = 0
	`, deckID, userID)

	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck %s: %w", deckID, err)
	}
	return &d, nil
}

// ListDecks returns all decks owned by userID.
func (db *DB) ListDecks(ctx context.Context, userID string) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM decks WHERE user_id = ? AND deleted = 0 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// DeleteDeck soft-deletes a deck and the flashcards in it. Sessions and
// review events keep their foreign keys; only sources are removed outright.
func (db *DB) DeleteDeck(ctx context.Context, userID, deckID string) error {
	return db.WithTx(ctx, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE flashcards SET deleted = 1 WHERE deck_id = ? AND user_id = ?
		`, deckID, userID); err != nil {
			return fmt.Errorf("failed to soft-delete deck cards: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM sources WHERE deck_id = ? AND user_id = ?
		`, deckID, userID); err != nil {
			return fmt.Errorf("failed to delete deck sources: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE decks SET deleted = 1 WHERE id = ? AND user_id = ?
		`, deckID, userID); err != nil {
			return fmt.Errorf("failed to delete deck %s: %w", deckID, err)
		}
		return nil
	})
}
