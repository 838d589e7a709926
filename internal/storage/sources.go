package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Source is a registered origin of card content for a deck: a local
// directory of markdown files or a git URL.
type Source struct {
	ID           int64
	UserID       string
	DeckID       string
	Path         string
	Type         string // "local" or "git"
	LastSyncedAt *time.Time
}

// InsertSource registers a source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, src *Source) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (user_id, deck_id, path, type, last_synced_at)
		VALUES (?, ?, ?, ?, NULL)
	`, src.UserID, src.DeckID, src.Path, src.Type)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", src.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get source id for %s: %w", src.Path, err)
	}
	return id, nil
}

// ListUserSources returns the sources registered by one user.
func (db *DB) ListUserSources(ctx context.Context, userID string) ([]Source, error) {
	return db.querySources(ctx, `
		SELECT id, user_id, deck_id, path, type, last_synced_at
		FROM sources WHERE user_id = ?
	`, userID)
}

func (db *DB) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		var synced sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeckID, &s.Path, &s.Type, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		s.LastSyncedAt = timePtr(synced)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource unregisters a source. Cards already imported stay in the deck.
func (db *DB) DeleteSource(ctx context.Context, userID string, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM sources WHERE id = ? AND user_id = ?
	`, sourceID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	return nil
}

// TouchSource stamps a source's last successful sync time.
func (db *DB) TouchSource(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_synced_at = ? WHERE id = ?
	`, at, sourceID)
	if err != nil {
		return fmt.Errorf("failed to touch source %d: %w", sourceID, err)
	}
	return nil
}

// ListImportedHashes returns the content hashes of all non-deleted imported
// cards in a deck. Cards created by hand have an empty hash and are ignored.
func (db *DB) ListImportedHashes(ctx context.Context, userID, deckID string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, content_hash FROM flashcards
		WHERE deck_id = ? AND user_id = ? AND deleted = 0 AND content_hash != ''
	`, deckID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list imported hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan hash row: %w", err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}
