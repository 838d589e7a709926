package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ciaranmul/recollect/internal/domain"
)

// InsertSession stores a new study session.
func (db *DB) InsertSession(ctx context.Context, s *domain.StudySession) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO study_sessions (id, user_id, deck_id, status, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.DeckID, string(s.Status), s.StartedAt, nullTime(s.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns the session owned by userID, or nil if there is none.
func (db *DB) GetSession(ctx context.Context, userID, sessionID string) (*domain.StudySession, error) {
	var s domain.StudySession
	var status string
	var endedAt sql.NullTime
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, deck_id, status, started_at, ended_at
		FROM study_sessions WHERE id = ? AND user_id = ?
	`, sessionID, userID)

	err := row.Scan(&s.ID, &s.UserID, &s.DeckID, &status, &s.StartedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session %s: %w", sessionID, err)
	}
	s.Status = domain.SessionStatus(status)
	s.EndedAt = timePtr(endedAt)
	return &s, nil
}

// UpdateSessionStatus writes a session's status and end time.
func (db *DB) UpdateSessionStatus(ctx context.Context, userID, sessionID string, status domain.SessionStatus, endedAt *time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE study_sessions SET status = ?, ended_at = ?
		WHERE id = ? AND user_id = ?
	`, string(status), nullTime(endedAt), sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to update session %s status: %w", sessionID, err)
	}
	return nil
}

// RecordReview appends a review event and overwrites the reviewed card's
// scheduling state as one transaction, so the card row always mirrors its
// latest event. expectedVersion is the flashcard version read before
// scheduling; ErrVersionConflict means a concurrent review won the row and
// the caller should re-read and retry.
func (db *DB) RecordReview(ctx context.Context, ev *domain.ReviewEvent, expectedVersion int64) error {
	return db.WithTx(ctx, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_events (id, user_id, study_session_id, flashcard_id,
				rating, stability, difficulty, retrievability, next_due_at, reviewed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ev.ID, ev.UserID, ev.StudySessionID, ev.FlashcardID,
			ev.Rating, ev.Stability, ev.Difficulty, ev.Retrievability,
			ev.NextDueAt, ev.ReviewedAt,
		); err != nil {
			return fmt.Errorf("failed to insert review event %s: %w", ev.ID, err)
		}
		return updateFlashcardSchedule(ctx, tx, ev, expectedVersion, ev.ReviewedAt)
	})
}

// ListSessionReviews returns all review events of a session, oldest first.
func (db *DB) ListSessionReviews(ctx context.Context, userID, sessionID string) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, study_session_id, flashcard_id,
			rating, stability, difficulty, retrievability, next_due_at, reviewed_at
		FROM review_events WHERE study_session_id = ? AND user_id = ?
		ORDER BY reviewed_at, id
	`, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var ev domain.ReviewEvent
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.StudySessionID, &ev.FlashcardID,
			&ev.Rating, &ev.Stability, &ev.Difficulty, &ev.Retrievability,
			&ev.NextDueAt, &ev.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
