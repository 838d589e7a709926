package storage

const schema = `
-- Decks are soft-deleted like flashcards: review history and sessions keep
-- referencing the row, so it is never physically removed.
CREATE TABLE IF NOT EXISTS decks (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    deleted    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

-- Scheduling state lives denormalized on the flashcard row; it always
-- mirrors the latest review event for the card. 'version' backs the
-- optimistic concurrency check on scheduling writes.
CREATE TABLE IF NOT EXISTS flashcards (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    deck_id          TEXT NOT NULL,
    question         TEXT NOT NULL,
    answer           TEXT NOT NULL,
    context          TEXT NOT NULL DEFAULT '',
    content_hash     TEXT NOT NULL DEFAULT '',
    stability        REAL NOT NULL DEFAULT 1.0,
    difficulty       REAL NOT NULL DEFAULT 5.0,
    last_reviewed_at DATETIME,
    next_due_at      DATETIME,
    version          INTEGER NOT NULL DEFAULT 0,
    deleted          INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL,

    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

CREATE INDEX IF NOT EXISTS idx_flashcards_deck ON flashcards(user_id, deck_id, deleted);

CREATE TABLE IF NOT EXISTS study_sessions (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    deck_id    TEXT NOT NULL,
    status     TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    ended_at   DATETIME,

    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

-- Append-only log; rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS review_events (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    study_session_id TEXT NOT NULL,
    flashcard_id     TEXT NOT NULL,
    rating           INTEGER NOT NULL,
    stability        REAL NOT NULL,
    difficulty       REAL NOT NULL,
    retrievability   REAL NOT NULL,
    next_due_at      DATETIME NOT NULL,
    reviewed_at      DATETIME NOT NULL,

    FOREIGN KEY(study_session_id) REFERENCES study_sessions(id),
    FOREIGN KEY(flashcard_id) REFERENCES flashcards(id)
);

CREATE INDEX IF NOT EXISTS idx_review_events_session ON review_events(user_id, study_session_id);

-- Card content sources feeding a deck: a local directory or a git URL.
CREATE TABLE IF NOT EXISTS sources (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id        TEXT NOT NULL,
    deck_id        TEXT NOT NULL,
    path           TEXT NOT NULL,
    type           TEXT NOT NULL,
    last_synced_at DATETIME,

    FOREIGN KEY(deck_id) REFERENCES decks(id),
    UNIQUE(user_id, path)
);
`
