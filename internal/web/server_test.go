package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciaranmul/recollect/internal/session"
	"github.com/ciaranmul/recollect/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := session.NewService(db, log)
	srv := httptest.NewServer(NewServer(db, svc, t.TempDir(), log))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, userID string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return resp, nil
	}
	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	// List endpoints return arrays; callers asserting on fields only use
	// object responses.
	obj, _ := decoded.(map[string]any)
	return resp, obj
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

func TestMissingUserHeader(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/decks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorKind(body))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestStartSessionUnknownDeck(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/decks/nope/sessions", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "deck_not_found", errorKind(body))
}

func TestReviewFlow(t *testing.T) {
	srv := newTestServer(t)

	// Create a deck with one card.
	resp, deck := doJSON(t, http.MethodPost, srv.URL+"/api/decks", "alice",
		map[string]string{"name": "go basics"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	deckID := deck["id"].(string)

	resp, card := doJSON(t, http.MethodPost, srv.URL+"/api/decks/"+deckID+"/cards", "alice",
		map[string]string{"question": "What does iota do?", "answer": "Numbers constants."})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cardID := card["id"].(string)

	// Start a session; the card is due immediately.
	resp, sess := doJSON(t, http.MethodPost, srv.URL+"/api/decks/"+deckID+"/sessions", "alice", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "in_progress", sess["status"])
	sessionID := sess["id"].(string)
	require.Len(t, sess["cards"], 1)

	// An out-of-range rating is rejected with the stable kind tag.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+sessionID+"/reviews", "alice",
		map[string]any{"flashcardId": cardID, "rating": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_rating", errorKind(body))

	// A Good review succeeds and reports the scheduling snapshot.
	resp, review := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+sessionID+"/reviews", "alice",
		map[string]any{"flashcardId": cardID, "rating": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, review["reviewEventId"])
	assert.InDelta(t, 2.5, review["stability"].(float64), 1e-9)
	assert.InDelta(t, 4.7, review["difficulty"].(float64), 1e-9)

	// The refreshed session no longer lists the reviewed card.
	resp, sess = doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+sessionID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, sess["cards"])

	// Summary counts the single review.
	resp, summary := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+sessionID+"/summary", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, summary["cardsReviewed"])
	ratings := summary["ratings"].(map[string]any)
	assert.EqualValues(t, 1, ratings["3"])
	assert.EqualValues(t, 0, ratings["4"])

	// Complete the session.
	resp, status := doJSON(t, http.MethodPatch, srv.URL+"/api/sessions/"+sessionID, "alice",
		map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", status["status"])
	assert.NotNil(t, status["endedAt"])

	// Starting again finds nothing due.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/decks/"+deckID+"/sessions", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no_cards_available", errorKind(body))
}

func TestSessionOwnershipIsEnforced(t *testing.T) {
	srv := newTestServer(t)

	resp, deck := doJSON(t, http.MethodPost, srv.URL+"/api/decks", "alice",
		map[string]string{"name": "private"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	deckID := deck["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/decks/"+deckID+"/cards", "alice",
		map[string]string{"question": "q", "answer": "a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, sess := doJSON(t, http.MethodPost, srv.URL+"/api/decks/"+deckID+"/sessions", "alice", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := sess["id"].(string)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+sessionID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "session_not_found", errorKind(body))
}

func TestValidationRejectsEmptyDeckName(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/decks", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", errorKind(body))
}

func TestSourceLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, deck := doJSON(t, http.MethodPost, srv.URL+"/api/decks", "alice",
		map[string]string{"name": "imported"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	deckID := deck["id"].(string)

	resp, src := doJSON(t, http.MethodPost, srv.URL+"/api/sources", "alice",
		map[string]string{"deckId": deckID, "path": "https://example.com/cards.git"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "git", src["type"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/sources", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sources/1", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "alice")
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}
