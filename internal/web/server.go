// Package web exposes the review service as an authenticated JSON HTTP API.
// The caller principal comes from the X-User-ID header, placed there by the
// authenticating proxy in front of this service.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ciaranmul/recollect/internal/domain"
	"github.com/ciaranmul/recollect/internal/session"
	"github.com/ciaranmul/recollect/internal/srs"
	"github.com/ciaranmul/recollect/internal/storage"
	synccards "github.com/ciaranmul/recollect/internal/sync"
)

// userHeader carries the authenticated principal.
const userHeader = "X-User-ID"

// Server holds the dependencies for the HTTP API.
type Server struct {
	store    *storage.DB
	sessions *session.Service
	reposDir string
	log      *slog.Logger
	validate *validator.Validate
	mux      *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(store *storage.DB, sessions *session.Service, reposDir string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: sessions,
		reposDir: reposDir,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler with request logging around the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.log.InfoContext(r.Context(), "request",
		"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Review-session surface.
	s.mux.Handle("POST /api/decks/{deckID}/sessions", s.withUser(s.handleStartSession))
	s.mux.Handle("GET /api/sessions/{sessionID}", s.withUser(s.handleGetSession))
	s.mux.Handle("PATCH /api/sessions/{sessionID}", s.withUser(s.handleUpdateSessionStatus))
	s.mux.Handle("POST /api/sessions/{sessionID}/reviews", s.withUser(s.handleSubmitReview))
	s.mux.Handle("GET /api/sessions/{sessionID}/summary", s.withUser(s.handleGetSummary))

	// Deck and card management.
	s.mux.Handle("POST /api/decks", s.withUser(s.handleCreateDeck))
	s.mux.Handle("GET /api/decks", s.withUser(s.handleListDecks))
	s.mux.Handle("DELETE /api/decks/{deckID}", s.withUser(s.handleDeleteDeck))
	s.mux.Handle("POST /api/decks/{deckID}/cards", s.withUser(s.handleCreateCard))
	s.mux.Handle("GET /api/decks/{deckID}/cards", s.withUser(s.handleListCards))
	s.mux.Handle("DELETE /api/cards/{cardID}", s.withUser(s.handleDeleteCard))

	// Source management and sync.
	s.mux.Handle("POST /api/sources", s.withUser(s.handleCreateSource))
	s.mux.Handle("GET /api/sources", s.withUser(s.handleListSources))
	s.mux.Handle("DELETE /api/sources/{sourceID}", s.withUser(s.handleDeleteSource))
	s.mux.Handle("POST /api/sync", s.withUser(s.handleSync))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser rejects requests without an authenticated principal.
func (s *Server) withUser(h userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthenticated", "missing "+userHeader+" header")
			return
		}
		h(w, r, userID)
	})
}

// --- session handlers ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := s.sessions.Start(r.Context(), userID, r.PathValue("deckID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := s.sessions.Get(r.Context(), userID, r.PathValue("sessionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

type updateSessionRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) handleUpdateSessionStatus(w http.ResponseWriter, r *http.Request, userID string) {
	var req updateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.sessions.UpdateStatus(r.Context(), userID, r.PathValue("sessionID"), domain.SessionStatus(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

type submitReviewRequest struct {
	FlashcardID string `json:"flashcardId" validate:"required"`
	Rating      int    `json:"rating"`
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request, userID string) {
	var req submitReviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.sessions.SubmitReview(r.Context(), userID, r.PathValue("sessionID"), req.FlashcardID, req.Rating)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request, userID string) {
	summary, err := s.sessions.GetSummary(r.Context(), userID, r.PathValue("sessionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// --- deck and card handlers ---

type deckView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type createDeckRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request, userID string) {
	var req createDeckRequest
	if !s.decode(w, r, &req) {
		return
	}
	deck := &domain.Deck{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertDeck(r.Context(), deck); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, deckView{ID: deck.ID, Name: deck.Name, CreatedAt: deck.CreatedAt})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request, userID string) {
	decks, err := s.store.ListDecks(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views := make([]deckView, 0, len(decks))
	for _, d := range decks {
		views = append(views, deckView{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request, userID string) {
	deckID := r.PathValue("deckID")
	deck, err := s.store.GetDeck(r.Context(), userID, deckID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if deck == nil {
		s.writeError(w, http.StatusNotFound, "deck_not_found", "deck not found")
		return
	}
	if err := s.store.DeleteDeck(r.Context(), userID, deckID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cardView struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Context   string     `json:"context,omitempty"`
	NextDueAt *time.Time `json:"nextDueAt"`
}

type createCardRequest struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
	Context  string `json:"context"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request, userID string) {
	var req createCardRequest
	if !s.decode(w, r, &req) {
		return
	}
	deckID := r.PathValue("deckID")
	deck, err := s.store.GetDeck(r.Context(), userID, deckID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if deck == nil {
		s.writeError(w, http.StatusNotFound, "deck_not_found", "deck not found")
		return
	}

	fc := &domain.Flashcard{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeckID:     deckID,
		Question:   req.Question,
		Answer:     req.Answer,
		Context:    req.Context,
		Stability:  srs.DefaultStability,
		Difficulty: srs.DefaultDifficulty,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertFlashcard(r.Context(), fc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cardView{
		ID: fc.ID, Question: fc.Question, Answer: fc.Answer, Context: fc.Context,
	})
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request, userID string) {
	cards, err := s.store.ListDeckFlashcards(r.Context(), userID, r.PathValue("deckID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views := make([]cardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, cardView{
			ID: c.ID, Question: c.Question, Answer: c.Answer, Context: c.Context,
			NextDueAt: c.NextDueAt,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request, userID string) {
	cardID := r.PathValue("cardID")
	card, err := s.store.GetFlashcard(r.Context(), userID, cardID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if card == nil {
		s.writeError(w, http.StatusNotFound, "flashcard_not_found", "flashcard not found")
		return
	}
	if err := s.store.SoftDeleteFlashcard(r.Context(), userID, cardID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- source handlers ---

type sourceView struct {
	ID           int64      `json:"id"`
	DeckID       string     `json:"deckId"`
	Path         string     `json:"path"`
	Type         string     `json:"type"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}

type createSourceRequest struct {
	DeckID string `json:"deckId" validate:"required"`
	Path   string `json:"path" validate:"required"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request, userID string) {
	var req createSourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	deck, err := s.store.GetDeck(r.Context(), userID, req.DeckID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if deck == nil {
		s.writeError(w, http.StatusNotFound, "deck_not_found", "deck not found")
		return
	}

	src := &storage.Source{
		UserID: userID,
		DeckID: req.DeckID,
		Path:   req.Path,
		Type:   synccards.TypeForPath(req.Path),
	}
	id, err := s.store.InsertSource(r.Context(), src)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sourceView{
		ID: id, DeckID: src.DeckID, Path: src.Path, Type: src.Type,
	})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request, userID string) {
	sources, err := s.store.ListUserSources(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, sourceView{
			ID: src.ID, DeckID: src.DeckID, Path: src.Path, Type: src.Type,
			LastSyncedAt: src.LastSyncedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request, userID string) {
	sourceID, err := strconv.ParseInt(r.PathValue("sourceID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid source id")
		return
	}
	if err := s.store.DeleteSource(r.Context(), userID, sourceID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs a foreground reconcile of the caller's card sources.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := synccards.Run(r.Context(), s.store, userID, s.reposDir, s.log)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- plumbing ---

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = message
	s.writeJSON(w, status, body)
}

// decode unmarshals and validates a JSON request body, answering 400 itself
// when the payload is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// writeServiceError maps the core error taxonomy onto HTTP statuses with
// stable kind tags.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrDeckNotFound):
		s.writeError(w, http.StatusNotFound, "deck_not_found", "deck not found")
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, session.ErrFlashcardNotFound):
		s.writeError(w, http.StatusNotFound, "flashcard_not_found", "flashcard not found")
	case errors.Is(err, session.ErrNoCardsAvailable):
		s.writeError(w, http.StatusUnprocessableEntity, "no_cards_available", "no cards available for review")
	case errors.Is(err, srs.ErrInvalidRating):
		s.writeError(w, http.StatusBadRequest, "invalid_rating", "rating must be between 1 and 4")
	case errors.Is(err, session.ErrInvalidStatus):
		s.writeError(w, http.StatusBadRequest, "invalid_status", "status must be in_progress, completed, or abandoned")
	case errors.Is(err, session.ErrReviewConflict):
		s.writeError(w, http.StatusConflict, "review_conflict", "conflicting review in progress, retry")
	default:
		s.log.ErrorContext(r.Context(), "internal error", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "persistence", "internal error")
	}
}
