package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
)

// Authorizer validates a join attempt's invitation token. Implementations
// live behind the identity resolver; a nil Authorizer admits anyone, which
// is only acceptable in development.
type Authorizer interface {
	Authorize(ctx context.Context, token, sessionID, participantID string) (models.Participant, error)
}

// SnapshotLoader fetches a session's last persisted board state. A miss is
// reported as an error and treated as an empty board.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, sessionID string) (models.BoardState, error)
}

// Handler exposes the hub over HTTP: the websocket join endpoint, the
// session snapshot used for initial-state load, and connection stats.
type Handler struct {
	hub        *Hub
	authorizer Authorizer
	loader     SnapshotLoader
}

// NewHandler creates the hub's HTTP surface. loader may be nil when
// running without persistence.
func NewHandler(hub *Hub, authorizer Authorizer, loader SnapshotLoader) *Handler {
	return &Handler{hub: hub, authorizer: authorizer, loader: loader}
}

// RegisterRoutes attaches the gateway endpoints to a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/board", h.handleJoin)
	mux.HandleFunc("/sessions/state", h.handleSessionState)
	mux.HandleFunc("/ws/stats", h.handleStats)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	participant := models.Participant{
		ID:          participantID,
		DisplayName: r.URL.Query().Get("display_name"),
	}

	if h.authorizer != nil {
		token := bearerToken(r)
		authorized, err := h.authorizer.Authorize(r.Context(), token, sessionID, participantID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("participant_id", participantID).
				Msg("join rejected")
			http.Error(w, "not authorized for this session", http.StatusForbidden)
			return
		}
		participant = authorized
	}

	// First join of a session on this instance pulls the persisted
	// snapshot back in, so a restart does not lose the board.
	if h.loader != nil && !h.hub.HasReplica(sessionID) {
		state, err := h.loader.LoadSnapshot(r.Context(), sessionID)
		if err == nil {
			h.hub.SeedSession(state)
		} else {
			log.Debug().Err(err).Str("session_id", sessionID).Msg("no persisted snapshot to seed")
		}
	}

	if err := h.hub.Upgrade(w, r, sessionID, participant); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
	}
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	state := h.hub.SessionState(sessionID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("encode session state failed")
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("encode stats failed")
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Browser websocket clients cannot set headers; allow the token in
	// the query as a fallback.
	return r.URL.Query().Get("token")
}
