// The agent is a headless board participant: it joins a session over the
// gateway, mirrors the board and logs every applied mutation. It is used
// for smoke-testing deployments and as a wiring reference for front ends.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/deck"
	"github.com/scrivano/boardsync/internal/desk"
	"github.com/scrivano/boardsync/internal/identity"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	gatewayWS := getEnv("GATEWAY_WS_URL", "ws://localhost:8080")
	gatewayHTTP := getEnv("GATEWAY_HTTP_URL", "http://localhost:8080")
	invitationToken := getEnv("INVITATION_TOKEN", "")
	deckFile := getEnv("DECK_FILE", "deck.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := resolveSession(ctx, invitationToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve session")
	}

	pool, err := deck.Load(deckFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", deckFile).Msg("failed to load deck")
	}

	log.Info().
		Str("session_id", session.SessionID).
		Str("participant_id", session.ParticipantID).
		Bool("owner", session.IsOwner).
		Int("deck_size", len(pool)).
		Msg("starting board agent")

	transport := realtime.NewWSTransport(gatewayWS, invitationToken)
	d, err := desk.New(desk.Config{
		SessionID: session.SessionID,
		Self: models.Participant{
			ID:          session.ParticipantID,
			DisplayName: session.DisplayName,
		},
		OwnerID:   session.OwnerID,
		Transport: transport,
		Pool:      pool,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build desk")
	}

	d.OnStatusChange(func(s realtime.Status) {
		log.Info().Str("status", string(s)).Msg("connection status changed")
	})
	d.Store().OnChange(func(m board.Mutation) {
		ev := log.Info().
			Str("kind", string(m.Kind)).
			Bool("remote", m.Origin == board.OriginRemote)
		if m.Token != nil {
			ev = ev.Str("token_id", m.Token.ID)
		}
		if m.RemovedID != "" {
			ev = ev.Str("token_id", m.RemovedID)
		}
		ev.Msg("board mutation")
	})

	if err := d.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to gateway")
	}
	defer d.Disconnect()

	// Late joiners pull the current board over REST; deltas received while
	// the snapshot was in flight re-apply idempotently on top of it.
	if state, err := fetchSessionState(ctx, gatewayHTTP, session.SessionID); err == nil {
		d.LoadInitial(state)
		log.Info().Int("tokens", len(state.Tokens)).Msg("initial board state loaded")
	} else {
		log.Warn().Err(err).Msg("could not load initial board state")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("agent shutting down")
}

// resolveSession exchanges the invitation token when a session service is
// configured, and falls back to plain environment variables for local runs
// against a dev-mode gateway.
func resolveSession(ctx context.Context, invitationToken string) (*identity.Session, error) {
	if serviceURL := os.Getenv("SESSION_SERVICE_URL"); serviceURL != "" {
		return identity.NewHTTPResolver(serviceURL).Resolve(ctx, invitationToken)
	}

	sessionID := getEnv("SESSION_ID", "")
	participantID := getEnv("PARTICIPANT_ID", "")
	if sessionID == "" || participantID == "" {
		return nil, fmt.Errorf("SESSION_ID and PARTICIPANT_ID are required without SESSION_SERVICE_URL")
	}
	isOwner, _ := strconv.ParseBool(getEnv("IS_OWNER", "false"))
	ownerID := getEnv("OWNER_ID", "")
	if isOwner && ownerID == "" {
		ownerID = participantID
	}
	return &identity.Session{
		SessionID:     sessionID,
		ParticipantID: participantID,
		DisplayName:   getEnv("DISPLAY_NAME", participantID),
		IsOwner:       isOwner,
		OwnerID:       ownerID,
	}, nil
}

func fetchSessionState(ctx context.Context, baseURL, sessionID string) (models.BoardState, error) {
	url := fmt.Sprintf("%s/sessions/state?session_id=%s", baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.BoardState{}, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return models.BoardState{}, fmt.Errorf("fetch session state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.BoardState{}, fmt.Errorf("session state returned status %d", resp.StatusCode)
	}

	var state models.BoardState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return models.BoardState{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
