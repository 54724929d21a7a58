package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPResolver resolves invitation tokens against the session service's
// REST endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for the given base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Resolve calls GET /sessions/resolve with the invitation token.
func (r *HTTPResolver) Resolve(ctx context.Context, invitationToken string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/sessions/resolve", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+invitationToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session resolver returned status %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}
