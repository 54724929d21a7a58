package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPResolverResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/resolve" {
			t.Errorf("path %s, want /sessions/resolve", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization %q", got)
		}
		json.NewEncoder(w).Encode(Session{
			SessionID:     "s1",
			ParticipantID: "alice",
			DisplayName:   "Alice",
			IsOwner:       true,
			OwnerID:       "alice",
		})
	}))
	defer server.Close()

	session, err := NewHTTPResolver(server.URL).Resolve(context.Background(), "tok-123")
	if err != nil {
		t.Fatal(err)
	}
	if session.SessionID != "s1" || session.ParticipantID != "alice" || !session.IsOwner {
		t.Errorf("resolved session %+v", session)
	}
}

func TestHTTPResolverRejectedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invitation expired", http.StatusForbidden)
	}))
	defer server.Close()

	if _, err := NewHTTPResolver(server.URL).Resolve(context.Background(), "stale"); err == nil {
		t.Fatal("expected error for rejected token")
	}
}
