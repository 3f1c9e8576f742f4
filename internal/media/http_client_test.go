package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"signaling-platform/internal/token"
)

func TestHTTPClient_JoinReturnsHandleOnConnecting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rooms/join" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Token == "" {
			t.Fatalf("expected token in join request")
		}
		_ = json.NewEncoder(w).Encode(joinResponse{SessionID: "sess-1", RoomID: "room-1", State: "connecting"})
	}))
	defer srv.Close()

	c := NewHTTPClient(nil)
	h, err := c.Join(context.Background(), token.Credential{Token: "tok", MediaServerURL: srv.URL}, "video-main")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if h.SessionID != "sess-1" || h.RoomID != "room-1" || h.Target != "video-main" {
		t.Fatalf("unexpected handle: %+v", h)
	}
}

func TestHTTPClient_JoinFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewHTTPClient(nil)
	_, err := c.Join(context.Background(), token.Credential{Token: "tok", MediaServerURL: srv.URL}, "t")
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("expected ErrJoinFailed, got %v", err)
	}
}

func TestHTTPClient_LeaveNilHandleIsNoop(t *testing.T) {
	c := NewHTTPClient(nil)
	if err := c.Leave(context.Background(), nil); err != nil {
		t.Fatalf("leave nil: %v", err)
	}
}
