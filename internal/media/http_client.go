package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"signaling-platform/internal/token"
)

// HTTPClient performs the join handshake against the media server's REST
// surface. The server validates the grant and allocates the transport; this
// client only needs the "connecting" acknowledgement.
type HTTPClient struct {
	http *http.Client
	log  *slog.Logger
}

func NewHTTPClient(log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

type joinRequest struct {
	Token  string `json:"token"`
	Target string `json:"render_target"`
}

type joinResponse struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	State     string `json:"state"`
}

func (c *HTTPClient) Join(ctx context.Context, cred token.Credential, target RenderTarget) (*Handle, error) {
	body, err := json.Marshal(joinRequest{Token: cred.Token, Target: string(target)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.MediaServerURL+"/v1/rooms/join", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: media server returned %d", ErrJoinFailed, resp.StatusCode)
	}

	var out joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}

	c.log.Debug("media join acknowledged", "session_id", out.SessionID, "room_id", out.RoomID, "state", out.State)
	return &Handle{SessionID: out.SessionID, RoomID: out.RoomID, ServerURL: cred.MediaServerURL, Target: target}, nil
}

func (c *HTTPClient) Leave(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	// Leave is best-effort: the server also reaps rooms on grant expiry.
	body, err := json.Marshal(map[string]string{"session_id": h.SessionID, "room_id": h.RoomID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.ServerURL+"/v1/rooms/leave", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
