// Package media is the boundary to the SFU. The engine only needs to hand a
// credential over and learn whether the client reached "connecting"; media
// negotiation itself belongs to the media server and its SDK.
package media

import (
	"context"
	"errors"

	"signaling-platform/internal/token"
)

var ErrJoinFailed = errors.New("media: join failed")

// RenderTarget identifies where the UI wants remote tracks rendered. It is
// opaque here; the PWA resolves it to a DOM element.
type RenderTarget string

// Handle represents one joined media room.
type Handle struct {
	SessionID string
	RoomID    string
	ServerURL string
	Target    RenderTarget
}

// Client joins and leaves media rooms on behalf of the local user.
//
// Join returns once the underlying client reports "connecting"; full media
// negotiation is the client's own concern and is not awaited here.
type Client interface {
	Join(ctx context.Context, cred token.Credential, target RenderTarget) (*Handle, error)
	Leave(ctx context.Context, h *Handle) error
}
