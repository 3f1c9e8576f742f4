// Package token mints short-lived media credentials. A grant is scoped to
// one (session, room, identity) triple; the media server verifies it and
// admits the holder to exactly that room.
package token

import (
	"context"
	"errors"
	"time"

	"signaling-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeMedia = "media"

var (
	ErrNotAuthenticated = errors.New("token: identity required")
	ErrInvalidGrant     = errors.New("token: invalid grant")
)

// Grant is the claims shape of a media token.
type Grant struct {
	jwt.RegisteredClaims

	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	Identity  string `json:"identity"`
	TokenType string `json:"token_type"`
}

// Credential is what a client needs to join a media room: the signed grant
// plus the address of the media server that will honor it. The engine never
// persists a credential; it is handed straight to the media client.
type Credential struct {
	Token          string `json:"token"`
	MediaServerURL string `json:"media_server_url"`
}

// Issuer is the narrow surface the engine consumes.
type Issuer interface {
	Issue(ctx context.Context, sessionID, roomID, identity string) (Credential, error)
}

type Service struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	serverURL string
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(cfg config.MediaConfig) (*Service, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("MEDIA_SERVER_URL is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		secret:    []byte(cfg.TokenSecret),
		issuer:    cfg.TokenIssuer,
		ttl:       ttl,
		serverURL: cfg.ServerURL,
		clock:     time.Now,
	}, nil
}

// Issue mints a credential for one participant of one session.
func (s *Service) Issue(ctx context.Context, sessionID, roomID, identity string) (Credential, error) {
	_ = ctx

	if identity == "" {
		return Credential{}, ErrNotAuthenticated
	}
	if sessionID == "" || roomID == "" {
		return Credential{}, ErrInvalidGrant
	}

	now := s.clock().UTC()
	claims := Grant{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		RoomID:    roomID,
		Identity:  identity,
		TokenType: tokenTypeMedia,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: signed, MediaServerURL: s.serverURL}, nil
}

// Verify parses and validates a media token. The media server side of the
// handshake uses this; it is also convenient in tests.
func (s *Service) Verify(tokenString string, now time.Time) (Grant, error) {
	var grant Grant

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parser := jwt.NewParser(opts...)
	if _, err := parser.ParseWithClaims(tokenString, &grant, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return Grant{}, err
	}

	if grant.TokenType != tokenTypeMedia {
		return Grant{}, ErrInvalidGrant
	}
	if grant.SessionID == "" || grant.RoomID == "" || grant.Identity == "" {
		return Grant{}, ErrInvalidGrant
	}
	return grant, nil
}

// WithClock replaces the service clock. Test helper.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}
