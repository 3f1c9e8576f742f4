package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Identity invariant: UserID must be present on every token; the signaling
// engine refuses to operate without an authenticated identity.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	TokenType   TokenType `json:"token_type"`
}
