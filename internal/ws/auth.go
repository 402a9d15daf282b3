package ws

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Connection-gating error taxonomy. Operators alert on ErrServerMisconfigured
// separately: it means a broken deployment, not a bad client.
var (
	ErrTokenMissing        = errors.New("authentication token required")
	ErrTokenInvalid        = errors.New("invalid or expired token")
	ErrServerMisconfigured = errors.New("server authentication is not configured")
)

// Identity is what the verified token says about the caller. It is attached
// to the socket at admission and is the only way downstream handlers learn
// who is connected; there is no re-authentication per message.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// claims mirrors the token layout issued by the auth service.
type claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator gates socket admission on a bearer credential, independent of
// the HTTP middleware stack.
type Authenticator struct {
	secret string
}

// NewAuthenticator creates an authenticator. An empty secret is tolerated at
// construction so the server can boot for diagnostics, but every handshake
// will fail with ErrServerMisconfigured.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: secret}
}

// Authenticate extracts and verifies the handshake credential. The raw
// verification failure is logged server-side only; the caller sees one of the
// three sentinel errors.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token := extractToken(r)
	if token == "" {
		return nil, ErrTokenMissing
	}
	if a.secret == "" {
		log.Printf("[WS] rejecting handshake: signing secret not configured")
		return nil, ErrServerMisconfigured
	}

	identity, err := a.verify(token)
	if err != nil {
		log.Printf("[WS] token rejected: %v", err)
		return nil, ErrTokenInvalid
	}
	return identity, nil
}

// extractToken searches the handshake in priority order: Authorization
// bearer header, auth.token field, legacy token query parameter, then the
// auth_token cookie. First match wins.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1]
		}
	}
	if t := r.URL.Query().Get("auth.token"); t != "" {
		return t
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func (a *Authenticator) verify(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.secret), nil
	})
	if err != nil {
		return nil, err
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}
