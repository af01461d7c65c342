package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fleetglass.app/store"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Claims carried by a session token.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies session tokens with HMAC-SHA256.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager requires a non-trivial secret.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the identity.
func (m *TokenManager) Issue(id *Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses a token and returns the identity it carries.
func (m *TokenManager) Verify(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errf(KindInvalidCredentials, "invalid session", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errf(KindInvalidCredentials, "invalid session", nil)
	}

	role := store.Role(claims.Role)
	if role == "" {
		role = store.RoleUser
	}
	return &Identity{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}
