// Package auth manages accounts: registration, sign-in, roles and the
// session tokens that carry them.
package auth

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fleetglass.app/store"
)

const minPasswordLen = 6

// Identity is the authenticated account as seen by the rest of the
// system: no password material.
type Identity struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  store.Role `json:"role"`
}

// Service implements registration and sign-in against the store.
type Service struct {
	users   *store.Store
	tokens  *TokenManager
	limiter *loginLimiter
}

func NewService(users *store.Store, tokens *TokenManager) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		limiter: newLoginLimiter(loginWindow, maxLoginAttempts),
	}
}

// Register creates an account with the default user role.
func (s *Service) Register(email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, errf(KindInvalidEmail, UserMessage(KindInvalidEmail), nil)
	}
	if len(password) < minPasswordLen {
		return nil, errf(KindWeakPassword, UserMessage(KindWeakPassword), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errf(KindUnknown, UserMessage(KindUnknown), err)
	}

	u := &store.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         store.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(u); err != nil {
		if err == store.ErrEmailTaken {
			return nil, errf(KindEmailInUse, UserMessage(KindEmailInUse), err)
		}
		return nil, errf(KindUnknown, UserMessage(KindUnknown), err)
	}

	log.Printf("[auth] registered %s", u.ID)
	return &Identity{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

// Login verifies credentials and returns the identity with its role
// already resolved, plus a signed session token. Callers never observe
// an identity without a settled role.
func (s *Service) Login(email, password string) (*Identity, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !s.limiter.allow(email) {
		return nil, "", errf(KindRateLimited, UserMessage(KindRateLimited), nil)
	}

	u, err := s.users.UserByEmail(email)
	if err != nil {
		if err == store.ErrNotFound {
			// burn a comparison so missing accounts cost the same
			bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvali"), []byte(password))
			return nil, "", errf(KindInvalidCredentials, UserMessage(KindInvalidCredentials), nil)
		}
		return nil, "", errf(KindUnknown, UserMessage(KindUnknown), err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", errf(KindInvalidCredentials, UserMessage(KindInvalidCredentials), nil)
	}

	role, err := s.users.Role(u.ID)
	if err != nil {
		// a failed lookup reads as the default role, never a blocked login
		log.Printf("[auth] role lookup for %s: %v", u.ID, err)
		role = store.RoleUser
	}

	id := &Identity{ID: u.ID, Email: u.Email, Role: role}
	token, err := s.tokens.Issue(id)
	if err != nil {
		return nil, "", errf(KindUnknown, UserMessage(KindUnknown), err)
	}

	s.limiter.reset(email)
	return id, token, nil
}

// Identify resolves a session token back to an identity.
func (s *Service) Identify(token string) (*Identity, error) {
	return s.tokens.Verify(token)
}

// ResolveRole reads the account's current role; absence means user.
func (s *Service) ResolveRole(userID string) store.Role {
	role, err := s.users.Role(userID)
	if err != nil {
		log.Printf("[auth] resolve role %s: %v", userID, err)
		return store.RoleUser
	}
	return role
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.IndexByte(domain, '.') > 0 && !strings.ContainsAny(email, " \t\n")
}
