package server

import (
	"encoding/json"
	"log"
	"net/http"

	"fleetglass.app/auth"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Identity *auth.Identity `json:"identity"`
	Token    string         `json:"token,omitempty"`
}

// RegisterHandler creates an account with the default role.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.auth.Register(creds.Email, creds.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Identity: id})
}

// LoginHandler signs the user in and sets the session cookie. The
// token also comes back in the body for non-browser clients.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, token, err := s.auth.Login(creds.Email, creds.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	http.SetCookie(w, sessionCookie(r, token, int(auth.DefaultSessionTTL.Seconds())))
	writeJSON(w, http.StatusOK, sessionResponse{Identity: id, Token: token})
}

// LogoutHandler deletes the caller's location records, best effort,
// then clears the session. Idempotent: a call with no session still
// succeeds.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if id := s.identify(r); id != nil {
		if err := s.store.DeleteLocations(id.ID); err != nil {
			// never block sign-out over a failed cleanup
			log.Printf("[server] logout cleanup for %s: %v", id.ID, err)
		}
	}

	http.SetCookie(w, sessionCookie(r, "", -1))
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// MeHandler returns the caller's identity with a freshly resolved role.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	id.Role = s.auth.ResolveRole(id.ID)
	writeJSON(w, http.StatusOK, sessionResponse{Identity: id})
}

// identify is the soft variant of RequireAuth for endpoints that work
// with or without a session.
func (s *Server) identify(r *http.Request) *auth.Identity {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil
	}
	id, err := s.auth.Identify(token)
	if err != nil {
		return nil
	}
	return id
}

func sessionCookie(r *http.Request, token string, maxAge int) *http.Cookie {
	isSecure := r.Header.Get("X-Forwarded-Proto") == "https" || r.TLS != nil
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// writeAuthError carries the failure kind in the body so clients can
// tell apart failures that share a status code, like a weak password
// and a malformed email.
func writeAuthError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case auth.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case auth.KindEmailInUse:
		status = http.StatusConflict
	case auth.KindWeakPassword, auth.KindInvalidEmail:
		status = http.StatusBadRequest
	case auth.KindRateLimited:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
