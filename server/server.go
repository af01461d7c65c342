// Package server exposes the HTTP and websocket surface: account
// endpoints, the location write path, and the role-gated fleet feed.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"fleetglass.app/auth"
	"fleetglass.app/store"
)

// SessionCookie carries the signed session token between requests.
const SessionCookie = "fleetglass_session"

type Server struct {
	store *store.Store
	auth  *auth.Service
}

func New(st *store.Store, a *auth.Service) *Server {
	return &Server{store: st, auth: a}
}

// Router wires every endpoint. The fleet surface sits behind the admin
// gate; the location surface behind plain authentication.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/register", s.RegisterHandler).Methods("POST")
	r.HandleFunc("/api/login", s.LoginHandler).Methods("POST")
	r.HandleFunc("/api/logout", s.LogoutHandler).Methods("POST")

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.RequireAuth)
	authed.HandleFunc("/me", s.MeHandler).Methods("GET")
	authed.HandleFunc("/location", s.UpsertLocationHandler).Methods("PUT")
	authed.HandleFunc("/location", s.GetLocationHandler).Methods("GET")
	authed.HandleFunc("/location", s.DeleteLocationHandler).Methods("DELETE")

	admin := r.PathPrefix("/api/fleet").Subrouter()
	admin.Use(s.RequireAuth, s.RequireAdmin)
	admin.HandleFunc("", s.FleetHandler).Methods("GET")
	admin.HandleFunc("/live", s.FleetLiveHandler).Methods("GET")

	r.HandleFunc("/", s.LiveMapHandler).Methods("GET")
	r.HandleFunc("/admin", s.AdminMapHandler).Methods("GET")

	return r
}

type ctxKey int

const identityKey ctxKey = 0

// IdentityFrom returns the authenticated identity, if any.
func IdentityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// RequireAuth resolves the session from the cookie or a bearer token.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		id, err := s.auth.Identify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// RequireAdmin re-reads the role from the store rather than trusting
// the token alone, so a role change takes effect without waiting for
// the session to expire.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFrom(r.Context())
		if id == nil || s.auth.ResolveRole(id.ID) != store.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
