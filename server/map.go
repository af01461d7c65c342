package server

import (
	_ "embed"
	"net/http"
)

//go:embed live.html
var liveHTML []byte

//go:embed admin.html
var adminHTML []byte

func serveHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(page)
}

// LiveMapHandler serves the self view: the user's own position on a
// map, updated as it is captured.
func (s *Server) LiveMapHandler(w http.ResponseWriter, r *http.Request) {
	serveHTML(w, liveHTML)
}

// AdminMapHandler serves the fleet view: every user's latest position
// plus the drivers table. The page's API calls are what the admin
// gate protects; the page itself is static.
func (s *Server) AdminMapHandler(w http.ResponseWriter, r *http.Request) {
	serveHTML(w, adminHTML)
}
