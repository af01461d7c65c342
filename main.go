package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"fleetglass.app/auth"
	"fleetglass.app/server"
	"fleetglass.app/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[main] no .env file: %v", err)
	}

	dbPath := getenv("FLEETGLASS_DB", "fleetglass.db")
	addr := getenv("FLEETGLASS_ADDR", ":8080")
	secret := os.Getenv("FLEETGLASS_SECRET")

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	tokens, err := auth.NewTokenManager(secret, auth.DefaultSessionTTL)
	if err != nil {
		log.Fatalf("FLEETGLASS_SECRET: %v", err)
	}

	srv := server.New(st, auth.NewService(st, tokens))

	log.Printf("[main] serving on %s", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
