// makeadmin flips an account's role to admin.
//
//	makeadmin <user-id>
//
// The user id is the one printed at registration (also in /api/me).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"fleetglass.app/store"
)

func main() {
	godotenv.Load()

	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: makeadmin <user-id>")
		os.Exit(1)
	}
	userID := os.Args[1]

	dbPath := os.Getenv("FLEETGLASS_DB")
	if dbPath == "" {
		dbPath = "fleetglass.db"
	}

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := st.SetRole(userID, store.RoleAdmin); err != nil {
		log.Fatalf("make admin: %v", err)
	}
	fmt.Printf("Successfully made user %s an admin\n", userID)
}
