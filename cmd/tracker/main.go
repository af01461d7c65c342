// tracker is the fleetglass client: it signs in, samples the local
// position on a fixed cadence and reports it to the server. Admins can
// instead follow every user's latest position with -fleet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"

	"fleetglass.app/client"
	"fleetglass.app/geo"
	"fleetglass.app/server"
	"fleetglass.app/store"
	"fleetglass.app/track"
)

func main() {
	godotenv.Load()

	var (
		serverURL = flag.String("server", getenv("FLEETGLASS_SERVER", "http://localhost:8080"), "server base URL")
		email     = flag.String("email", os.Getenv("FLEETGLASS_EMAIL"), "account email")
		password  = flag.String("password", os.Getenv("FLEETGLASS_PASSWORD"), "account password")
		register  = flag.Bool("register", false, "create the account first")
		locator   = flag.String("locator", getenv("FLEETGLASS_LOCATOR", "termux-location"), "command that prints a JSON position")
		gpsd      = flag.String("gpsd", os.Getenv("FLEETGLASS_GPSD"), "gpsd address (host:port); overrides -locator")
		interval  = flag.Duration("interval", geo.DefaultInterval, "sampling interval")
		fleet     = flag.Bool("fleet", false, "follow the fleet instead of tracking (admin only)")
		query     = flag.String("q", "", "fleet filter: substring of driver email")
		noQR      = flag.Bool("no-qr", false, "skip the map QR code")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "email and password are required (flags or FLEETGLASS_EMAIL/FLEETGLASS_PASSWORD)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*serverURL)
	sessions := track.NewSessionStore(api)

	if *register {
		if _, err := sessions.Register(ctx, *email, *password); err != nil {
			log.Fatalf("register: %v", err)
		}
		log.Printf("[tracker] account created for %s", *email)
	}

	if err := sessions.Login(ctx, *email, *password); err != nil {
		log.Fatalf("login: %v", err)
	}
	identity := sessions.Current().Identity
	log.Printf("[tracker] signed in as %s (%s)", identity.Email, identity.Role)

	if *fleet {
		followFleet(ctx, api, *query)
		return
	}

	var source geo.Source
	if *gpsd != "" {
		source = &geo.GPSD{Addr: *gpsd}
	} else {
		parts := strings.Fields(*locator)
		if len(parts) == 0 {
			log.Fatal("a -locator command or -gpsd address is required")
		}
		source = &geo.ExecSource{Command: parts[0], Args: parts[1:]}
	}

	ctrl := track.NewController(sessions, geo.NewSampler(source, *interval), api)
	defer ctrl.Close()

	ctrl.OnSample = func(sm store.Sample) {
		fmt.Printf("%s  %.6f, %.6f\n", sm.CapturedAt.Local().Format("15:04:05"), sm.Latitude, sm.Longitude)
	}
	ctrl.OnNotice = func(notice string) {
		fmt.Fprintf(os.Stderr, "\n!! %s\n", notice)
	}

	if err := ctrl.Start(); err != nil {
		log.Fatalf("start tracking: %v", err)
	}

	if !*noQR {
		fmt.Println("Your live map:")
		qrterminal.GenerateHalfBlock(strings.TrimRight(*serverURL, "/")+"/", qrterminal.L, os.Stdout)
	}

	<-ctx.Done()

	// sign out deletes this user's location records server-side
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions.Logout(shutdownCtx)
	log.Printf("[tracker] signed out")
}

// followFleet renders the drivers table on every snapshot.
func followFleet(ctx context.Context, api *client.Client, query string) {
	snapshots, errs, err := api.SubscribeFleet(ctx, query)
	if err != nil {
		log.Fatalf("fleet subscription: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Fatalf("fleet feed ended: %v", err)
		case fleet, ok := <-snapshots:
			if !ok {
				return
			}
			renderFleet(fleet)
		}
	}
}

func renderFleet(fleet []server.FleetEntry) {
	fmt.Print("\033[H\033[2J") // clear between renders
	if len(fleet) == 0 {
		fmt.Println("No drivers found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DRIVER\tLOCATION\tLAST UPDATE\tSTATUS")
	for _, e := range fleet {
		name := e.Email
		if name == "" {
			name = e.UserID
		}
		status := "INACTIVE"
		if e.Active {
			status = "ACTIVE"
		}
		fmt.Fprintf(w, "%s\t%.6f, %.6f\t%s\t%s\n",
			name, e.Latitude, e.Longitude, since(e.CapturedAt), status)
	}
	w.Flush()
}

func since(t time.Time) string {
	mins := int(time.Since(t).Minutes())
	if mins < 1 {
		return "Just now"
	}
	return fmt.Sprintf("%d minutes ago", mins)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
