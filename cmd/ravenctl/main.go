// ravenctl is an operator smoke check: it runs a full login, verify, and
// logout cycle against a running auth service and prints what the launcher
// would see.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dukerupert/raven/internal/client"
)

func main() {
	baseURL := flag.String("url", "http://localhost:25567", "auth service base URL")
	nickname := flag.String("nickname", "", "account nickname")
	password := flag.String("password", "", "account password")
	hwid := flag.String("hwid", "ravenctl-probe", "device fingerprint to present")
	keep := flag.Bool("keep", false, "leave the session open instead of logging out")
	flag.Parse()

	secret := os.Getenv("RAVEN_API_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "RAVEN_API_SECRET is required")
		os.Exit(1)
	}
	if *nickname == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "-nickname and -password are required")
		os.Exit(1)
	}

	c := client.New(client.Config{BaseURL: *baseURL, Secret: secret})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Login(ctx, *nickname, *password, *hwid); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}
	if err := c.Verify(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "verify failed:", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(c.Status(), "", "  ")
	fmt.Println(string(out))

	if *keep {
		return
	}
	if err := c.Logout(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "logout failed:", err)
		os.Exit(1)
	}
}
