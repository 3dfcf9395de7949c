// Command devtoken signs an access token for local testing.  The secret
// is read from JWT_SECRET, loaded from .env when present.
//
//	go run ./cmd/devtoken -user 1 -role BUSINESS -branch 1
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
	"github.com/iliyamo/restaurant-sales-engine/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "user id (token subject)")
	role := flag.String("role", middleware.RoleBusiness, "BUSINESS or CLIENT")
	branch := flag.Uint64("branch", 0, "branch the staff member works at, 0 for every branch")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	if *role != middleware.RoleBusiness && *role != middleware.RoleClient {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *user, *role, *branch, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
