// Command token prints a signed development token for the gateway, using
// the JWT_SECRET and JWT_ISSUER the server is configured with.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Tyrowin/nexus-gateway/internal/auth"
	"github.com/Tyrowin/nexus-gateway/internal/server"
)

func main() {
	subject := flag.String("sub", "", "user id (sub claim)")
	email := flag.String("email", "", "user email")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*subject, *email, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(subject, email string, ttl time.Duration) error {
	cfg, err := server.LoadConfig(".env")
	if err != nil {
		return err
	}

	identity := auth.Identity{UserID: subject, Email: email}
	if err := identity.Validate(); err != nil {
		return err
	}

	token, err := auth.NewIssuer(auth.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}).Issue(identity, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
