package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gap-reversion-bot/config"
	"gap-reversion-bot/internal/auth"
)

func main() {
	subject := flag.String("subject", "operator", "token subject, e.g. a person or dashboard name")
	duration := flag.Duration("duration", 0, "token lifetime (default AUTH_TOKEN_DURATION)")
	verify := flag.String("verify", "", "validate an existing token instead of issuing one")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.Auth.TokenDuration
	if *duration > 0 {
		lifetime = *duration
	}

	manager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, lifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET must be set")
		os.Exit(1)
	}

	if *verify != "" {
		claims, err := manager.ValidateToken(*verify)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Valid token for %q, expires %s\n", claims.Subject, claims.ExpiresAt.Time.Format(time.RFC3339))
		return
	}

	token, err := manager.GenerateToken(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Token for %q valid for %s:\n", *subject, lifetime)
	fmt.Println(token)
}
