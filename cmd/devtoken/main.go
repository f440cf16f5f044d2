// Package main issues bearer tokens for local development against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"classroom/internal/auth"
	"classroom/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var subject, role string
	var ttl time.Duration
	flag.StringVar(&subject, "sub", "", "token subject (instructor or staff id)")
	flag.StringVar(&role, "role", auth.RoleStaff, "role claim (admin, instructor, staff)")
	flag.DurationVar(&ttl, "ttl", cfg.TokenTTL, "token lifetime")
	flag.Parse()

	switch role {
	case auth.RoleAdmin, auth.RoleInstructor, auth.RoleStaff:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(2)
	}

	token, exp, err := auth.Issue(subject, role, cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
