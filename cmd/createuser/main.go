package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/db"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"golang.org/x/term"
)

func main() {
	username := flag.String("username", "", "username for the new account (required)")
	email := flag.String("email", "", "email for the new account (required)")
	password := flag.String("password", "", "password; prompted when omitted")
	flag.Parse()

	if *username == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "usage: createuser -username NAME -email ADDR [-password PW]")
		os.Exit(2)
	}

	plain := *password

	if plain == "" {
		var err error
		plain, err = promptPassword()

		if err != nil {
			fmt.Fprintln(os.Stderr, "read password:", err)
			os.Exit(1)
		}
	}

	cfg := config.Load()

	pool, err := db.NewPool(cfg)

	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, pool); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	users := postgres.NewUsersRepo(pool, nil)

	u, err := users.Create(ctx, *username, *email, plain)

	if err != nil {
		fmt.Fprintln(os.Stderr, "create user:", err)
		os.Exit(1)
	}

	if plain == "" {
		fmt.Printf("created user %d (%s) without a password; it cannot log in until one is set\n", u.ID, u.Username)
		return
	}

	fmt.Printf("created user %d (%s)\n", u.ID, u.Username)
}

// promptPassword asks twice with echo off. An empty password is accepted and
// creates an account that cannot log in.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password (empty for none): ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	if len(first) == 0 {
		return "", nil
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}

	return string(first), nil
}
