package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/db"
	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"golang.org/x/term"
)

func main() {
	who := flag.String("user", "", "user id or username (required)")
	flag.Parse()

	if *who == "" {
		fmt.Fprintln(os.Stderr, "usage: setpassword -user ID_OR_NAME")
		os.Exit(2)
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

	users := postgres.NewUsersRepo(pool, nil)

	u, err := lookup(ctx, users, *who)

	if err != nil {
		fmt.Fprintln(os.Stderr, "lookup user:", err)
		os.Exit(1)
	}

	plain, err := promptPassword()

	if err != nil {
		fmt.Fprintln(os.Stderr, "read password:", err)
		os.Exit(1)
	}

	// Rotating the hash also revokes every live session for the user.
	if err := users.SetPassword(ctx, u.ID, plain); err != nil {
		fmt.Fprintln(os.Stderr, "set password:", err)
		os.Exit(1)
	}

	fmt.Printf("password updated for user %d (%s); all sessions revoked\n", u.ID, u.Username)
}

func lookup(ctx context.Context, users *postgres.UsersRepo, who string) (user.User, error) {
	if id, err := strconv.ParseInt(who, 10, 64); err == nil {
		return users.GetByID(ctx, id)
	}

	return users.GetByIdentifier(ctx, who)
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "New password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	if len(first) == 0 {
		return "", fmt.Errorf("password must not be empty")
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
