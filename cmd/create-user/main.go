package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/database"
	"github.com/stemsi/exstem-seb/internal/logger"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	fmt.Println("Available permissions:")
	for _, p := range model.AllPermissions {
		fmt.Printf("  %s\n", p)
	}
	fmt.Print("Enter Permissions (comma separated, \"all\" or empty): ")
	permLine, _ := reader.ReadString('\n')
	permissions, err := parsePermissions(permLine)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		Permissions:  permissions,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! User '%s' (%s) created with ID: %d\n", user.Name, user.Email, user.ID)
	if len(permissions) > 0 {
		fmt.Printf("Permissions: %s\n", strings.Join(permissions, ", "))
	}
}

func parsePermissions(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return []string{}, nil
	}
	if line == "all" {
		out := make([]string, 0, len(model.AllPermissions))
		for _, p := range model.AllPermissions {
			out = append(out, string(p))
		}
		return out, nil
	}

	known := make(map[string]bool, len(model.AllPermissions))
	for _, p := range model.AllPermissions {
		known[string(p)] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, raw := range strings.Split(line, ",") {
		p := strings.TrimSpace(raw)
		if p == "" || seen[p] {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}
