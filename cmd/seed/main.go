// seed inserts a development user with grants for local testing.
// Idempotent: an existing dev user is kept and only missing grants are added.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"session-auth/backend/internal/config"
	"session-auth/backend/internal/db"
	"session-auth/backend/internal/security"
	"session-auth/backend/internal/user/domain"
	"session-auth/backend/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devUserName  = "Dev User"
	devPassword  = "Dev.Pass123!"
)

var devGrants = []string{"users.read"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	hash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	users := repository.NewPostgresRepository(conn)
	created, err := users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Name:         devUserName,
		Email:        devUserEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		log.Fatalf("create user: %v", err)
	}
	u, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil || u == nil {
		log.Fatalf("load user %s: %v", devUserEmail, err)
	}
	if err := users.AssignGrants(ctx, u.ID, devGrants...); err != nil {
		log.Fatalf("assign grants: %v", err)
	}

	if created {
		log.Printf("seed: created %s (password %q) with grants %v", devUserEmail, devPassword, devGrants)
	} else {
		log.Printf("seed: %s already exists; grants %v ensured", devUserEmail, devGrants)
	}
}
