package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"accounts/internal/app"
	"accounts/internal/config"
	"accounts/internal/domain/models"
	"accounts/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		configPath   string
		seed         bool
		seedUsername string
		seedPassword string
	)
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.BoolVar(&seed, "seed", false, "create a demo user")
	flag.StringVar(&seedUsername, "seed-username", "demo", "username of the demo user")
	flag.StringVar(&seedPassword, "seed-password", "demo-password", "password of the demo user")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("Preparing %s storage...", cfg.Storage.Driver)

	// Opening the store applies migrations (sqlite) or creates indexes (mongo).
	st, err := app.NewStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to prepare storage: %v", err)
	}
	defer st.Close(ctx)

	log.Println("Schema is up to date")

	if seed {
		if err := seedUser(ctx, st, seedUsername, seedPassword); err != nil {
			log.Fatalf("failed to seed demo user: %v", err)
		}
	}

	fmt.Println("Database initialization completed successfully")
}

func seedUser(ctx context.Context, st app.Storage, username, password string) error {
	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u, err := st.SaveUser(ctx, models.NewUser{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Demo User",
		PassHash: passHash,
		Avatar:   "https://www.gravatar.com/avatar/?d=mp",
	})
	if errors.Is(err, storage.ErrUserAlreadyExists) {
		log.Printf("Demo user %q already exists, skipping", username)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("Demo user seeded (id=%s, username=%s)", u.ID, u.Username)

	return nil
}
