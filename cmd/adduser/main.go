// adduser creates a REST account from the command line, for setups where
// self-registration is not wanted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/repository"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/auth"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/config"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/logger"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	username := flag.String("user", "", "Display name")
	email := flag.String("email", "", "Email (login handle)")
	password := flag.String("password", "", "Password")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		log.Fatal("missing required flags: email, password")
	}
	if *username == "" {
		*username = *email
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(cfg.Database.URL()); err != nil {
		appLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	hashed, err := auth.HashPassword(*password)
	if err != nil {
		appLogger.Fatal("Failed to hash password", zap.Error(err))
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New(),
		Username:  *username,
		Email:     *email,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	userRepo := repository.NewUserRepository(db, appLogger)
	if err := userRepo.Create(ctx, user); err != nil {
		appLogger.Fatal("Failed to create user", zap.Error(err))
	}

	fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
}
