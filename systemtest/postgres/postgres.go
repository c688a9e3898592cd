package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/db"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image      = "postgres:17-alpine"
	dbUser     = "provisioner"
	dbPassword = "provisioner"
	dbName     = "provisioner"
)

// Instance is a throwaway Postgres with the run store schema applied.
type Instance struct {
	Container *postgres.PostgresContainer
	Config    db.Config
}

func Start(ctx context.Context, schema string) (*Instance, error) {
	container, err := postgres.Run(ctx,
		image,
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.WithDatabase(dbName),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Postgres container: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	cfg := db.Config{URL: url, Schema: schema}
	if err := db.Migrate(ctx, cfg); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Instance{Container: container, Config: cfg}, nil
}

func (i *Instance) Terminate(ctx context.Context) error {
	if err := i.Container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}
