package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/EternisAI/silo-c2/internal/db"
)

const (
	dbUser     = "silo"
	dbPassword = "silo"
	dbName     = "silo_c2"
)

// Instance is a migrated Postgres running in a container.
type Instance struct {
	Container *postgres.PostgresContainer
	URL       string
	Pool      *pgxpool.Pool
}

func StartPostgres(ctx context.Context, dbUser, dbPassword, dbName string) (*postgres.PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
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

	state, err := container.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container state: %w", err)
	}

	if !state.Running {
		return nil, fmt.Errorf("postgres container is not running")
	}

	return container, nil
}

// Start launches a container, applies the schema migrations and opens a pool.
func Start(ctx context.Context) (*Instance, error) {
	container, err := StartPostgres(ctx, dbUser, dbPassword, dbName)
	if err != nil {
		return nil, err
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := db.RunMigrations(url, "public"); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := db.InitDB(ctx, url, "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Instance{Container: container, URL: url, Pool: pool}, nil
}

// Reset empties every table so a test starts from a clean store.
func (i *Instance) Reset(ctx context.Context) error {
	_, err := i.Pool.Exec(ctx, `TRUNCATE agents, result_artifacts`)
	return err
}

func (i *Instance) Terminate(ctx context.Context) error {
	i.Pool.Close()
	return TerminatePostgres(ctx, i.Container)
}

func TerminatePostgres(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}
