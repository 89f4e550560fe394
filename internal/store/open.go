package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-c2/internal/db"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Driver string
}

// Backend is an opened driver serving both storage collaborators.
type Backend struct {
	Agents    AgentStore
	Artifacts ArtifactStore
	close     func()
}

func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// Open connects the driver named in config. An empty driver means storage is
// not configured and returns (nil, nil).
func Open(ctx context.Context, config Config, dbConfig db.Config, redisConfig RedisConfig) (*Backend, error) {
	switch config.Driver {
	case "":
		slog.Warn("No storage driver configured")
		return nil, nil

	case DriverMemory:
		m := NewMemory()
		slog.Info("Using in-memory storage")
		return &Backend{Agents: m, Artifacts: m}, nil

	case DriverPostgres:
		pool, err := db.Open(ctx, dbConfig)
		if err != nil {
			return nil, err
		}
		p := NewPostgres(pool)
		return &Backend{Agents: p, Artifacts: p, close: pool.Close}, nil

	case DriverRedis:
		rdb, err := NewRedisClient(ctx, redisConfig)
		if err != nil {
			return nil, err
		}
		r := NewRedis(rdb, redisConfig.KeyPrefix)
		return &Backend{Agents: r, Artifacts: r, close: func() { _ = rdb.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
	}
}
