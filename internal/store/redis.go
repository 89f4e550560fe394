package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldLastSeen      = "last_seen"
	fieldHostname      = "hostname"
	fieldOSName        = "os_name"
	fieldSourceIP      = "source_ip"
	fieldEncryptedData = "encrypted_data"
	fieldPendingTask   = "pending_task"

	maxWatchRetries = 5
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	slog.Info("Connected to Redis", "address", config.Address, "db", config.DB)
	return rdb, nil
}

// Redis keeps each agent in a hash "<prefix>agent:<id>", the set of agent ids
// in "<prefix>agents", artifacts in "<prefix>artifact:<key>" and the artifact
// key index in the sorted set "<prefix>artifacts".
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, keyPrefix string) *Redis {
	return &Redis{rdb: rdb, prefix: keyPrefix}
}

func (r *Redis) agentKey(agentID string) string { return r.prefix + "agent:" + agentID }
func (r *Redis) agentsKey() string              { return r.prefix + "agents" }
func (r *Redis) artifactKey(key string) string  { return r.prefix + "artifact:" + key }
func (r *Redis) artifactsKey() string           { return r.prefix + "artifacts" }

func (r *Redis) UpsertCheckin(ctx context.Context, update CheckinUpdate) error {
	values := map[string]any{
		fieldLastSeen: update.LastSeen.UTC().Format(time.RFC3339Nano),
	}
	if update.Hostname != "" {
		values[fieldHostname] = update.Hostname
	}
	if update.OSName != "" {
		values[fieldOSName] = update.OSName
	}
	if update.SourceIP != "" {
		values[fieldSourceIP] = update.SourceIP
	}
	if update.EncryptedData != "" {
		values[fieldEncryptedData] = update.EncryptedData
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.agentKey(update.AgentID), values)
		pipe.SAdd(ctx, r.agentsKey(), update.AgentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (r *Redis) ClaimPendingTask(ctx context.Context, agentID string) (string, bool, error) {
	var get *redis.StringCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, r.agentKey(agentID), fieldPendingTask)
		pipe.HDel(ctx, r.agentKey(agentID), fieldPendingTask)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("claim pending task: %w", err)
	}

	task, err := get.Result()
	if errors.Is(err, redis.Nil) || task == "" {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim pending task: %w", err)
	}
	return task, true, nil
}

func (r *Redis) SetPendingTask(ctx context.Context, agentID, task string) error {
	key := r.agentKey(agentID)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAgentNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if task == "" {
				pipe.HDel(ctx, key, fieldPendingTask)
			} else {
				pipe.HSet(ctx, key, fieldPendingTask, task)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrAgentNotFound) {
				return err
			}
			return fmt.Errorf("set pending task: %w", err)
		}
		return nil
	}
	return fmt.Errorf("set pending task: %w", redis.TxFailedErr)
}

func (r *Redis) GetAgent(ctx context.Context, agentID string) (*AgentRecord, error) {
	fields, err := r.rdb.HGetAll(ctx, r.agentKey(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrAgentNotFound
	}
	return agentFromHash(agentID, fields), nil
}

func (r *Redis) ListAgents(ctx context.Context) ([]AgentRecord, error) {
	ids, err := r.rdb.SMembers(ctx, r.agentsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.agentKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	out := make([]AgentRecord, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, *agentFromHash(id, fields))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func agentFromHash(agentID string, fields map[string]string) *AgentRecord {
	rec := &AgentRecord{
		AgentID:       agentID,
		Hostname:      fields[fieldHostname],
		OSName:        fields[fieldOSName],
		SourceIP:      fields[fieldSourceIP],
		EncryptedData: fields[fieldEncryptedData],
		PendingTask:   fields[fieldPendingTask],
	}
	if raw := fields[fieldLastSeen]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.LastSeen = ts.UTC()
		} else {
			slog.Warn("Ignoring unparseable last_seen", "agent_id", agentID, "value", raw)
		}
	}
	return rec
}

// createArtifactScript indexes the key before writing the content, so a
// failed index leaves nothing behind and the key stays free for a retry.
var createArtifactScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("ZADD", KEYS[2], 0, ARGV[2])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

func (r *Redis) CreateArtifact(ctx context.Context, key string, content []byte) error {
	created, err := createArtifactScript.Run(ctx, r.rdb,
		[]string{r.artifactKey(key), r.artifactsKey()},
		content, key,
	).Int()
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if created == 0 {
		return ErrArtifactExists
	}
	return nil
}

func (r *Redis) ListArtifactKeys(ctx context.Context, prefix string) ([]string, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		by = &redis.ZRangeBy{Min: "[" + prefix, Max: "(" + prefix + "\xff"}
	}
	keys, err := r.rdb.ZRangeByLex(ctx, r.artifactsKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return keys, nil
}

func (r *Redis) GetArtifact(ctx context.Context, key string) ([]byte, error) {
	content, err := r.rdb.Get(ctx, r.artifactKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return content, nil
}
