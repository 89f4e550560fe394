package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Postgres stores agents and result artifacts in the tables created by the
// db package migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const upsertCheckin = `
INSERT INTO agents (agent_id, last_seen, hostname, os_name, source_ip, encrypted_data)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
ON CONFLICT (agent_id) DO UPDATE SET
    last_seen      = EXCLUDED.last_seen,
    hostname       = COALESCE(EXCLUDED.hostname, agents.hostname),
    os_name        = COALESCE(EXCLUDED.os_name, agents.os_name),
    source_ip      = COALESCE(EXCLUDED.source_ip, agents.source_ip),
    encrypted_data = COALESCE(EXCLUDED.encrypted_data, agents.encrypted_data)`

func (p *Postgres) UpsertCheckin(ctx context.Context, update CheckinUpdate) error {
	_, err := p.pool.Exec(ctx, upsertCheckin,
		update.AgentID,
		pgtype.Timestamptz{Time: update.LastSeen, Valid: !update.LastSeen.IsZero()},
		update.Hostname,
		update.OSName,
		update.SourceIP,
		update.EncryptedData,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// The row lock taken by the subquery serializes concurrent claims, so a task
// is returned to at most one caller.
const claimPendingTask = `
UPDATE agents a SET pending_task = NULL
FROM (
    SELECT agent_id, pending_task FROM agents
    WHERE agent_id = $1 AND pending_task IS NOT NULL
    FOR UPDATE
) claimed
WHERE a.agent_id = claimed.agent_id
RETURNING claimed.pending_task`

func (p *Postgres) ClaimPendingTask(ctx context.Context, agentID string) (string, bool, error) {
	var task string
	err := p.pool.QueryRow(ctx, claimPendingTask, agentID).Scan(&task)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("claim pending task: %w", err)
	}
	return task, true, nil
}

func (p *Postgres) SetPendingTask(ctx context.Context, agentID, task string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE agents SET pending_task = NULLIF($2, '') WHERE agent_id = $1`, agentID, task)
	if err != nil {
		return fmt.Errorf("set pending task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

const selectAgent = `
SELECT agent_id, last_seen, hostname, os_name, source_ip, encrypted_data, pending_task
FROM agents`

func (p *Postgres) GetAgent(ctx context.Context, agentID string) (*AgentRecord, error) {
	rec, err := scanAgent(p.pool.QueryRow(ctx, selectAgent+` WHERE agent_id = $1`, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ListAgents(ctx context.Context) ([]AgentRecord, error) {
	rows, err := p.pool.Query(ctx, selectAgent+` ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := make([]AgentRecord, 0)
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return out, nil
}

func scanAgent(row pgx.Row) (*AgentRecord, error) {
	var rec AgentRecord
	var lastSeen pgtype.Timestamptz
	var hostname, osName, sourceIP, encrypted, pending pgtype.Text
	if err := row.Scan(&rec.AgentID, &lastSeen, &hostname, &osName, &sourceIP, &encrypted, &pending); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		rec.LastSeen = lastSeen.Time.UTC()
	}
	rec.Hostname = hostname.String
	rec.OSName = osName.String
	rec.SourceIP = sourceIP.String
	rec.EncryptedData = encrypted.String
	rec.PendingTask = pending.String
	return &rec, nil
}

func (p *Postgres) CreateArtifact(ctx context.Context, key string, content []byte) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO result_artifacts (key, content) VALUES ($1, $2)`, key, content)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrArtifactExists
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (p *Postgres) ListArtifactKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key FROM result_artifacts WHERE starts_with(key, $1) ORDER BY key COLLATE "C"`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return keys, nil
}

func (p *Postgres) GetArtifact(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := p.pool.QueryRow(ctx, `SELECT content FROM result_artifacts WHERE key = $1`, key).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return content, nil
}
