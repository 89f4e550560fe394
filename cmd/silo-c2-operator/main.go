package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/EternisAI/silo-c2/internal/envelope"
	"github.com/EternisAI/silo-c2/internal/operator"
	"github.com/EternisAI/silo-c2/internal/store"
)

var AppVersion string

const usage = `Usage: silo-c2-operator <command> [arguments]

Commands:
  agents                      list known agents, most recently seen first
  send <agent_id> <command>   queue a command for an agent
  task <agent_id> <command>   queue a command and wait for its result
  result <agent_id>           show the latest stored result of an agent
  keygen                      print a new envelope key
  version                     print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "keygen":
		return runKeygen(stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "silo-c2-operator", AppVersion)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	}

	InitConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	op, closeFn, err := newOperator(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	defer closeFn()

	return dispatch(ctx, op, args, stdout, stderr)
}

func newOperator(ctx context.Context) (*operator.Operator, func(), error) {
	backend, err := store.Open(ctx, config.Storage, config.DB, config.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open storage: %w", err)
	}
	if backend == nil {
		return nil, nil, fmt.Errorf("storage.driver is not configured")
	}

	var env *envelope.Envelope
	if config.Crypto.Key != "" {
		env, err = envelope.New(config.Crypto.Key)
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("invalid crypto.key: %w", err)
		}
	}

	slog.Debug("Operator ready", "storage", config.Storage.Driver, "encrypted", env != nil)

	op := operator.New(backend.Agents, backend.Artifacts, env,
		operator.WithPollInterval(config.Operator.PollInterval),
		operator.WithPollAttempts(config.Operator.PollAttempts),
	)
	return op, backend.Close, nil
}
