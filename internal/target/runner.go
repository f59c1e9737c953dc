package target

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"grimm.is/sieve/internal/logging"
)

// Runner executes commands on a host.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	RunInput(ctx context.Context, input []byte, name string, args ...string) error
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run executes a command without capturing output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logCommand(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output executes a command and returns its standard output.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	logCommand(name, args)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// RunInput executes a command with input via stdin.
func (ExecRunner) RunInput(ctx context.Context, input []byte, name string, args ...string) error {
	logCommand(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func logCommand(name string, args []string) {
	logging.WithComponent("target").Debug("exec", "cmd", name+" "+strings.Join(args, " "))
}
