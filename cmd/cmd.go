// Package cmd implements the sieve subcommands. Each Run function is called
// from main with already parsed flags.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/deploy"
	"grimm.is/sieve/internal/history"
	"grimm.is/sieve/internal/i18n"
	"grimm.is/sieve/internal/logging"
	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/prompt"
)

// Printer is the localized CLI printer.
var Printer = i18n.NewCLIPrinter()

var log = logging.WithComponent("cmd")

// ErrUnsupported is returned by subcommands that exist in the command set
// but are not implemented.
var ErrUnsupported = errors.New("not supported")

// loadPolicy reads configFile, or the default policy when it is empty, and
// prints any validation warnings.
func loadPolicy(configFile string) (*policy.Policy, error) {
	result, err := policy.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		Printer.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	if result.Path != "" {
		log.Debug("policy loaded", "path", result.Path, "format", result.Format)
	}
	return result.Policy, nil
}

// runEnv is what a lifecycle command needs for one invocation.
type runEnv struct {
	orch    *deploy.Orchestrator
	history *history.Store
}

// Close drops host connections, and with them any cached credentials.
func (e *runEnv) Close() {
	if err := e.orch.Close(); err != nil {
		log.Warn("closing targets", "error", err)
	}
	if e.history != nil {
		_ = e.history.Close()
	}
}

// newRunEnv prepares the working directory and an orchestrator. A history
// database that cannot be opened is logged and skipped.
func newRunEnv(noConfirm bool, opts deploy.Options) (*runEnv, error) {
	if err := brand.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", brand.GetWorkingDir(), err)
	}

	hist, err := history.Open(history.Options{Path: brand.HistoryPath()})
	if err != nil {
		log.Warn("history disabled", "path", brand.HistoryPath(), "error", err)
		hist = nil
	}

	var p prompt.Prompter = prompt.Terminal{}
	if noConfirm {
		p = prompt.NoConfirm{Prompter: p}
	}
	opts.Prompter = p
	if hist != nil {
		opts.History = hist
	}
	return &runEnv{orch: deploy.New(opts), history: hist}, nil
}

// finish maps a declined prompt to a clean exit.
func finish(err error) error {
	if errors.Is(err, deploy.ErrCancelled) {
		Printer.Println("Cancelled.")
		return nil
	}
	return err
}

// RunUnsupported reports a subcommand that this build does not implement.
func RunUnsupported(name string) error {
	return fmt.Errorf("%s: %w", name, ErrUnsupported)
}
