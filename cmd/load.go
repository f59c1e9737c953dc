package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/sieve/internal/deploy"
)

// LoadOptions are the flags of the load subcommand.
type LoadOptions struct {
	Interface     string
	AttachFlags   string
	Mode          string
	NoConfirm     bool
	NoBuild       bool
	MetricsListen string
}

// RunLoad builds the program (unless NoBuild) and loads it. A temporary load
// keeps running until interrupted.
func RunLoad(configFile string, opts LoadOptions) error {
	p, err := loadPolicy(configFile)
	if err != nil {
		return err
	}
	mode, err := deploy.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	env, err := newRunEnv(opts.NoConfirm, deploy.Options{MetricsListen: opts.MetricsListen})
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.NoBuild {
		if _, err := env.orch.Build(ctx, p); err != nil {
			return finish(err)
		}
	}

	if mode == deploy.ModeTemporary && p.IsLocal() {
		Printer.Printf("Attaching %s to %s, press Ctrl-C to detach\n", p.ProgramName(), p.Interface(opts.Interface))
	}
	id, err := env.orch.Load(ctx, p, deploy.LoadOptions{
		Interface:   opts.Interface,
		AttachFlags: opts.AttachFlags,
		Mode:        mode,
	})
	if err != nil {
		return finish(err)
	}
	if id != 0 {
		Printer.Printf("Loaded %s with program id %d\n", p.ProgramName(), id)
	} else {
		Printer.Printf("Detached %s\n", p.ProgramName())
	}
	return nil
}

// UnloadOptions are the flags of the unload subcommand.
type UnloadOptions struct {
	Interface   string
	AttachFlags string
	ProgramID   int
	NoConfirm   bool
}

// RunUnload removes a persistent program recorded in the registry.
func RunUnload(configFile string, opts UnloadOptions) error {
	p, err := loadPolicy(configFile)
	if err != nil {
		return err
	}
	env, err := newRunEnv(opts.NoConfirm, deploy.Options{})
	if err != nil {
		return err
	}
	defer env.Close()

	err = env.orch.Unload(context.Background(), p, deploy.UnloadOptions{
		Interface:   opts.Interface,
		AttachFlags: opts.AttachFlags,
		ProgramID:   opts.ProgramID,
	})
	if err != nil {
		return finish(err)
	}
	Printer.Printf("Unloaded %s\n", p.ProgramName())
	return nil
}
