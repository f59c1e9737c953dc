package cmd

import (
	"context"

	"grimm.is/sieve/internal/deploy"
)

// GenerateOptions are the flags of the generate subcommand.
type GenerateOptions struct {
	NoConfirm bool
	NoCompile bool
}

// RunGenerate renders the policy into the filter source and, unless
// NoCompile is set, compiles it.
func RunGenerate(configFile string, opts GenerateOptions) error {
	p, err := loadPolicy(configFile)
	if err != nil {
		return err
	}
	env, err := newRunEnv(opts.NoConfirm, deploy.Options{})
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if _, err := env.orch.Generate(ctx, p); err != nil {
		return finish(err)
	}
	Printer.Printf("Generated %s\n", p.ProgramName())

	if opts.NoCompile {
		return nil
	}
	obj, err := env.orch.Compile(ctx, p)
	if err != nil {
		return err
	}
	Printer.Printf("Compiled %s\n", obj)
	return nil
}
