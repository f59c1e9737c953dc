package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/engine"
	"grimm.is/sieve/internal/policy"
)

// RunCheck validates a policy file and reports what it would deploy.
func RunCheck(configFile string, verbose bool) error {
	return check(os.Stdout, configFile, verbose)
}

func check(w io.Writer, configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <policy-file>\nExample: %s check -v policy.hcl", brand.BinaryName, brand.BinaryName)
	}

	result, err := policy.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("policy invalid: %w", err)
	}

	p := result.Policy
	Printer.Fprintf(w, "Policy valid!\n")
	Printer.Fprintf(w, "Format: %s\n", result.Format)
	Printer.Fprintf(w, "Program: %s (%s)\n", p.ProgramName(), p.Kind())
	Printer.Fprintf(w, "Interface: %s\n", p.Interface(""))
	lists := make([]string, 0, 3)
	for _, l := range p.EnabledLists() {
		lists = append(lists, string(l))
	}
	if len(lists) == 0 {
		lists = append(lists, "none")
	}
	Printer.Fprintf(w, "Lists: %s\n", strings.Join(lists, ", "))
	for _, warn := range result.Warnings {
		Printer.Fprintf(w, "Warning: %v\n", warn)
	}

	if verbose {
		Printer.Fprintln(w)
		Printer.Fprintln(w, policy.Render(p))

		Printer.Fprintln(w, "[DRY RUN] Generated source:")
		src, err := engine.Generate(p)
		if err != nil {
			return fmt.Errorf("failed to generate source: %w", err)
		}
		Printer.Fprintln(w, src)
	}

	return nil
}
