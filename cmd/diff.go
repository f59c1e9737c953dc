package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/engine"
)

// ErrSourceDiffers is returned by RunDiff when the policy would generate a
// different source than the one on disk.
var ErrSourceDiffers = errors.New("generated source differs")

// RunDiff compares what the policy generates against the last generated
// source.
func RunDiff(configFile string) error {
	return diffSource(os.Stdout, configFile, brand.SourcePath())
}

func diffSource(w io.Writer, configFile, sourcePath string) error {
	p, err := loadPolicy(configFile)
	if err != nil {
		return err
	}
	generated, err := engine.Generate(p)
	if err != nil {
		return fmt.Errorf("failed to generate source: %w", err)
	}

	current, err := os.ReadFile(sourcePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", sourcePath, err)
	}

	if string(current) == generated {
		Printer.Fprintln(w, "No changes detected.")
		return nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(generated),
		FromFile: sourcePath,
		ToFile:   "Generated",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	Printer.Fprintln(w, "Policy differs from the generated source:")
	fmt.Fprint(w, text)
	return ErrSourceDiffers
}
