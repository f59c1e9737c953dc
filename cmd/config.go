package cmd

import (
	"fmt"
	"io"
	"os"

	"grimm.is/sieve/internal/policy"
)

// RunGetConfig prints a built-in policy. preset is default, example or base.
func RunGetConfig(preset, format string) error {
	return writeConfig(os.Stdout, preset, format)
}

func writeConfig(w io.Writer, preset, format string) error {
	if preset == "" {
		preset = "default"
	}
	p, ok := policy.Preset(preset)
	if !ok {
		return fmt.Errorf("unknown preset %q (supported: default, example, base)", preset)
	}
	out, err := policy.Encode(p, policy.OutputFormat(format))
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		_, err = io.WriteString(w, "\n")
	}
	return err
}
