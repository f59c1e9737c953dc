package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/sieve/internal/target"
)

// Compiler turns generated source into a loadable object.
type Compiler interface {
	Compile(ctx context.Context, sourcePath, objectPath string) error
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, sourcePath, objectPath string) error

func (f CompilerFunc) Compile(ctx context.Context, sourcePath, objectPath string) error {
	return f(ctx, sourcePath, objectPath)
}

const (
	vmlinuxHeader = "vmlinux.h"
	kernelBTF     = "/sys/kernel/btf/vmlinux"
)

// Clang compiles with clang for the bpf target. The kernel type header the
// generated source includes is dumped from the running kernel's BTF next to
// the source and refreshed whenever the kernel changes.
type Clang struct {
	Runner target.Runner
	Path   string // clang binary, "clang" when empty
}

// NewClang returns a Clang running on the local host.
func NewClang() *Clang {
	return &Clang{Runner: target.ExecRunner{}}
}

// Compile runs clang -O2 -g -target bpf. Compiler diagnostics are part of
// the returned error.
func (c *Clang) Compile(ctx context.Context, sourcePath, objectPath string) error {
	dir := filepath.Dir(sourcePath)
	if err := c.ensureHeader(ctx, dir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return err
	}

	bin := c.Path
	if bin == "" {
		bin = "clang"
	}
	return c.Runner.Run(ctx, bin, "-O2", "-g", "-target", "bpf", "-I", dir, "-c", sourcePath, "-o", objectPath)
}

func (c *Clang) ensureHeader(ctx context.Context, dir string) error {
	want, err := c.Runner.Output(ctx, "bpftool", "btf", "dump", "file", kernelBTF, "format", "c")
	if err != nil {
		return fmt.Errorf("failed to dump kernel BTF: %w", err)
	}

	path := filepath.Join(dir, vmlinuxHeader)
	have, err := os.ReadFile(path)
	if err == nil && bytes.Equal(bytes.TrimSpace(have), bytes.TrimSpace(want)) {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, want, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	log.Debug("kernel header refreshed", "path", path)
	return nil
}
