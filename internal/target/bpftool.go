package target

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"grimm.is/sieve/internal/mapdata"
)

const bpftoolBin = "bpftool"

// kernelNameLen is BPF_OBJ_NAME_LEN without the terminator. The kernel
// truncates program and map names to it.
const kernelNameLen = 15

// Bpftool implements Target by running bpftool through a Runner.
type Bpftool struct {
	runner   Runner
	name     string
	stageDir string
}

// NewLocal returns the Target for the local host.
func NewLocal() *Bpftool {
	return NewBpftool(ExecRunner{}, "localhost")
}

// NewBpftool returns a Target running bpftool through r on a host that can
// read local files.
func NewBpftool(r Runner, name string) *Bpftool {
	return &Bpftool{runner: r, name: name}
}

// NewStagingBpftool returns a Target for a host that cannot read local
// files. Objects are copied into stageDir before loading.
func NewStagingBpftool(r Runner, name, stageDir string) *Bpftool {
	return &Bpftool{runner: r, name: name, stageDir: stageDir}
}

// Name identifies the host.
func (b *Bpftool) Name() string { return b.name }

// StageObject copies the object to the host when it cannot read local
// files, streaming it through tee.
func (b *Bpftool) StageObject(ctx context.Context, localPath string) (string, error) {
	if b.stageDir == "" {
		return localPath, nil
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	remote := path.Join(b.stageDir, filepath.Base(localPath))
	if err := b.runner.RunInput(ctx, data, "tee", remote); err != nil {
		return "", fmt.Errorf("failed to upload %s to %s: %w", localPath, b.name, err)
	}
	return remote, nil
}

// LoadProgram loads the object and pins its program.
func (b *Bpftool) LoadProgram(ctx context.Context, objectPath, pinPath string) error {
	return b.runner.Run(ctx, bpftoolBin, "prog", "load", objectPath, pinPath)
}

// ShowPrograms lists loaded programs.
func (b *Bpftool) ShowPrograms(ctx context.Context) ([]Program, error) {
	out, err := b.runner.Output(ctx, bpftoolBin, "prog", "show", "-j")
	if err != nil {
		return nil, err
	}
	var progs []Program
	if err := decodeList(out, &progs); err != nil {
		return nil, fmt.Errorf("failed to parse program list: %w", err)
	}
	return progs, nil
}

// ShowMaps lists loaded maps.
func (b *Bpftool) ShowMaps(ctx context.Context) ([]Map, error) {
	out, err := b.runner.Output(ctx, bpftoolBin, "map", "show", "-j")
	if err != nil {
		return nil, err
	}
	var maps []Map
	if err := decodeList(out, &maps); err != nil {
		return nil, fmt.Errorf("failed to parse map list: %w", err)
	}
	return maps, nil
}

// UpdateMap inserts one entry with the noexist flag.
func (b *Bpftool) UpdateMap(ctx context.Context, mapID int, key, value []byte) error {
	args := []string{"map", "update", "id", strconv.Itoa(mapID), "key"}
	args = append(args, mapdata.HexArgs(key)...)
	args = append(args, "value")
	args = append(args, mapdata.HexArgs(value)...)
	args = append(args, "noexist")
	return b.runner.Run(ctx, bpftoolBin, args...)
}

// DumpMap reads and decodes every entry of a map.
func (b *Bpftool) DumpMap(ctx context.Context, mapID int) ([]mapdata.Record, error) {
	out, err := b.runner.Output(ctx, bpftoolBin, "map", "dump", "id", strconv.Itoa(mapID), "-j")
	if err != nil {
		return nil, err
	}
	return mapdata.ParseDump(out)
}

// AttachInterface attaches a loaded program to iface.
func (b *Bpftool) AttachInterface(ctx context.Context, progID int, flag AttachFlag, iface string) error {
	return b.runner.Run(ctx, bpftoolBin, "net", "attach", flag.BpftoolType(), "id", strconv.Itoa(progID), "dev", iface)
}

// DetachInterface removes the XDP program of the given hook from iface.
func (b *Bpftool) DetachInterface(ctx context.Context, flag AttachFlag, iface string) error {
	return b.runner.Run(ctx, bpftoolBin, "net", "detach", flag.BpftoolType(), "dev", iface)
}

// RemovePin deletes the pinned program.
func (b *Bpftool) RemovePin(ctx context.Context, pinPath string) error {
	return b.runner.Run(ctx, "rm", pinPath)
}

// Close releases the runner if it holds a connection.
func (b *Bpftool) Close() error {
	if c, ok := b.runner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func decodeList(out []byte, v any) error {
	if len(out) == 0 {
		return nil
	}
	return json.Unmarshal(out, v)
}

// KernelName returns name as the kernel reports it.
func KernelName(name string) string {
	if len(name) > kernelNameLen {
		return name[:kernelNameLen]
	}
	return name
}

// FindProgram returns the most recently loaded program called name.
func FindProgram(progs []Program, name string) (Program, bool) {
	want := KernelName(name)
	var found Program
	ok := false
	for _, p := range progs {
		if p.Name == want && (!ok || p.ID > found.ID) {
			found, ok = p, true
		}
	}
	return found, ok
}

// FindMap returns the map called name, preferring maps owned by prog when
// the program reports its map ids.
func FindMap(maps []Map, prog Program, name string) (Map, bool) {
	owned := make(map[int]bool, len(prog.MapIDs))
	for _, id := range prog.MapIDs {
		owned[id] = true
	}
	want := KernelName(name)
	var found Map
	ok := false
	for _, m := range maps {
		if m.Name != want {
			continue
		}
		if len(owned) > 0 && !owned[m.ID] {
			continue
		}
		if !ok || m.ID > found.ID {
			found, ok = m, true
		}
	}
	return found, ok
}
