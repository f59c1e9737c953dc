package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/target"
)

// fakeTarget is an in-memory host. Loading a program creates one map per
// name in mapNames.
type fakeTarget struct {
	name     string
	mapNames []string

	mu       sync.Mutex
	calls    []string
	mutating int
	progs    []target.Program
	maps     []target.Map
	contents map[int]map[mapdata.Key]mapdata.Record
	attached map[string]int
	pins     map[string]bool
	closed   bool

	failAttach error
	failDetach error
}

func newFakeTarget(name string, mapNames ...string) *fakeTarget {
	return &fakeTarget{
		name:     name,
		mapNames: mapNames,
		contents: make(map[int]map[mapdata.Key]mapdata.Record),
		attached: make(map[string]int),
		pins:     make(map[string]bool),
	}
}

func (f *fakeTarget) call(name string, mutating bool) {
	f.calls = append(f.calls, name)
	if mutating {
		f.mutating++
	}
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) StageObject(_ context.Context, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("stage", false)
	return localPath, nil
}

func (f *fakeTarget) LoadProgram(_ context.Context, _, pinPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("load", true)

	id := 40 + len(f.progs)
	prog := target.Program{ID: id, Type: "xdp", Name: target.KernelName(filepath.Base(pinPath))}
	for i, n := range f.mapNames {
		mid := id*10 + i
		f.maps = append(f.maps, target.Map{ID: mid, Type: "lru_hash", Name: n, BytesKey: 4, BytesValue: 24})
		f.contents[mid] = make(map[mapdata.Key]mapdata.Record)
		prog.MapIDs = append(prog.MapIDs, mid)
	}
	f.progs = append(f.progs, prog)
	f.pins[pinPath] = true
	return nil
}

func (f *fakeTarget) ShowPrograms(context.Context) ([]target.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("prog show", false)
	return append([]target.Program(nil), f.progs...), nil
}

func (f *fakeTarget) ShowMaps(context.Context) ([]target.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("map show", false)
	return append([]target.Map(nil), f.maps...), nil
}

func (f *fakeTarget) UpdateMap(_ context.Context, mapID int, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("map update", true)

	m, ok := f.contents[mapID]
	if !ok {
		return fmt.Errorf("no map %d", mapID)
	}
	r, err := mapdata.DecodeRecord(key, value)
	if err != nil {
		return err
	}
	k, err := mapdata.ParseKey(r.IP)
	if err != nil {
		return err
	}
	if _, exists := m[k]; exists {
		return errors.New("File exists")
	}
	m[k] = r
	return nil
}

func (f *fakeTarget) DumpMap(_ context.Context, mapID int) ([]mapdata.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("map dump", false)
	var out []mapdata.Record
	for _, r := range f.contents[mapID] {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeTarget) AttachInterface(_ context.Context, progID int, _ target.AttachFlag, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("attach", true)
	if f.failAttach != nil {
		return f.failAttach
	}
	f.attached[iface] = progID
	return nil
}

func (f *fakeTarget) DetachInterface(_ context.Context, _ target.AttachFlag, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("detach", true)
	if f.failDetach != nil {
		return f.failDetach
	}
	delete(f.attached, iface)
	return nil
}

func (f *fakeTarget) RemovePin(_ context.Context, pinPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("rm pin", true)
	delete(f.pins, pinPath)
	return nil
}

func (f *fakeTarget) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeProgram is a temporary program held in memory.
type fakeProgram struct {
	mu       sync.Mutex
	seeded   map[string][]string
	attached string
	closed   bool
	dumps    int
}

func (p *fakeProgram) Seed(mapName string, ips []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seeded == nil {
		p.seeded = make(map[string][]string)
	}
	p.seeded[mapName] = append(p.seeded[mapName], ips...)
	return nil
}

func (p *fakeProgram) Attach(iface string, _ target.AttachFlag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = iface
	return nil
}

func (p *fakeProgram) Dump(mapName string) ([]mapdata.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dumps++
	var out []mapdata.Record
	for _, ip := range p.seeded[mapName] {
		out = append(out, mapdata.Record{IP: ip})
	}
	return out, nil
}

func (p *fakeProgram) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = ""
	p.closed = true
	return nil
}

func (p *fakeProgram) Dumps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dumps
}
