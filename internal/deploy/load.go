package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/history"
	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/registry"
	"grimm.is/sieve/internal/target"
)

// Mode selects how a local program is held. Remote programs are always
// persistent.
type Mode string

const (
	ModeTemporary  Mode = "temp"
	ModePersistent Mode = "persistent"
)

// ParseMode validates a user supplied mode. Empty selects ModeTemporary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeTemporary, nil
	case ModeTemporary, ModePersistent:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unsupported load mode %q (supported: temp, persistent)", s)
}

// LoadOptions are the per-invocation load flags.
type LoadOptions struct {
	Interface   string // overrides the policy interface
	AttachFlags string
	Mode        Mode
}

// Load attaches the compiled object to the policy's interface and seeds its
// maps. It returns the kernel program id, or 0 for a temporary program.
//
// A temporary load blocks in the monitor loop until ctx is cancelled and
// detaches before returning, whatever the exit path.
func (o *Orchestrator) Load(ctx context.Context, p *policy.Policy, opts LoadOptions) (progID int, err error) {
	mode := opts.Mode
	if !p.IsLocal() {
		mode = ModePersistent
	}
	iface := p.Interface(opts.Interface)
	defer func() {
		o.record(ctx, history.Event{
			Action: history.ActionLoad, Program: p.ProgramName(), Target: o.targetName(p),
			Interface: iface, Mode: string(mode), ProgramID: progID,
		}, err)
		if !errors.Is(err, ErrCancelled) {
			o.opts.Metrics.RecordLoad(string(mode), o.opts.Clock.Now(), err)
		}
	}()

	if err := validate("load", p); err != nil {
		return 0, err
	}
	if mode == "" {
		mode = ModeTemporary
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return 0, &Error{Kind: KindConfig, Op: "load", Err: err}
	}
	flag, err := target.ParseAttachFlag(opts.AttachFlags)
	if err != nil {
		return 0, &Error{Kind: KindConfig, Op: "load", Err: err}
	}
	if err := o.confirmInterface(ctx, p, iface); err != nil {
		return 0, err
	}

	next := StateLocalTemporary
	switch {
	case !p.IsLocal():
		next = StateRemotePersistent
	case mode == ModePersistent:
		next = StateLocalPersistent
	}
	if err := o.requireObject(next); err != nil {
		return 0, err
	}
	preload, err := o.resolvePreload(ctx, p)
	if err != nil {
		return 0, err
	}

	if next == StateLocalTemporary {
		return 0, o.loadTemporary(ctx, p, iface, flag, preload)
	}
	return o.loadPersistent(ctx, p, iface, flag, preload, next)
}

// confirmInterface asks before filtering an interface other than the one the
// policy names.
func (o *Orchestrator) confirmInterface(ctx context.Context, p *policy.Policy, iface string) error {
	configured := p.Interface("")
	if iface == configured {
		return nil
	}
	return o.confirm(ctx,
		fmt.Sprintf("Attach to %s instead of %s?", iface, configured),
		"The network interface differs from the policy.")
}

// requireObject checks for a compiled object, accepting one left by an
// earlier run, and that the run may move to next before anything touches
// the host.
func (o *Orchestrator) requireObject(next State) error {
	if _, err := os.Stat(o.opts.ObjectPath); err != nil {
		return &Error{Kind: KindToolchain, Op: "load", Err: fmt.Errorf("%w at %s, run generate first", ErrNoObject, o.opts.ObjectPath)}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateNew || o.state == StateUnloaded || o.state.Persistent() {
		o.state = StateCompiled
	}
	if !o.state.CanTransition(next) {
		return &Error{Kind: KindConfig, Op: "load", Err: fmt.Errorf("invalid transition %s -> %s", o.state, next)}
	}
	return nil
}

// resolvePreload returns the seed addresses of every enabled list, with
// hostnames resolved when the policy asks for it.
func (o *Orchestrator) resolvePreload(ctx context.Context, p *policy.Policy) (map[policy.ListName][]string, error) {
	resolve := p.Preload != nil && p.Preload.ResolveHostnames
	out := make(map[policy.ListName][]string)
	for _, name := range p.EnabledLists() {
		entries := p.PreloadFor(name)
		if len(entries) == 0 {
			continue
		}
		if resolve {
			r, err := o.resolver()
			if err != nil {
				return nil, &Error{Kind: KindConfig, Op: "load", Err: err}
			}
			entries, err = r.Expand(ctx, entries)
			if err != nil {
				return nil, &Error{Kind: KindConfig, Op: "load", Err: err}
			}
		}
		for _, ip := range entries {
			if _, err := mapdata.ParseKey(ip); err != nil {
				return nil, &Error{Kind: KindConfig, Op: "load", Err: fmt.Errorf("preload %s: %w", name, err)}
			}
		}
		out[name] = entries
	}
	return out, nil
}

func (o *Orchestrator) resolver() (*mapdata.Resolver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opts.Resolver == nil {
		r, err := mapdata.NewResolver("")
		if err != nil {
			return nil, err
		}
		o.opts.Resolver = r
	}
	return o.opts.Resolver, nil
}

// loadPersistent pins the program through bpftool, resolves every map it
// needs, seeds them, attaches, and only then records the registry entry.
func (o *Orchestrator) loadPersistent(ctx context.Context, p *policy.Policy, iface string, flag target.AttachFlag,
	preload map[policy.ListName][]string, state State) (int, error) {
	name := p.ProgramName()
	t := o.targetFor(p)
	pin := brand.PinPath(name)

	staged, err := t.StageObject(ctx, o.opts.ObjectPath)
	if err != nil {
		return 0, fail(KindTarget, "load", err)
	}
	if err := t.LoadProgram(ctx, staged, pin); err != nil {
		return 0, fail(KindToolchain, "load", err)
	}

	progs, err := t.ShowPrograms(ctx)
	if err != nil {
		return 0, fail(KindTarget, "load", err)
	}
	prog, ok := target.FindProgram(progs, name)
	if !ok {
		return 0, &Error{Kind: KindTarget, Op: "load", Err: fmt.Errorf("program %s not found on %s after load", name, t.Name())}
	}

	maps, err := t.ShowMaps(ctx)
	if err != nil {
		return 0, fail(KindTarget, "load", err)
	}
	mapIDs := make(map[policy.ListName]int)
	for _, list := range p.EnabledLists() {
		m, ok := target.FindMap(maps, prog, string(list))
		if !ok {
			return 0, &Error{Kind: KindTarget, Op: "load", Err: fmt.Errorf("map %s of program %d not found on %s", list, prog.ID, t.Name())}
		}
		mapIDs[list] = m.ID
	}

	echo := make(map[string][]string)
	for _, list := range p.EnabledLists() {
		for _, ip := range preload[list] {
			key, _ := mapdata.EncodeKey(ip)
			value, _ := mapdata.EncodeValue(ip)
			if err := t.UpdateMap(ctx, mapIDs[list], key[:], value[:]); err != nil {
				return 0, fail(KindTarget, "load", fmt.Errorf("seeding %s into %s: %w", ip, list, err))
			}
		}
		if len(preload[list]) > 0 {
			echo[string(list)] = preload[list]
		}
	}

	if err := t.AttachInterface(ctx, prog.ID, flag, iface); err != nil {
		return 0, fail(KindTarget, "load", err)
	}

	entry := registry.Entry{
		ID:          prog.ID,
		Name:        name,
		Interface:   iface,
		AttachFlags: string(flag),
		Target:      t.Name(),
		PinPath:     pin,
		Preload:     echo,
		LoadedAt:    o.opts.Clock.Now(),
	}
	if err := o.opts.Registry.Add(entry); err != nil {
		return 0, fmt.Errorf("program %d attached but not recorded: %w", prog.ID, err)
	}
	if err := o.advance(state); err != nil {
		return 0, err
	}
	log.Audit("attach", t.Name()+"/"+iface, map[string]any{"program": name, "program_id": prog.ID, "mode": string(flag)})
	return prog.ID, nil
}

// loadTemporary holds the program in this process until ctx is done.
func (o *Orchestrator) loadTemporary(ctx context.Context, p *policy.Policy, iface string, flag target.AttachFlag,
	preload map[policy.ListName][]string) (err error) {
	prog, err := o.opts.LoadTemp(o.opts.ObjectPath, p.ProgramName())
	if err != nil {
		return fail(KindToolchain, "load", err)
	}
	defer func() {
		if cerr := prog.Close(); cerr != nil {
			err = errors.Join(err, fail(KindTarget, "load", cerr))
		}
		if o.State() == StateLocalTemporary {
			_ = o.advance(StateUnloaded)
			log.Info("program detached", "program", p.ProgramName(), "interface", iface)
		}
	}()

	for _, list := range p.EnabledLists() {
		if ips := preload[list]; len(ips) > 0 {
			if err := prog.Seed(string(list), ips); err != nil {
				return fail(KindTarget, "load", err)
			}
		}
	}
	if err := prog.Attach(iface, flag); err != nil {
		return fail(KindTarget, "load", err)
	}
	if err := o.advance(StateLocalTemporary); err != nil {
		return err
	}

	if o.opts.MetricsListen != "" {
		go func() {
			if err := o.opts.Metrics.Serve(ctx, o.opts.MetricsListen); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	return o.Monitor(ctx, prog, p)
}
