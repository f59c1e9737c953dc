// Package deploy drives a policy through its lifecycle: generate the filter
// source, compile it, load it onto the local host or a remote one, read its
// maps back and unload it.
//
// Local programs are either temporary, held by this process and detached
// when it exits, or persistent, pinned through bpftool and recorded in the
// registry so a later invocation can unload them. Remote programs are always
// persistent. All privileged work goes through target.Target, so the
// lifecycle logic does not know which host it is talking to.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/clock"
	"grimm.is/sieve/internal/engine"
	"grimm.is/sieve/internal/history"
	"grimm.is/sieve/internal/logging"
	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/metrics"
	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/prompt"
	"grimm.is/sieve/internal/registry"
	"grimm.is/sieve/internal/target"
	"grimm.is/sieve/internal/xdp"
)

var log = logging.WithComponent("deploy")

// DefaultMonitorInterval is how often the monitor loop reads the maps.
const DefaultMonitorInterval = 5 * time.Second

// TempProgram is a program held by this process.
type TempProgram interface {
	MapReader
	Seed(mapName string, ips []string) error
	Attach(iface string, flag target.AttachFlag) error
	Close() error
}

// MapReader reads a map by name.
type MapReader interface {
	Dump(mapName string) ([]mapdata.Record, error)
}

// Options wires an Orchestrator. Zero fields get production defaults.
type Options struct {
	Prompter prompt.Prompter
	Compiler Compiler
	Registry *registry.Store
	History  *history.Store
	Metrics  *metrics.Registry
	Clock    clock.Clock
	Resolver *mapdata.Resolver

	LocalTarget  func() target.Target
	RemoteTarget func(t *policy.Target, creds target.CredentialSource) target.Target
	LoadTemp     func(objectPath, name string) (TempProgram, error)
	// ClearLink detaches whatever XDP program holds a local interface. Unload
	// falls back to it when bpftool cannot detach.
	ClearLink func(iface string, flag target.AttachFlag) error

	SourcePath      string
	ObjectPath      string
	MonitorInterval time.Duration
	MetricsListen   string
	Out             io.Writer
}

// Orchestrator runs lifecycle operations for one CLI invocation. It owns at
// most one connection per host; remote credentials are asked for once and
// dropped by Close.
type Orchestrator struct {
	opts Options

	mu      sync.Mutex
	state   State
	targets map[string]target.Target
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Prompter == nil {
		opts.Prompter = prompt.Terminal{}
	}
	if opts.Compiler == nil {
		opts.Compiler = NewClang()
	}
	if opts.Registry == nil {
		opts.Registry = registry.NewStore(brand.RegistryPath())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.LocalTarget == nil {
		opts.LocalTarget = func() target.Target { return target.NewLocal() }
	}
	if opts.RemoteTarget == nil {
		opts.RemoteTarget = func(t *policy.Target, creds target.CredentialSource) target.Target {
			return target.NewRemote(t, creds)
		}
	}
	if opts.LoadTemp == nil {
		opts.LoadTemp = func(objectPath, name string) (TempProgram, error) {
			p, err := xdp.Load(objectPath, name)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	if opts.ClearLink == nil {
		opts.ClearLink = xdp.DetachInterface
	}
	if opts.SourcePath == "" {
		opts.SourcePath = brand.SourcePath()
	}
	if opts.ObjectPath == "" {
		opts.ObjectPath = brand.ObjectPath()
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Orchestrator{opts: opts, targets: make(map[string]target.Target)}
}

// State returns the lifecycle state reached in this run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) advance(to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransition(to) {
		return fmt.Errorf("invalid transition %s -> %s", o.state, to)
	}
	log.Debug("state", "from", o.state, "to", to)
	o.state = to
	return nil
}

// Close releases every host connection and the credentials cached with it.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for key, t := range o.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", t.Name(), err))
		}
		delete(o.targets, key)
	}
	return errors.Join(errs...)
}

// targetFor returns the host p deploys to, reusing the connection within the
// run.
func (o *Orchestrator) targetFor(p *policy.Policy) target.Target {
	key := "localhost"
	if !p.IsLocal() {
		key = p.Target.Address()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.targets[key]; ok {
		return t
	}
	var t target.Target
	if p.IsLocal() {
		t = o.opts.LocalTarget()
	} else {
		t = o.opts.RemoteTarget(p.Target, o.opts.Prompter)
	}
	o.targets[key] = t
	return t
}

func (o *Orchestrator) confirm(ctx context.Context, title, description string) error {
	ok, err := o.opts.Prompter.Confirm(ctx, title, description)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, e history.Event, err error) {
	if o.opts.History == nil {
		return
	}
	if err != nil {
		e.Error = err.Error()
	}
	if _, herr := o.opts.History.Record(ctx, e); herr != nil {
		log.Warn("failed to record history", "action", e.Action, "error", herr)
	}
}

func validate(op string, p *policy.Policy) error {
	if errs := p.Validate(); errs.HasErrors() {
		return &Error{Kind: KindConfig, Op: op, Err: errs.Errors()}
	}
	return nil
}

// Generate confirms the policy with the operator, renders it and writes the
// source file.
func (o *Orchestrator) Generate(ctx context.Context, p *policy.Policy) (src string, err error) {
	defer func() {
		o.record(ctx, history.Event{Action: history.ActionGenerate, Program: p.ProgramName(), Target: o.targetName(p)}, err)
	}()

	if err := validate("generate", p); err != nil {
		return "", err
	}
	if err := o.confirm(ctx, "Generate program from this policy?", policy.Render(p)); err != nil {
		return "", err
	}

	src, err = engine.GenerateFile(p, o.opts.SourcePath)
	if err != nil {
		var ce *engine.CompositionError
		if errors.As(err, &ce) {
			return "", &Error{Kind: KindComposition, Op: "generate", Err: err}
		}
		return "", &Error{Kind: KindToolchain, Op: "generate", Err: err}
	}
	o.opts.Metrics.Generates.Inc()
	if err := o.advance(StateGenerated); err != nil {
		return "", err
	}
	log.Info("source generated", "program", p.ProgramName(), "path", o.opts.SourcePath)
	return src, nil
}

// Compile builds the generated source into the object file.
func (o *Orchestrator) Compile(ctx context.Context, p *policy.Policy) (objectPath string, err error) {
	defer func() {
		o.record(ctx, history.Event{Action: history.ActionCompile, Program: p.ProgramName(), Target: o.targetName(p)}, err)
	}()

	if _, err := os.Stat(o.opts.SourcePath); err != nil {
		return "", &Error{Kind: KindToolchain, Op: "compile", Err: err}
	}
	err = o.opts.Compiler.Compile(ctx, o.opts.SourcePath, o.opts.ObjectPath)
	o.opts.Metrics.RecordCompile(err)
	if err != nil {
		return "", &Error{Kind: KindToolchain, Op: "compile", Err: err}
	}
	if err := o.advance(StateCompiled); err != nil {
		return "", err
	}
	log.Info("object compiled", "path", o.opts.ObjectPath)
	return o.opts.ObjectPath, nil
}

// Build generates and compiles.
func (o *Orchestrator) Build(ctx context.Context, p *policy.Policy) (string, error) {
	if _, err := o.Generate(ctx, p); err != nil {
		return "", err
	}
	return o.Compile(ctx, p)
}

func (o *Orchestrator) targetName(p *policy.Policy) string {
	if p.IsLocal() {
		return "localhost"
	}
	return p.Target.Address()
}
