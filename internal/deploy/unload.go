package deploy

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/sieve/internal/history"
	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/registry"
	"grimm.is/sieve/internal/target"
)

// UnloadOptions are the per-invocation unload flags. Zero values fall back
// to what the registry recorded at load time.
type UnloadOptions struct {
	Interface   string
	AttachFlags string
	ProgramID   int
}

// Unload detaches the policy's program as recorded for its host, removes
// its pin and drops its registry entry. Without a registry entry it fails with
// ErrNothingToUnload before touching the host.
func (o *Orchestrator) Unload(ctx context.Context, p *policy.Policy, opts UnloadOptions) (err error) {
	var entry registry.Entry
	defer func() {
		o.record(ctx, history.Event{
			Action: history.ActionUnload, Program: p.ProgramName(), Target: o.targetName(p),
			Interface: entry.Interface, ProgramID: entry.ID,
		}, err)
	}()

	t := o.targetFor(p)
	reg, err := o.opts.Registry.Load()
	if err != nil {
		return &Error{Kind: KindConfig, Op: "unload", Err: err}
	}
	entry, err = reg.Lookup(t.Name(), p.ProgramName(), opts.ProgramID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return &Error{Kind: KindTarget, Op: "unload", Err: fmt.Errorf("%w: %v", ErrNothingToUnload, err)}
		}
		return &Error{Kind: KindConfig, Op: "unload", Err: err}
	}

	iface := entry.Interface
	if opts.Interface != "" && opts.Interface != entry.Interface {
		if err := o.confirm(ctx,
			fmt.Sprintf("Detach from %s instead of %s?", opts.Interface, entry.Interface),
			"The program was recorded as attached to a different interface."); err != nil {
			return err
		}
		iface = opts.Interface
	}

	flags := opts.AttachFlags
	if flags == "" {
		flags = entry.AttachFlags
	}
	flag, err := target.ParseAttachFlag(flags)
	if err != nil {
		return &Error{Kind: KindConfig, Op: "unload", Err: err}
	}

	if err := t.DetachInterface(ctx, flag, iface); err != nil {
		if !p.IsLocal() {
			return fail(KindTarget, "unload", err)
		}
		if cerr := o.opts.ClearLink(iface, flag); cerr != nil {
			return fail(KindTarget, "unload", errors.Join(err, cerr))
		}
		log.Warn("bpftool detach failed, link cleared directly", "interface", iface, "error", err)
	}
	if err := t.RemovePin(ctx, entry.PinPath); err != nil {
		return fail(KindTarget, "unload", err)
	}
	if err := o.opts.Registry.Remove(entry.Target, entry.ID); err != nil {
		return fmt.Errorf("program %d detached but registry not updated: %w", entry.ID, err)
	}
	o.opts.Metrics.Unloads.Inc()
	if err := o.advance(StateUnloaded); err != nil {
		log.Debug("state not advanced", "error", err)
	}
	log.Audit("detach", entry.Target+"/"+iface, map[string]any{"program": entry.Name, "program_id": entry.ID, "pin": entry.PinPath})
	return nil
}
