package deploy

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/target"
)

// ErrMapNotFound is returned by GetMapData when the host has no such map.
var ErrMapNotFound = errors.New("map not found")

// ErrProgramNotLoaded is returned by GetMapData when the policy's program is
// not on the host.
var ErrProgramNotLoaded = errors.New("program not loaded")

// GetMapData reads and decodes the current contents of a map on the
// policy's host. Only maps owned by the policy's program are read.
func (o *Orchestrator) GetMapData(ctx context.Context, p *policy.Policy, mapName string) ([]mapdata.Record, error) {
	t := o.targetFor(p)

	progs, err := t.ShowPrograms(ctx)
	if err != nil {
		return nil, fail(KindTarget, "map", err)
	}
	prog, ok := target.FindProgram(progs, p.ProgramName())
	if !ok {
		return nil, &Error{Kind: KindTarget, Op: "map", Err: fmt.Errorf("%w: %s on %s", ErrProgramNotLoaded, p.ProgramName(), t.Name())}
	}

	maps, err := t.ShowMaps(ctx)
	if err != nil {
		return nil, fail(KindTarget, "map", err)
	}
	m, ok := target.FindMap(maps, prog, mapName)
	if !ok {
		return nil, &Error{Kind: KindTarget, Op: "map", Err: fmt.Errorf("%w: %s on %s", ErrMapNotFound, mapName, t.Name())}
	}

	records, err := t.DumpMap(ctx, m.ID)
	if err != nil {
		return nil, fail(KindTarget, "map", err)
	}
	log.Debug("map read", "map", mapName, "id", m.ID, "entries", len(records))
	return records, nil
}
