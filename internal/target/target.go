// Package target runs the privileged program and map operations on the host
// a policy is deployed to.
//
// Both the local host and an SSH remote are driven through bpftool; the
// difference is only the Runner underneath. The orchestrator talks to the
// Target interface and never learns which one it has.
package target

import (
	"context"

	"grimm.is/sieve/internal/mapdata"
)

// Target is the set of privileged operations a deployment needs.
type Target interface {
	// Name identifies the host in logs and the registry.
	Name() string
	// StageObject makes a local object file readable by the host and
	// returns its path there.
	StageObject(ctx context.Context, localPath string) (string, error)
	LoadProgram(ctx context.Context, objectPath, pinPath string) error
	ShowPrograms(ctx context.Context) ([]Program, error)
	ShowMaps(ctx context.Context) ([]Map, error)
	// UpdateMap inserts key/value and fails if key already exists.
	UpdateMap(ctx context.Context, mapID int, key, value []byte) error
	DumpMap(ctx context.Context, mapID int) ([]mapdata.Record, error)
	AttachInterface(ctx context.Context, progID int, flag AttachFlag, iface string) error
	DetachInterface(ctx context.Context, flag AttachFlag, iface string) error
	RemovePin(ctx context.Context, pinPath string) error
	Close() error
}

// Program is one entry of `bpftool prog show -j`.
type Program struct {
	ID     int    `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	MapIDs []int  `json:"map_ids"`
}

// Map is one entry of `bpftool map show -j`.
type Map struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	BytesKey   int    `json:"bytes_key"`
	BytesValue int    `json:"bytes_value"`
	MaxEntries int    `json:"max_entries"`
}
