// Package xdp loads a compiled filter into the running kernel without
// pinning it. The program lives only as long as the returned Program; this
// backs the temporary load mode.
package xdp

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/sieve/internal/logging"
	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/target"
)

var log = logging.WithComponent("xdp")

// ErrNoSuchMap is returned when the object has no map of the requested name.
var ErrNoSuchMap = errors.New("map not found in object")

// Program is a loaded collection and, once attached, its XDP link.
type Program struct {
	name string
	coll *ebpf.Collection
	prog *ebpf.Program

	iface string
	link  link.Link
}

// Load reads an ELF object and loads it. name is the C function of the
// program section.
func Load(objectPath, name string) (*Program, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return nil, fmt.Errorf("loading object %s: %w", objectPath, err)
	}
	if _, ok := spec.Programs[name]; !ok {
		return nil, fmt.Errorf("program %q not found in %s", name, objectPath)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		var verr *ebpf.VerifierError
		if errors.As(err, &verr) {
			log.Error("verifier rejected program", "program", name, "log", fmt.Sprintf("%+v", verr))
		}
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	log.Info("program loaded", "program", name, "maps", len(coll.Maps))
	return &Program{name: name, coll: coll, prog: coll.Programs[name]}, nil
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Attach links the program to iface.
func (p *Program) Attach(iface string, flag target.AttachFlag) error {
	if p.link != nil {
		return fmt.Errorf("program %s already attached to %s", p.name, p.iface)
	}
	l, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface, err)
	}

	xl, err := link.AttachXDP(link.XDPOptions{
		Program:   p.prog,
		Interface: l.Attrs().Index,
		Flags:     linkFlags(flag),
	})
	if err != nil {
		if flag != target.AttachGeneric {
			return fmt.Errorf("attaching XDP to %s in %s mode (driver %s): %w", iface, flag, driverOrUnknown(iface), err)
		}
		return fmt.Errorf("attaching XDP to %s: %w", iface, err)
	}
	p.link = xl
	p.iface = iface
	log.Info("program attached", "program", p.name, "interface", iface, "mode", flag, "driver", driverOrUnknown(iface))
	return nil
}

// Seed inserts a zeroed record per address. Existing keys are an error.
func (p *Program) Seed(mapName string, ips []string) error {
	m, ok := p.coll.Maps[mapName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchMap, mapName)
	}
	for _, ip := range ips {
		key, err := mapdata.EncodeKey(ip)
		if err != nil {
			return err
		}
		value, err := mapdata.EncodeValue(ip)
		if err != nil {
			return err
		}
		if err := m.Update(key[:], value[:], ebpf.UpdateNoExist); err != nil {
			return fmt.Errorf("seeding %s into %s: %w", ip, mapName, err)
		}
	}
	log.Debug("map seeded", "map", mapName, "entries", len(ips))
	return nil
}

// Dump reads every entry of the named map.
func (p *Program) Dump(mapName string) ([]mapdata.Record, error) {
	m, ok := p.coll.Maps[mapName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMap, mapName)
	}

	var (
		records    []mapdata.Record
		key, value []byte
	)
	iter := m.Iterate()
	for iter.Next(&key, &value) {
		r, err := mapdata.DecodeRecord(key, value)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", mapName, err)
	}
	return records, nil
}

// Detach removes the link. Safe to call when not attached.
func (p *Program) Detach() error {
	if p.link == nil {
		return nil
	}
	err := p.link.Close()
	p.link = nil
	if err != nil {
		return fmt.Errorf("detaching from %s: %w", p.iface, err)
	}
	log.Info("program detached", "program", p.name, "interface", p.iface)
	return nil
}

// Close detaches and releases every object of the collection.
func (p *Program) Close() error {
	var errs []error
	if err := p.Detach(); err != nil {
		errs = append(errs, err)
	}
	if p.coll != nil {
		p.coll.Close()
		p.coll = nil
	}
	return errors.Join(errs...)
}

// DetachInterface clears whatever XDP program is attached to iface in the
// given mode. It is used to clean up after a process that died with its link
// still held.
func DetachInterface(iface string, flag target.AttachFlag) error {
	l, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface, err)
	}
	if err := netlink.LinkSetXdpFdWithFlags(l, -1, netlinkFlags(flag)); err != nil {
		return fmt.Errorf("clearing XDP on %s: %w", iface, err)
	}
	return nil
}

func linkFlags(flag target.AttachFlag) link.XDPAttachFlags {
	switch flag {
	case target.AttachNative:
		return link.XDPDriverMode
	case target.AttachOffloaded:
		return link.XDPOffloadMode
	}
	return link.XDPGenericMode
}

func netlinkFlags(flag target.AttachFlag) int {
	switch flag {
	case target.AttachNative:
		return unix.XDP_FLAGS_DRV_MODE
	case target.AttachOffloaded:
		return unix.XDP_FLAGS_HW_MODE
	}
	return unix.XDP_FLAGS_SKB_MODE
}
