// Package reputation holds the per-address rate tracking rules compiled into
// the graylist fragment, and a user-space model of the generated program that
// applies the same rules to synthetic packets.
//
// A tracked address moves UNSEEN -> TRACKED and from there either to
// PROMOTED (copied into the blacklist) or back to a reset counter after a
// long idle period (decay).
package reputation

import (
	"errors"
	"fmt"

	"grimm.is/sieve/internal/clock"
	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/policy"
)

const (
	// NsPerMs converts the graylist frequency (milliseconds) to the
	// nanosecond scale of bpf_ktime_get_ns().
	NsPerMs uint64 = 1_000_000

	// DecayFactor is how many windows an address must stay idle before its
	// fast packet count is reset.
	DecayFactor uint64 = 100
)

// ErrExists is returned when seeding an address that is already present.
var ErrExists = errors.New("entry already exists")

// Window returns the fast packet window for a frequency in milliseconds.
func Window(frequencyMs uint32) uint64 {
	return uint64(frequencyMs) * NsPerMs
}

// Tracker evaluates packets against a policy the way the generated program
// does: whitelist, then blacklist, then graylist, then the default action.
type Tracker struct {
	policy    *policy.Policy
	clock     clock.Clock
	tables    map[policy.ListName]*Table
	window    uint64
	threshold uint32
}

// NewTracker creates one table per enabled list of p.
func NewTracker(p *policy.Policy, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	t := &Tracker{
		policy: p,
		clock:  clk,
		tables: make(map[policy.ListName]*Table),
	}
	for _, name := range p.EnabledLists() {
		l := p.List(name)
		t.tables[name] = NewTable(l.MaxEntries)
		if name == policy.Graylist {
			t.window = Window(l.Frequency)
			t.threshold = l.FastPacketThreshold
		}
	}
	return t
}

// Table returns the table backing the named list, or nil when the list is
// not enabled.
func (t *Tracker) Table(name policy.ListName) *Table {
	return t.tables[name]
}

// Seed inserts a preload entry with a zeroed record.
func (t *Tracker) Seed(name policy.ListName, ip string) error {
	table := t.tables[name]
	if table == nil {
		return fmt.Errorf("list %s is not enabled", name)
	}
	key, err := mapdata.ParseKey(ip)
	if err != nil {
		return err
	}
	if !table.InsertNoExist(key, mapdata.Record{IP: key.String()}) {
		return fmt.Errorf("%s %s: %w", name, key, ErrExists)
	}
	return nil
}

// Packet evaluates one packet from ip and returns the verdict.
func (t *Tracker) Packet(ip string) (policy.Token, error) {
	key, err := mapdata.ParseKey(ip)
	if err != nil {
		return "", err
	}

	for _, name := range []policy.ListName{policy.Whitelist, policy.Blacklist} {
		if table := t.tables[name]; table != nil {
			if _, ok := table.Lookup(key); ok {
				return t.policy.List(name).Token(), nil
			}
		}
	}

	if gl := t.tables[policy.Graylist]; gl != nil {
		if l := t.policy.List(policy.Graylist); l.Binary() {
			if _, ok := gl.Lookup(key); ok {
				return l.Token(), nil
			}
		} else if promoted := t.track(gl, key); promoted {
			return policy.TokenDrop, nil
		}
	}

	token, _ := t.policy.DefaultToken()
	return token, nil
}

// track applies the graylist rules to key and reports whether the address
// was promoted into the blacklist.
func (t *Tracker) track(gl *Table, key mapdata.Key) bool {
	now := t.clock.Nanos()

	rec, ok := gl.Lookup(key)
	if !ok {
		gl.InsertNoExist(key, mapdata.Record{IP: key.String(), RxPackets: 1, LastAccessNs: now})
		return false
	}

	elapsed := now - rec.LastAccessNs
	inWindow := elapsed < t.window
	switch {
	case inWindow:
		rec.FastPackets++
	case elapsed > t.window*DecayFactor:
		rec.FastPackets = 0
	}
	rec.RxPackets++
	rec.LastAccessNs = now
	gl.Update(key, rec)

	bl := t.tables[policy.Blacklist]
	if inWindow && bl != nil && rec.FastPackets >= t.threshold {
		bl.InsertNoExist(key, rec)
		return true
	}
	return false
}
