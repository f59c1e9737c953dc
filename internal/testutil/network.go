package testutil

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// VethPair is a veth link whose peer lives in its own namespace.
type VethPair struct {
	Host string
	Peer string
	NS   netns.NsHandle
}

// NewVethPair creates a veth pair named <prefix>0/<prefix>1, moves the peer
// into a fresh namespace and brings both ends up. Everything is removed when
// the test ends.
func NewVethPair(t *testing.T, prefix string) *VethPair {
	t.Helper()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		t.Fatalf("failed to get original netns: %v", err)
	}
	defer orig.Close()

	vp := &VethPair{Host: prefix + "0", Peer: prefix + "1"}

	if l, err := netlink.LinkByName(vp.Host); err == nil {
		_ = netlink.LinkDel(l)
	}
	veth := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: vp.Host}, PeerName: vp.Peer}
	if err := netlink.LinkAdd(veth); err != nil {
		t.Fatalf("failed to create veth pair: %v", err)
	}
	t.Cleanup(func() {
		if l, err := netlink.LinkByName(vp.Host); err == nil {
			_ = netlink.LinkDel(l)
		}
	})

	ns, err := netns.New()
	if err != nil {
		t.Fatalf("failed to create netns: %v", err)
	}
	vp.NS = ns
	t.Cleanup(func() { ns.Close() })

	if err := netns.Set(orig); err != nil {
		t.Fatalf("failed to return to original netns: %v", err)
	}

	if err := vp.setup(ns, orig); err != nil {
		t.Fatal(err)
	}
	return vp
}

func (vp *VethPair) setup(ns, orig netns.NsHandle) error {
	peer, err := netlink.LinkByName(vp.Peer)
	if err != nil {
		return fmt.Errorf("failed to get veth peer: %w", err)
	}
	if err := netlink.LinkSetNsFd(peer, int(ns)); err != nil {
		return fmt.Errorf("failed to move veth peer: %w", err)
	}

	host, err := netlink.LinkByName(vp.Host)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(host); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", vp.Host, err)
	}

	if err := netns.Set(ns); err != nil {
		return fmt.Errorf("failed to enter netns: %w", err)
	}
	defer netns.Set(orig)

	nsLink, err := netlink.LinkByName(vp.Peer)
	if err != nil {
		return fmt.Errorf("failed to get veth peer in netns: %w", err)
	}
	if err := netlink.LinkSetUp(nsLink); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", vp.Peer, err)
	}
	return nil
}
