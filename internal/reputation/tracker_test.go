package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sieve/internal/clock"
	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/policy"
)

func graylistPolicy(threshold uint32) *policy.Policy {
	p := policy.Default()
	p.Lists.Blacklist.Enabled = true
	p.Lists.Graylist.Enabled = true
	p.Lists.Graylist.Frequency = 1000
	p.Lists.Graylist.FastPacketThreshold = threshold
	return p
}

func peek(t *testing.T, tr *Tracker, name policy.ListName, ip string) (mapdata.Record, bool) {
	t.Helper()
	key, err := mapdata.ParseKey(ip)
	require.NoError(t, err)
	return tr.Table(name).Peek(key)
}

func TestWindow(t *testing.T) {
	assert.Equal(t, uint64(time.Second), Window(1000))
	assert.Equal(t, uint64(time.Millisecond), Window(1))
}

func TestPromotion(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	tr := NewTracker(graylistPolicy(3), clk)
	const ip = "203.0.113.9"

	// First sight creates the tracking record.
	verdict, err := tr.Packet(ip)
	require.NoError(t, err)
	assert.Equal(t, policy.TokenPass, verdict)
	rec, ok := peek(t, tr, policy.Graylist, ip)
	require.True(t, ok)
	assert.Equal(t, mapdata.Record{IP: ip, RxPackets: 1}, rec)

	// Two qualifying packets stay below the threshold.
	for i := 1; i <= 2; i++ {
		clk.Advance(10 * time.Millisecond)
		verdict, err = tr.Packet(ip)
		require.NoError(t, err)
		assert.Equal(t, policy.TokenPass, verdict, "qualifying packet %d", i)
	}
	_, promoted := peek(t, tr, policy.Blacklist, ip)
	assert.False(t, promoted)

	// The third qualifying packet is dropped and promoted.
	clk.Advance(10 * time.Millisecond)
	verdict, err = tr.Packet(ip)
	require.NoError(t, err)
	assert.Equal(t, policy.TokenDrop, verdict)

	blRec, promoted := peek(t, tr, policy.Blacklist, ip)
	require.True(t, promoted)
	assert.Equal(t, uint32(3), blRec.FastPackets)

	before, _ := peek(t, tr, policy.Graylist, ip)
	assert.Equal(t, uint64(4), before.RxPackets)

	// The next packet hits the blacklist first.
	clk.Advance(10 * time.Millisecond)
	verdict, err = tr.Packet(ip)
	require.NoError(t, err)
	assert.Equal(t, policy.TokenDrop, verdict)

	after, _ := peek(t, tr, policy.Graylist, ip)
	assert.Equal(t, before, after)
}

func TestNoPromotionWithoutBlacklist(t *testing.T) {
	p := graylistPolicy(2)
	p.Lists.Blacklist.Enabled = false
	clk := clock.NewMock(time.Unix(0, 0))
	tr := NewTracker(p, clk)
	assert.Nil(t, tr.Table(policy.Blacklist))

	for i := 0; i < 10; i++ {
		verdict, err := tr.Packet("203.0.113.9")
		require.NoError(t, err)
		assert.Equal(t, policy.TokenPass, verdict)
		clk.Advance(time.Millisecond)
	}
	rec, _ := peek(t, tr, policy.Graylist, "203.0.113.9")
	assert.Equal(t, uint32(9), rec.FastPackets)
	assert.Equal(t, uint64(10), rec.RxPackets)
}

func TestDecay(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	tr := NewTracker(graylistPolicy(5), clk)
	const ip = "198.51.100.1"

	for i := 0; i < 3; i++ {
		_, err := tr.Packet(ip)
		require.NoError(t, err)
		clk.Advance(100 * time.Millisecond)
	}
	rec, _ := peek(t, tr, policy.Graylist, ip)
	assert.Equal(t, uint32(2), rec.FastPackets)

	// Outside the window but not idle long enough to decay.
	clk.Advance(50 * time.Second)
	_, err := tr.Packet(ip)
	require.NoError(t, err)
	rec, _ = peek(t, tr, policy.Graylist, ip)
	assert.Equal(t, uint32(2), rec.FastPackets)
	assert.Equal(t, uint64(4), rec.RxPackets)

	// Idle for more than DecayFactor windows.
	clk.Advance(101 * time.Second)
	_, err = tr.Packet(ip)
	require.NoError(t, err)
	rec, _ = peek(t, tr, policy.Graylist, ip)
	assert.Zero(t, rec.FastPackets)
	assert.Equal(t, uint64(5), rec.RxPackets)
	assert.Equal(t, clk.Nanos(), rec.LastAccessNs)
}

func TestListPrecedence(t *testing.T) {
	p := policy.Example()
	p.DefaultAction = "DROP"
	tr := NewTracker(p, clock.NewMock(time.Unix(0, 0)))

	for _, seed := range []struct {
		list policy.ListName
		ip   string
	}{
		{policy.Whitelist, "10.0.0.1"},
		{policy.Blacklist, "10.0.0.1"},
		{policy.Blacklist, "10.0.0.2"},
	} {
		require.NoError(t, tr.Seed(seed.list, seed.ip))
	}

	verdict, err := tr.Packet("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, policy.TokenPass, verdict, "whitelist is checked first")

	verdict, err = tr.Packet("10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, policy.TokenDrop, verdict)

	// Unlisted traffic gets the default action after the graylist records it.
	verdict, err = tr.Packet("10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, policy.TokenDrop, verdict)
	_, tracked := peek(t, tr, policy.Graylist, "10.0.0.3")
	assert.True(t, tracked)
}

func TestBinaryGraylist(t *testing.T) {
	p := graylistPolicy(1)
	p.Lists.Graylist.Action = "allow"
	p.DefaultAction = "DROP"
	tr := NewTracker(p, clock.NewMock(time.Unix(0, 0)))
	require.NoError(t, tr.Seed(policy.Graylist, "10.9.9.9"))

	verdict, err := tr.Packet("10.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, policy.TokenPass, verdict)

	verdict, err = tr.Packet("10.9.9.10")
	require.NoError(t, err)
	assert.Equal(t, policy.TokenDrop, verdict)
	assert.Equal(t, 1, tr.Table(policy.Graylist).Len(), "binary lists never track")
}

func TestSeed(t *testing.T) {
	tr := NewTracker(graylistPolicy(3), nil)

	require.NoError(t, tr.Seed(policy.Blacklist, "10.0.0.5"))
	assert.ErrorIs(t, tr.Seed(policy.Blacklist, "10.0.0.5"), ErrExists)
	assert.Error(t, tr.Seed(policy.Whitelist, "10.0.0.5"))
	assert.Error(t, tr.Seed(policy.Blacklist, "not-an-ip"))

	_, err := tr.Packet("::1")
	assert.Error(t, err)
}

func TestTableEviction(t *testing.T) {
	table := NewTable(2)
	k := func(ip string) mapdata.Key {
		key, err := mapdata.ParseKey(ip)
		require.NoError(t, err)
		return key
	}

	assert.True(t, table.InsertNoExist(k("10.0.0.1"), mapdata.Record{IP: "10.0.0.1"}))
	assert.True(t, table.InsertNoExist(k("10.0.0.2"), mapdata.Record{IP: "10.0.0.2"}))
	assert.False(t, table.InsertNoExist(k("10.0.0.2"), mapdata.Record{IP: "10.0.0.2"}))

	// Touch .1 so .2 becomes the eviction candidate.
	_, ok := table.Lookup(k("10.0.0.1"))
	require.True(t, ok)

	assert.True(t, table.InsertNoExist(k("10.0.0.3"), mapdata.Record{IP: "10.0.0.3"}))
	assert.Equal(t, 2, table.Len())
	_, ok = table.Peek(k("10.0.0.2"))
	assert.False(t, ok)

	var ips []string
	for _, r := range table.Records() {
		ips = append(ips, r.IP)
	}
	assert.Equal(t, []string{"10.0.0.3", "10.0.0.1"}, ips)

	assert.False(t, table.Update(k("10.0.0.2"), mapdata.Record{}))
}
