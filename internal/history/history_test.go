package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sieve/internal/clock"
)

func newTestStore(t *testing.T, clk clock.Clock) *Store {
	t.Helper()
	s, err := Open(Options{Path: ":memory:", Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(t, clk)
	ctx := context.Background()

	_, err := uuid.Parse(s.RunID())
	require.NoError(t, err)

	e, err := s.Record(ctx, Event{Action: ActionGenerate, Program: "hpx", Target: "localhost"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ID)

	clk.Advance(time.Minute)
	_, err = s.Record(ctx, Event{Action: ActionLoad, Program: "hpx", Target: "localhost",
		Interface: "eth0", Mode: "persistent", ProgramID: 42})
	require.NoError(t, err)
	_, err = s.Record(ctx, Event{Action: ActionLoad, Program: "other", Target: "ops@10.1.1.1:22",
		Error: "permission denied"})
	require.NoError(t, err)

	events, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "other", events[0].Program, "newest first")
	assert.False(t, events[0].Succeeded())

	events, err = s.Recent(ctx, "hpx", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionLoad, events[0].Action)
	assert.Equal(t, 42, events[0].ProgramID)
	assert.True(t, events[0].Time.Equal(clk.Now()))
	assert.Equal(t, s.RunID(), events[1].RunID)

	events, err = s.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(Options{Path: path})
	require.NoError(t, err)
	_, err = s.Record(ctx, Event{Action: ActionUnload, Program: "hpx", Target: "localhost"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	events, err := s.Recent(ctx, "hpx", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionUnload, events[0].Action)
}

func TestClosed(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Record(context.Background(), Event{Action: ActionLoad})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Recent(context.Background(), "", 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
}
