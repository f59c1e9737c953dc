package target

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/sieve/internal/mapdata"
)

func TestParseAttachFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "xdpgeneric", false},
		{"generic", "xdpgeneric", false},
		{"Native", "xdpdrv", false},
		{"offloaded", "xdpoffload", false},
		{"skb", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseAttachFlag(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.BpftoolType())
		})
	}
}

func TestBpftool_Commands(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	b := NewBpftool(runner, "localhost")

	runner.On("Run", "bpftool", "prog", "load", "/tmp/generated.o", "/sys/fs/bpf/hpx").Return(nil)
	update := []interface{}{"bpftool", "map", "update", "id", "7",
		"key", "hex", "0a", "00", "00", "05",
		"value", "hex", "0a", "00", "00", "05"}
	for i := 0; i < 20; i++ {
		update = append(update, "00")
	}
	update = append(update, "noexist")
	runner.On("Run", update...).Return(nil)
	runner.On("Run", "bpftool", "net", "attach", "xdpdrv", "id", "42", "dev", "eth1").Return(nil)
	runner.On("Run", "bpftool", "net", "detach", "xdpgeneric", "dev", "eth1").Return(nil)
	runner.On("Run", "rm", "/sys/fs/bpf/hpx").Return(nil)

	require.NoError(t, b.LoadProgram(ctx, "/tmp/generated.o", "/sys/fs/bpf/hpx"))

	key, _ := mapdata.EncodeKey("10.0.0.5")
	value, _ := mapdata.EncodeValue("10.0.0.5")
	require.NoError(t, b.UpdateMap(ctx, 7, key[:], value[:]))
	require.NoError(t, b.AttachInterface(ctx, 42, AttachNative, "eth1"))
	require.NoError(t, b.DetachInterface(ctx, AttachGeneric, "eth1"))
	require.NoError(t, b.RemovePin(ctx, "/sys/fs/bpf/hpx"))

	runner.AssertExpectations(t)
	assert.NoError(t, b.Close())
}

func TestBpftool_Show(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	b := NewBpftool(runner, "localhost")

	runner.On("Output", "bpftool", "prog", "show", "-j").Return([]byte(
		`[{"id":3,"type":"xdp","name":"hpx","map_ids":[5,6]},{"id":9,"type":"kprobe","name":"other"}]`), nil)
	runner.On("Output", "bpftool", "map", "show", "-j").Return([]byte(
		`[{"id":5,"type":"lru_hash","name":"blacklist","bytes_key":4,"bytes_value":24,"max_entries":32}]`), nil)

	progs, err := b.ShowPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, progs, 2)
	assert.Equal(t, []int{5, 6}, progs[0].MapIDs)

	maps, err := b.ShowMaps(ctx)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, 24, maps[0].BytesValue)
}

func TestBpftool_DumpMap(t *testing.T) {
	runner := new(MockRunner)
	b := NewBpftool(runner, "localhost")

	dump, err := mapdata.DumpJSON([]mapdata.Record{{IP: "10.0.0.5", RxPackets: 3}})
	require.NoError(t, err)
	runner.On("Output", "bpftool", "map", "dump", "id", "5", "-j").Return(dump, nil)
	runner.On("Output", "bpftool", "map", "dump", "id", "6", "-j").Return(nil, errors.New("boom"))

	records, err := b.DumpMap(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []mapdata.Record{{IP: "10.0.0.5", RxPackets: 3}}, records)

	_, err = b.DumpMap(context.Background(), 6)
	assert.Error(t, err)
}

func TestBpftool_StageObject(t *testing.T) {
	ctx := context.Background()
	obj := filepath.Join(t.TempDir(), "generated.o")
	require.NoError(t, os.WriteFile(obj, []byte("elf"), 0o644))

	local := NewBpftool(new(MockRunner), "localhost")
	staged, err := local.StageObject(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, obj, staged)

	runner := new(MockRunner)
	runner.On("RunInput", []byte("elf"), "tee", "/tmp/stage/generated.o").Return(nil)
	remote := NewStagingBpftool(runner, "ops@10.1.1.1:22", "/tmp/stage")
	staged, err = remote.StageObject(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stage/generated.o", staged)
	runner.AssertExpectations(t)

	failing := new(MockRunner)
	failing.On("RunInput", mock.Anything, "tee", mock.Anything).Return(errors.New("read-only file system"))
	_, err = NewStagingBpftool(failing, "ops@10.1.1.1:22", "/tmp/stage").StageObject(ctx, obj)
	assert.ErrorContains(t, err, "read-only file system")

	_, err = remote.StageObject(ctx, filepath.Join(t.TempDir(), "missing.o"))
	assert.Error(t, err)
}

func TestFindProgram(t *testing.T) {
	progs := []Program{
		{ID: 3, Name: "hpx"},
		{ID: 11, Name: "hpx"},
		{ID: 12, Name: "averyverylongpr"},
	}
	p, ok := FindProgram(progs, "hpx")
	require.True(t, ok)
	assert.Equal(t, 11, p.ID)

	p, ok = FindProgram(progs, "averyverylongprogramname")
	require.True(t, ok)
	assert.Equal(t, 12, p.ID)

	_, ok = FindProgram(progs, "missing")
	assert.False(t, ok)
}

func TestFindMap(t *testing.T) {
	maps := []Map{
		{ID: 2, Name: "blacklist"},
		{ID: 8, Name: "blacklist"},
		{ID: 9, Name: "whitelist"},
	}
	m, ok := FindMap(maps, Program{MapIDs: []int{2, 9}}, "blacklist")
	require.True(t, ok)
	assert.Equal(t, 2, m.ID, "maps of other programs are ignored")

	m, ok = FindMap(maps, Program{}, "blacklist")
	require.True(t, ok)
	assert.Equal(t, 8, m.ID)

	_, ok = FindMap(maps, Program{MapIDs: []int{2}}, "whitelist")
	assert.False(t, ok)
}
