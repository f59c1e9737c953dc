package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonPolicy = `{
  "name": "hpx",
  "target": {"host": "10.1.1.1", "username": "ops"},
  "networkInterface": "eth1",
  "programType": "ip",
  "defaultAction": "DROP",
  "somethingNew": {"ignored": true},
  "lists": {
    "blacklist": {"enabled": true, "action": "deny"},
    "graylist": {"enabled": true, "frequency": 500, "fastPacketThreshold": 3}
  },
  "preload": {"blacklist": ["10.0.0.5"]}
}`

const tomlPolicy = `
name = "hpx"
networkInterface = "eth1"
programType = "ip"
defaultAction = "DROP"
somethingNew = 1

[target]
host = "10.1.1.1"
username = "ops"

[lists.blacklist]
enabled = true
action = "deny"

[lists.graylist]
enabled = true
frequency = 500
fastPacketThreshold = 3

[preload]
blacklist = ["10.0.0.5"]
`

const hclPolicy = `
name              = "hpx"
network_interface = "eth1"
program_type      = "ip"
default_action    = "DROP"
something_new     = 1

target {
  host     = "10.1.1.1"
  username = "ops"
}

lists {
  blacklist {
    enabled = true
    action  = "deny"
  }
  graylist {
    enabled               = true
    frequency             = 500
    fast_packet_threshold = 3
  }
}

preload {
  blacklist = ["10.0.0.5"]
}
`

const yamlPolicy = `
name: hpx
networkInterface: eth1
programType: ip
defaultAction: DROP
somethingNew: 1
target:
  host: 10.1.1.1
  username: ops
lists:
  blacklist:
    enabled: true
    action: deny
  graylist:
    enabled: true
    frequency: 500
    fastPacketThreshold: 3
preload:
  blacklist:
    - 10.0.0.5
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertSamplePolicy(t *testing.T, p *Policy) {
	t.Helper()
	assert.Equal(t, "hpx", p.Name)
	assert.Equal(t, "eth1", p.NetworkInterface)
	assert.Equal(t, ProgramIP, p.Kind())
	token, ok := p.DefaultToken()
	assert.True(t, ok)
	assert.Equal(t, TokenDrop, token)

	require.NotNil(t, p.Target)
	assert.Equal(t, "10.1.1.1", p.Target.Host)
	assert.Equal(t, 22, p.Target.Port)
	assert.Equal(t, "ops", p.Target.Username)
	assert.False(t, p.IsLocal())

	assert.Nil(t, p.List(Whitelist))
	assert.Equal(t, []ListName{Blacklist, Graylist}, p.EnabledLists())
	assert.Equal(t, uint32(32), p.List(Blacklist).MaxEntries)
	gl := p.List(Graylist)
	assert.Equal(t, ActionInvestigate, gl.Action)
	assert.Equal(t, uint32(500), gl.Frequency)
	assert.Equal(t, uint32(3), gl.FastPacketThreshold)

	assert.Equal(t, []string{"10.0.0.5"}, p.PreloadFor(Blacklist))
}

func TestLoadFile_Formats(t *testing.T) {
	tests := []struct {
		file    string
		content string
		format  Format
	}{
		{"policy.json", jsonPolicy, FormatJSON},
		{"policy.toml", tomlPolicy, FormatTOML},
		{"policy.hcl", hclPolicy, FormatHCL},
		{"policy.yaml", yamlPolicy, FormatYAML},
		{"policy.yml", yamlPolicy, FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			result, err := LoadFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.format, result.Format)
			assertSamplePolicy(t, result.Policy)
		})
	}
}

func TestLoadFile_EmptyPathUsesDefault(t *testing.T) {
	result, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, result.Policy.Name)
	assert.Empty(t, result.Policy.EnabledLists())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "does not exist")

	_, err = LoadFile(writeFile(t, "policy.ini", "name=x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadFile(writeFile(t, "bad.json", "{"))
	assert.ErrorContains(t, err, "JSON parse error")

	_, err = LoadFile(writeFile(t, "dup.json", `{"lists":{"blacklist":{"enabled":true}},"preload":{"blacklist":["1.2.3.4","1.2.3.4"]}}`))
	assert.ErrorContains(t, err, "duplicate entry")
}

func TestLoadFile_Warnings(t *testing.T) {
	result, err := LoadFile(writeFile(t, "p.json", `{"defaultAction": "BOUNCE"}`))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	token, ok := result.Policy.DefaultToken()
	assert.False(t, ok)
	assert.Equal(t, TokenPass, token)
}

func TestEncode_DecodesBack(t *testing.T) {
	formats := map[OutputFormat]Format{
		OutputPretty: FormatJSON,
		OutputTOML:   FormatTOML,
		OutputYAML:   FormatYAML,
		OutputHCL:    FormatHCL,
	}
	for out, in := range formats {
		t.Run(string(out), func(t *testing.T) {
			data, err := Encode(Example(), out)
			require.NoError(t, err)

			p, err := Decode(data, "example.hcl", in)
			require.NoError(t, err)
			p.ApplyDefaults()

			want := Example()
			assert.Equal(t, want.Name, p.Name)
			assert.Equal(t, want.Target.Host, p.Target.Host)
			assert.Equal(t, want.EnabledLists(), p.EnabledLists())
			assert.Equal(t, want.PreloadFor(Whitelist), p.PreloadFor(Whitelist))
			assert.Equal(t, want.List(Graylist).FastPacketThreshold, p.List(Graylist).FastPacketThreshold)
		})
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	_, err := Encode(Default(), "xml")
	assert.Error(t, err)
}
