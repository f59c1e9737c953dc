package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blacklistPolicy = `{
  "name": "edge",
  "networkInterface": "eth0",
  "defaultAction": "PASS",
  "lists": {"blacklist": {"enabled": true, "maxEntries": 64}},
  "preload": {"blacklist": ["10.0.0.5"]}
}`

func writePolicy(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCheck_ValidConfig(t *testing.T) {
	configPath := writePolicy(t, "valid.json", blacklistPolicy)

	var out bytes.Buffer
	require.NoError(t, check(&out, configPath, false))
	assert.Contains(t, out.String(), "Policy valid!")
	assert.Contains(t, out.String(), "Program: edge")
	assert.Contains(t, out.String(), "Lists: blacklist")
}

func TestRunCheck_Verbose(t *testing.T) {
	configPath := writePolicy(t, "valid.json", blacklistPolicy)

	var out bytes.Buffer
	require.NoError(t, check(&out, configPath, true))
	assert.Contains(t, out.String(), "[DRY RUN] Generated source:")
	assert.Contains(t, out.String(), "SEC(\"xdp\")")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"Malformed", "invalid.json", `{"name": `},
		{"UnknownExtension", "policy.ini", `name = edge`},
		{"MalformedHCL", "invalid.hcl", "lists {\n  # missing closing brace\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writePolicy(t, tt.file, tt.content)
			assert.Error(t, RunCheck(configPath, false))
		})
	}
}

func TestRunCheck_NoPath(t *testing.T) {
	err := RunCheck("", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage:")
}
