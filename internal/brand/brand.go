// Package brand provides centralized branding constants and on-disk locations.
//
// The brand identity is loaded from brand.json at compile time via go:embed.
// Everything sieve persists lives under a per-user working directory
// (~/.sieve by default) so that discrete invocations can find what an
// earlier invocation left behind.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	WorkingDirName   string `json:"workingDirName"`
	PinDir           string `json:"pinDir"`
	RemoteStageDir   string `json:"remoteStageDir"`
	SourceFileName   string `json:"sourceFileName"`
	ObjectFileName   string `json:"objectFileName"`
	RegistryFileName string `json:"registryFileName"`
	HistoryFileName  string `json:"historyFileName"`
	BinaryName       string `json:"binaryName"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	PinDir = b.PinDir
	RemoteStageDir = b.RemoteStageDir
	SourceFileName = b.SourceFileName
	ObjectFileName = b.ObjectFileName
	RegistryFileName = b.RegistryFileName
	HistoryFileName = b.HistoryFileName
	BinaryName = b.BinaryName
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	PinDir           string
	RemoteStageDir   string
	SourceFileName   string
	ObjectFileName   string
	RegistryFileName string
	HistoryFileName  string
	BinaryName       string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// GetWorkingDir returns the per-user working directory.
// Priority: SIEVE_HOME > $HOME/.sieve > ./.sieve
func GetWorkingDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return b.WorkingDirName
	}
	return filepath.Join(home, b.WorkingDirName)
}

// GetOutDir returns the directory holding generated sources and objects.
func GetOutDir() string {
	return filepath.Join(GetWorkingDir(), "out")
}

// GetDataDir returns the directory holding the registry and history.
func GetDataDir() string {
	return filepath.Join(GetWorkingDir(), "data")
}

// SourcePath returns the path of the generated C source.
func SourcePath() string {
	return filepath.Join(GetOutDir(), SourceFileName)
}

// ObjectPath returns the path of the compiled object.
func ObjectPath() string {
	return filepath.Join(GetOutDir(), ObjectFileName)
}

// RegistryPath returns the path of the lifecycle registry file.
func RegistryPath() string {
	return filepath.Join(GetDataDir(), RegistryFileName)
}

// HistoryPath returns the path of the lifecycle history database.
func HistoryPath() string {
	return filepath.Join(GetDataDir(), HistoryFileName)
}

// PinPath returns the bpffs path a program named name is pinned under.
func PinPath(name string) string {
	return filepath.Join(PinDir, name)
}

// EnsureDirs creates the working directory layout.
func EnsureDirs() error {
	for _, dir := range []string{GetOutDir(), GetDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
