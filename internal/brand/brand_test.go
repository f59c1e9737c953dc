package brand

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if PinDir != "/sys/fs/bpf" {
		t.Errorf("unexpected pin dir %q", PinDir)
	}
}

func TestWorkingDirOverride(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_HOME", "/tmp/sieve-test")

	if GetWorkingDir() != "/tmp/sieve-test" {
		t.Errorf("expected override, got %s", GetWorkingDir())
	}
	if RegistryPath() != "/tmp/sieve-test/data/progs.json" {
		t.Errorf("unexpected registry path %s", RegistryPath())
	}
	if SourcePath() != "/tmp/sieve-test/out/generated.c" {
		t.Errorf("unexpected source path %s", SourcePath())
	}
}

func TestWorkingDirDefault(t *testing.T) {
	os.Unsetenv(ConfigEnvPrefix + "_HOME")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if GetWorkingDir() != filepath.Join(home, ".sieve") {
		t.Errorf("unexpected working dir %s", GetWorkingDir())
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigEnvPrefix+"_HOME", dir)

	if err := EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range []string{GetOutDir(), GetDataDir()} {
		if st, err := os.Stat(d); err != nil || !st.IsDir() {
			t.Errorf("expected directory %s", d)
		}
	}
}

func TestPinPath(t *testing.T) {
	if PinPath("hpx") != "/sys/fs/bpf/hpx" {
		t.Errorf("unexpected pin path %s", PinPath("hpx"))
	}
}
