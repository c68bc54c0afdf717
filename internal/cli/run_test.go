package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T, args []string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestConfigFromFlags_Defaults(t *testing.T) {
	cmd := newTestCmd(t, nil)

	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatalf("configFromFlags() error = %v", err)
	}
	if cfg.NumClients != 1 {
		t.Errorf("NumClients = %d, want 1", cfg.NumClients)
	}
	if cfg.TCPWindowSize != "416K" {
		t.Errorf("TCPWindowSize = %q, want 416K", cfg.TCPWindowSize)
	}
	if cfg.CPULimit != 100 {
		t.Errorf("CPULimit = %d, want 100", cfg.CPULimit)
	}
}

func TestConfigFromFlags_ExplicitFlags(t *testing.T) {
	cmd := newTestCmd(t, []string{
		"--num-clients", "3",
		"--time", "60",
		"--bandwidth", "250M",
		"--cpuset", "1",
		"--cpulimit", "75",
		"--assoc-timeout", "30s",
		"--parallel-wait",
	})

	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatalf("configFromFlags() error = %v", err)
	}
	if cfg.NumClients != 3 {
		t.Errorf("NumClients = %d, want 3", cfg.NumClients)
	}
	if cfg.Time != 60 {
		t.Errorf("Time = %d, want 60", cfg.Time)
	}
	if cfg.Bandwidth != "250M" {
		t.Errorf("Bandwidth = %q, want 250M", cfg.Bandwidth)
	}
	if cfg.CPUSet != "1" {
		t.Errorf("CPUSet = %q, want 1", cfg.CPUSet)
	}
	if cfg.CPULimit != 75 {
		t.Errorf("CPULimit = %d, want 75", cfg.CPULimit)
	}
	if time.Duration(cfg.AssocTimeout) != 30*time.Second {
		t.Errorf("AssocTimeout = %s, want 30s", cfg.AssocTimeout)
	}
	if !cfg.ParallelWait {
		t.Error("ParallelWait = false, want true")
	}
}

func TestConfigFromFlags_FlagsOverrideConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	content := "numClients: 5\ntime: 120\ncpulimit: 25\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCmd(t, []string{
		"--config", configPath,
		"--num-clients", "2", // overrides the file's 5
	})

	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatalf("configFromFlags() error = %v", err)
	}
	if cfg.NumClients != 2 {
		t.Errorf("NumClients = %d, want flag override 2", cfg.NumClients)
	}
	if cfg.Time != 120 {
		t.Errorf("Time = %d, want file value 120", cfg.Time)
	}
	if cfg.CPULimit != 25 {
		t.Errorf("CPULimit = %d, want file value 25", cfg.CPULimit)
	}
}

func TestConfigFromFlags_BadConfigFile(t *testing.T) {
	cmd := newTestCmd(t, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if _, err := configFromFlags(cmd); err == nil {
		t.Error("configFromFlags() should fail for a missing config file")
	}
}

func TestValidateAfterFlagMerge(t *testing.T) {
	cmd := newTestCmd(t, []string{"--num-clients", "0"})
	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero clients")
	}
}

func TestRootCommandHasRun(t *testing.T) {
	found := false
	for _, c := range RootCmd.Commands() {
		if c.Name() == "run" {
			found = true
		}
	}
	if !found {
		t.Error("root command is missing the run subcommand")
	}
}
