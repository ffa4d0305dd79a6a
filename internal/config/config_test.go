package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	os.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != "stdio" || cfg.Transport.Port != "21452" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.Locks.MaxRetries != 50 {
		t.Errorf("Locks.MaxRetries = %d, want 50", cfg.Locks.MaxRetries)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wavetask.toml")
	content := "[transport]\nmode = \"http\"\nport = \"9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != "http" || cfg.Transport.Port != "9000" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Transport.Host != "0.0.0.0" {
		t.Errorf("Transport.Host = %q, want default 0.0.0.0", cfg.Transport.Host)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wavetask.toml")
	if err := os.WriteFile(path, []byte("[transport]\nmode = \"http\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("WAVETASK_TRANSPORT", "stdio")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != "stdio" {
		t.Errorf("Transport.Mode = %q, want env override stdio", cfg.Transport.Mode)
	}
}

func TestValidateRejectsBadTransportMode(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Mode: "carrier-pigeon"}, Locks: LocksConfig{MaxRetries: 1}, Registry: RegistryConfig{GlobalPath: "x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an invalid transport mode to be rejected")
	}
}

func TestValidateRejectsNonPositiveMaxRetries(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Mode: "stdio"}, Locks: LocksConfig{MaxRetries: 0}, Registry: RegistryConfig{GlobalPath: "x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a non-positive max_retries to be rejected")
	}
}

func TestEnvLocksDefaultTimeoutIgnoresNegative(t *testing.T) {
	t.Setenv("WAVETASK_LOCKS_DEFAULT_TIMEOUT_MS", "-5")
	cfg := &Config{Locks: LocksConfig{DefaultTimeoutMS: 5000}}
	cfg.applyEnv()
	if cfg.Locks.DefaultTimeoutMS != 5000 {
		t.Errorf("DefaultTimeoutMS = %d, want unchanged 5000 for a negative override", cfg.Locks.DefaultTimeoutMS)
	}
}
