package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.PongWait != 60*time.Second {
		t.Errorf("ping/pong = %s/%s", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.SlowPeerPolicy != "drop" {
		t.Errorf("SlowPeerPolicy = %q", cfg.SlowPeerPolicy)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "mode: debug\nport: 9000\nslow_peer_policy: kick\nsend_buffer: 8\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("CALLRELAY_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "debug" {
		t.Errorf("Mode = %q, want debug", cfg.Mode)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
	if cfg.SlowPeerPolicy != "kick" || cfg.SendBuffer != 8 {
		t.Errorf("policy/buffer = %q/%d", cfg.SlowPeerPolicy, cfg.SendBuffer)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{Port: 0, PingPeriod: time.Minute, PongWait: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateRejectsWildcardOriginInRelease(t *testing.T) {
	cfg := Config{
		Mode:           "release",
		Port:           8080,
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		SendBuffer:     1,
		ReadLimit:      1,
		AllowedOrigins: []string{"http://a.example", "*"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for wildcard origin in release mode")
	}

	cfg.Mode = "debug"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("debug mode: %v", err)
	}
}
