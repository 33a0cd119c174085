package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Console != "console" {
		t.Errorf("Console: got %q, want %q", cfg.Console, "console")
	}
	if cfg.ConnectDeadline != "30s" {
		t.Errorf("ConnectDeadline: got %q, want %q", cfg.ConnectDeadline, "30s")
	}
	if cfg.ConnectInterval != "100ms" {
		t.Errorf("ConnectInterval: got %q, want %q", cfg.ConnectInterval, "100ms")
	}
	if cfg.Mirror != "stdout" {
		t.Errorf("Mirror: got %q, want %q", cfg.Mirror, "stdout")
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "anthropic")
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens: got %d, want %d", cfg.MaxTokens, 4096)
	}
}

// clearEnv blanks every env var that Load consults, so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONSOLEDRIVE_CONSOLE", "CONSOLEDRIVE_CONNECT_DEADLINE",
		"CONSOLEDRIVE_CONNECT_INTERVAL", "CONSOLEDRIVE_MIRROR",
		"CONSOLEDRIVE_TRANSCRIPT", "CONSOLEDRIVE_EVENT_SOCKET",
		"CONSOLEDRIVE_PROVIDER", "CONSOLEDRIVE_MODEL",
		"CONSOLEDRIVE_BASE_URL", "CONSOLEDRIVE_API_KEY",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".consoledrive.yaml")
	content := `channels:
  console: /run/guest/console.sock
  serial: /run/guest/serial.sock
console: console
connect_deadline: "10s"
mirror: stderr
passphrases:
  sda1_crypt: hunter2
provider: openai
model: gpt-4o-mini
api_key: test-key-123
max_tokens: 8192
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to temp dir so Load() finds the config
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)
	os.Chdir(dir)

	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigFile != ".consoledrive.yaml" {
		t.Errorf("ConfigFile: got %q, want %q", cfg.ConfigFile, ".consoledrive.yaml")
	}
	if got := cfg.Channels["serial"]; got != "/run/guest/serial.sock" {
		t.Errorf("Channels[serial]: got %q, want %q", got, "/run/guest/serial.sock")
	}
	if cfg.ConnectDeadlineDuration != 10*time.Second {
		t.Errorf("ConnectDeadlineDuration: got %v, want %v", cfg.ConnectDeadlineDuration, 10*time.Second)
	}
	if cfg.ConnectIntervalDuration != 100*time.Millisecond {
		t.Errorf("ConnectIntervalDuration: got %v, want %v", cfg.ConnectIntervalDuration, 100*time.Millisecond)
	}
	if cfg.Mirror != "stderr" {
		t.Errorf("Mirror: got %q, want %q", cfg.Mirror, "stderr")
	}
	if got := cfg.Passphrases["sda1_crypt"]; got != "hunter2" {
		t.Errorf("Passphrases[sda1_crypt]: got %q, want %q", got, "hunter2")
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "openai")
	}
	if cfg.MaxTokens != 8192 {
		t.Errorf("MaxTokens: got %d, want %d", cfg.MaxTokens, 8192)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".consoledrive.yaml")
	content := `console: ttyS0
mirror: stdout
api_key: file-key
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)
	os.Chdir(dir)

	clearEnv(t)
	t.Setenv("CONSOLEDRIVE_CONSOLE", "hvc0")
	t.Setenv("CONSOLEDRIVE_MIRROR", "off")
	t.Setenv("CONSOLEDRIVE_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Console != "hvc0" {
		t.Errorf("Console: got %q, want %q", cfg.Console, "hvc0")
	}
	if cfg.Mirror != "off" {
		t.Errorf("Mirror: got %q, want %q", cfg.Mirror, "off")
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey: got %q, want %q", cfg.APIKey, "env-key")
	}
}

func TestAPIKeyFallback(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)
	os.Chdir(t.TempDir())

	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-fallback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIKey != "sk-ant-fallback" {
		t.Errorf("APIKey: got %q, want %q", cfg.APIKey, "sk-ant-fallback")
	}
}

func TestInvalidDuration(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)
	os.Chdir(t.TempDir())

	clearEnv(t)
	t.Setenv("CONSOLEDRIVE_CONNECT_DEADLINE", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted an invalid connect deadline")
	}
}

func TestEndpointsConsoleFirst(t *testing.T) {
	cfg := Defaults()
	cfg.Channels = map[string]string{
		"serial":  "/tmp/serial.sock",
		"console": "/tmp/console.sock",
		"monitor": "/tmp/monitor.sock",
	}

	eps := cfg.Endpoints()
	if len(eps) != 3 {
		t.Fatalf("Endpoints: got %d entries, want 3", len(eps))
	}
	if eps[0].Name != "console" {
		t.Errorf("first endpoint: got %q, want %q", eps[0].Name, "console")
	}
	// Remaining channels sorted by name for a deterministic dial order.
	if eps[1].Name != "monitor" || eps[2].Name != "serial" {
		t.Errorf("order: got [%s %s], want [monitor serial]", eps[1].Name, eps[2].Name)
	}
}
