package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8750" {
		t.Errorf("default addr %q", cfg.Server.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level %q", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data_directory = "/tmp/ce-test"
default_provider = "anthropic"

[server]
addr = "0.0.0.0:9000"

[[providers]]
name = "anthropic"
model = "claude-sonnet-4-5-20250929"

[[providers]]
name = "openai"
model = "gpt-5"

[session]
role = "actor"
max_iterations = 5
continuation_policy = "on_signal"

[[mcp_servers]]
name = "weather"
command = "weather-mcp"
args = ["--stdio"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("addr %q", cfg.Server.Addr)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].Name != "anthropic" {
		t.Errorf("providers %+v", cfg.Providers)
	}
	if cfg.Default != "anthropic" {
		t.Errorf("default provider %q", cfg.Default)
	}
	if cfg.Session.MaxIterations != 5 || cfg.Session.ContinuationPolicy != "on_signal" {
		t.Errorf("session %+v", cfg.Session)
	}
	if len(cfg.MCPServers) != 1 || cfg.MCPServers[0].Command != "weather-mcp" {
		t.Errorf("mcp servers %+v", cfg.MCPServers)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
data_directory = "/from-file"

[server]
addr = "127.0.0.1:8750"

[[providers]]
name = "anthropic"
`)
	t.Setenv("CHATENGINE_DATA_DIR", "/from-env")
	t.Setenv("CHATENGINE_ADDR", "127.0.0.1:9999")
	t.Setenv("CHATENGINE_MAX_ITERATIONS", "7")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDirectory != "/from-env" {
		t.Errorf("data dir %q", cfg.DataDirectory)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr %q", cfg.Server.Addr)
	}
	if cfg.Session.MaxIterations != 7 {
		t.Errorf("max iterations %d", cfg.Session.MaxIterations)
	}
	if cfg.Providers[0].APIKey != "sk-test" {
		t.Errorf("api key %q", cfg.Providers[0].APIKey)
	}
}

func TestAPIKeyFromFileWins(t *testing.T) {
	path := writeConfig(t, `
[[providers]]
name = "anthropic"
api_key = "sk-from-file"
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-from-file" {
		t.Errorf("api key %q", cfg.Providers[0].APIKey)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := &Config{DataDirectory: "~/data"}
	if got := cfg.DataDir(); got != filepath.Join(home, "data") {
		t.Errorf("expanded %q", got)
	}

	cfg.DataDirectory = "/absolute"
	if cfg.DataDir() != "/absolute" {
		t.Errorf("absolute path changed: %q", cfg.DataDir())
	}
}
