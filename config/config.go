// Package config loads the daemon configuration from a TOML file with
// CHATENGINE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bigduu/chatengine/mcptools"
)

// ProviderConfig selects and authenticates one model provider.
type ProviderConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SessionConfig holds per-session defaults the engine applies when a
// request does not override them.
type SessionConfig struct {
	Role               string `toml:"role,omitempty"`
	MaxIterations      int    `toml:"max_iterations,omitempty"`
	WallClockSeconds   int    `toml:"wall_clock_seconds,omitempty"`
	ToolTimeoutSeconds int    `toml:"tool_timeout_seconds,omitempty"`
	ContinuationPolicy string `toml:"continuation_policy,omitempty"`
	SystemPrompt       string `toml:"system_prompt,omitempty"`
}

// Config is the full daemon configuration.
type Config struct {
	DataDirectory string                  `toml:"data_directory"`
	WorkingDir    string                  `toml:"working_dir,omitempty"`
	LogLevel      string                  `toml:"log_level,omitempty"`
	Server        ServerConfig            `toml:"server"`
	Providers     []ProviderConfig        `toml:"providers"`
	Default       string                  `toml:"default_provider,omitempty"`
	Session       SessionConfig           `toml:"session"`
	MCPServers    []mcptools.ServerConfig `toml:"mcp_servers"`
	TitlesEnabled *bool                   `toml:"titles_enabled,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDirectory: filepath.Join(home, ".chatengine"),
		LogLevel:      "info",
		Server:        ServerConfig{Addr: "127.0.0.1:8750"},
	}
}

// Load reads the configuration file at path, falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATENGINE_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("CHATENGINE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATENGINE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CHATENGINE_PROVIDER"); v != "" {
		c.Default = v
	}
	if v := os.Getenv("CHATENGINE_MODEL"); v != "" && len(c.Providers) > 0 {
		c.Providers[0].Model = v
	}
	if v := os.Getenv("CHATENGINE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.MaxIterations = n
		}
	}

	// Provider API keys come from the environment when the file leaves
	// them blank.
	for i := range c.Providers {
		if c.Providers[i].APIKey != "" {
			continue
		}
		switch c.Providers[i].Name {
		case "anthropic":
			c.Providers[i].APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.Providers[i].APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WallClockTimeout returns the configured wall clock budget, or zero when
// unset.
func (s SessionConfig) WallClockTimeout() time.Duration {
	return time.Duration(s.WallClockSeconds) * time.Second
}

// ToolTimeout returns the configured per-tool timeout, or zero when
// unset.
func (s SessionConfig) ToolTimeout() time.Duration {
	return time.Duration(s.ToolTimeoutSeconds) * time.Second
}

// DataDir expands a leading ~ in the data directory.
func (c *Config) DataDir() string {
	return expandPath(c.DataDirectory)
}

func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
