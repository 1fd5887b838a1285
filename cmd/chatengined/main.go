// chatengined serves the chat engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigduu/chatengine/chat"
	"github.com/bigduu/chatengine/config"
	"github.com/bigduu/chatengine/httpapi"
	"github.com/bigduu/chatengine/llm"
	"github.com/bigduu/chatengine/mcptools"
	"github.com/bigduu/chatengine/storage"
	"github.com/bigduu/chatengine/tools"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "chatengined:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("CHATENGINE_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.chatengine/config.toml"
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := storage.Open(cfg.DataDir())
	if err != nil {
		return err
	}
	defer store.Close()

	engineOpts := []chat.EngineOption{
		chat.WithStore(store),
		chat.WithLogger(logger),
		chat.WithDefaults(sessionDefaults(cfg)),
	}
	if cfg.TitlesEnabled != nil {
		engineOpts = append(engineOpts, chat.WithTitleGeneration(*cfg.TitlesEnabled))
	}
	engine := chat.NewEngine(client, engineOpts...)

	env := tools.NewLocalEnvironment(cfg.WorkingDir)
	tools.RegisterAll(engine.Registry(), env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []*mcptools.Server
	for _, mcpCfg := range cfg.MCPServers {
		server, err := mcptools.Connect(ctx, mcpCfg)
		if err != nil {
			logger.Error("failed to connect MCP server", "server", mcpCfg.Name, "error", err)
			continue
		}
		server.RegisterTools(engine.Registry())
		servers = append(servers, server)
		logger.Info("MCP server connected", "server", mcpCfg.Name)
	}
	defer func() {
		for _, server := range servers {
			if err := server.Close(); err != nil {
				logger.Warn("failed to close MCP server", "server", server.Name(), "error", err)
			}
		}
	}()

	if err := engine.LoadSessions(ctx); err != nil {
		logger.Warn("failed to restore sessions", "error", err)
	}
	go engine.RunHeartbeat(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewServer(engine, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatengined listening", "addr", cfg.Server.Addr, "data_dir", cfg.DataDir())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// buildClient constructs a provider per config entry. Unknown names fall
// through to the gollm adapter, which covers its supported providers by
// name.
func buildClient(cfg *config.Config) (*llm.Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	opts := make([]llm.ClientOption, 0, len(cfg.Providers)+1)
	for _, p := range cfg.Providers {
		provider, err := buildProvider(p)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		opts = append(opts, llm.WithProvider(provider))
	}
	if cfg.Default != "" {
		opts = append(opts, llm.WithDefaultProvider(cfg.Default))
	}
	return llm.NewClient(opts...), nil
}

func buildProvider(p config.ProviderConfig) (llm.Provider, error) {
	switch p.Name {
	case "anthropic":
		return llm.NewAnthropicProvider(p.BaseURL, p.APIKey, p.Model)
	case "openai":
		return llm.NewOpenAIProvider(p.BaseURL, p.APIKey, p.Model)
	case "":
		return nil, fmt.Errorf("provider name is required")
	default:
		if p.BaseURL != "" {
			return llm.NewOpenAICompatibleProvider(p.Name, p.BaseURL, p.APIKey, p.Model)
		}
		return llm.NewGollmProvider(p.Name,
			llm.GollmWithAPIKey(p.APIKey),
			llm.GollmWithModel(p.Model),
		)
	}
}

func sessionDefaults(cfg *config.Config) chat.Config {
	defaults := chat.DefaultConfig()
	if len(cfg.Providers) > 0 {
		defaults.Provider = cfg.Providers[0].Name
		defaults.Model = cfg.Providers[0].Model
	}
	if cfg.Default != "" {
		defaults.Provider = cfg.Default
		for _, p := range cfg.Providers {
			if p.Name == cfg.Default {
				defaults.Model = p.Model
			}
		}
	}
	if cfg.Session.Role != "" {
		defaults.Role = chat.Role(cfg.Session.Role)
	}
	if cfg.Session.MaxIterations > 0 {
		defaults.MaxIterations = cfg.Session.MaxIterations
	}
	if d := cfg.Session.WallClockTimeout(); d > 0 {
		defaults.WallClockTimeout = d
	}
	if d := cfg.Session.ToolTimeout(); d > 0 {
		defaults.ToolTimeout = d
	}
	if cfg.Session.ContinuationPolicy != "" {
		defaults.ContinuationPolicy = chat.ContinuationPolicy(cfg.Session.ContinuationPolicy)
	}
	if cfg.Session.SystemPrompt != "" {
		defaults.SystemPrompt = cfg.Session.SystemPrompt
	}
	return defaults
}
