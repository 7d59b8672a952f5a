package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
engine:
  model_path: /models/model.gguf
  session_path: resources/session.bin
  n_ctx: 4096
  n_threads: 4
  n_threads_batch: 4
  max_generation_tokens: 512
  temp_min: 0.2
  temp_max: 0.4
transport:
  discord:
    enabled: true
    token_env: DISCORD_BOT_TOKEN
  websocket:
    enabled: false
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}
	if cfg.Engine.ModelPath != "/models/model.gguf" {
		t.Errorf("ModelPath = %q, want /models/model.gguf", cfg.Engine.ModelPath)
	}
	if !cfg.Transport.Discord.Enabled {
		t.Error("expected Discord transport to be enabled")
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	bad := validYAML + "\nnonexistent_field: true\n"
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingModelPath(t *testing.T) {
	cfg := &config.Config{
		Engine:    config.EngineConfig{NCtx: 4096, MaxGenerationTokens: 512},
		Transport: config.TransportConfig{Discord: config.DiscordConfig{Enabled: true, TokenEnv: "T"}},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "engine.model_path is required") {
		t.Fatalf("expected model_path error, got %v", err)
	}
}

func TestValidate_NoTransportEnabled(t *testing.T) {
	cfg := &config.Config{
		Engine: config.EngineConfig{ModelPath: "m.gguf", NCtx: 4096, MaxGenerationTokens: 512},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "at least one transport channel must be enabled") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: "trace"},
		Engine:    config.EngineConfig{ModelPath: "m.gguf", NCtx: 4096, MaxGenerationTokens: 512},
		Transport: config.TransportConfig{Discord: config.DiscordConfig{Enabled: true, TokenEnv: "T"}},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.log_level") {
		t.Fatalf("expected log_level error, got %v", err)
	}
}

func TestValidate_MCPServerRequiresCommandOrURL(t *testing.T) {
	cfg := &config.Config{
		Engine:    config.EngineConfig{ModelPath: "m.gguf", NCtx: 4096, MaxGenerationTokens: 512},
		Transport: config.TransportConfig{Discord: config.DiscordConfig{Enabled: true, TokenEnv: "T"}},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "stdio-server", Transport: config.TransportStdio},
		}},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Fatalf("expected command-required error, got %v", err)
	}
}

func TestValidate_DuplicateMCPServerName(t *testing.T) {
	cfg := &config.Config{
		Engine:    config.EngineConfig{ModelPath: "m.gguf", NCtx: 4096, MaxGenerationTokens: 512},
		Transport: config.TransportConfig{Discord: config.DiscordConfig{Enabled: true, TokenEnv: "T"}},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "dup", Transport: config.TransportStdio, Command: "a"},
			{Name: "dup", Transport: config.TransportStdio, Command: "b"},
		}},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate-name error, got %v", err)
	}
}
