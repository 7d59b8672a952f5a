package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Engine.ModelPath == "" {
		errs = append(errs, fmt.Errorf("engine.model_path is required"))
	}
	if cfg.Engine.NCtx == 0 {
		errs = append(errs, fmt.Errorf("engine.n_ctx must be greater than zero"))
	}
	if cfg.Engine.MaxGenerationTokens <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_generation_tokens must be greater than zero"))
	}
	if cfg.Engine.TempMin < 0 || cfg.Engine.TempMax < cfg.Engine.TempMin {
		errs = append(errs, fmt.Errorf("engine.temp_min/temp_max must satisfy 0 <= temp_min <= temp_max"))
	}

	if cfg.Transport.Discord.Enabled && cfg.Transport.Discord.TokenEnv == "" {
		errs = append(errs, fmt.Errorf("transport.discord.token_env is required when transport.discord.enabled is true"))
	}
	if cfg.Transport.WebSocket.Enabled && cfg.Transport.WebSocket.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("transport.websocket.listen_addr is required when transport.websocket.enabled is true"))
	}
	if !cfg.Transport.Discord.Enabled && !cfg.Transport.WebSocket.Enabled {
		errs = append(errs, fmt.Errorf("at least one transport channel must be enabled"))
	}

	if cfg.Tools.Lore.PostgresDSNEnv != "" && cfg.Tools.Lore.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("tools.lore.embedding_dimensions must be set when tools.lore.postgres_dsn_env is configured"))
	}

	mcpNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := mcpNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			mcpNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
