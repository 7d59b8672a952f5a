// Package config provides the configuration schema and loader for the chat
// runtime: the local inference engine's fixed parameters, the transport
// channels to enable, the optional tools, and any external MCP servers.
package config

// Config is the root configuration structure for the chat runtime. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Transport TransportConfig `yaml:"transport"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// LogLevel is a validated slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ServerConfig holds process-wide logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: debug, info, warn, error.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics and health
	// endpoints listen on (e.g. ":9090"). Empty disables the HTTP server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// EngineConfig configures the local inference engine. Fields map directly
// onto llmengine.Config; see that package for the semantics of each.
type EngineConfig struct {
	// ModelPath is the GGUF weights file loaded at startup.
	ModelPath string `yaml:"model_path"`

	// SessionPath is where the warmed base-prompt session is persisted.
	SessionPath string `yaml:"session_path"`

	// GrammarPath optionally overrides the built-in GBNF grammar.
	GrammarPath string `yaml:"grammar_path"`

	// BasePromptPath points at the static system/instruction text warmed
	// once at startup.
	BasePromptPath string `yaml:"base_prompt_path"`

	NCtx          uint32 `yaml:"n_ctx"`
	NThreads      int32  `yaml:"n_threads"`
	NThreadsBatch int32  `yaml:"n_threads_batch"`
	NGpuLayers    int32  `yaml:"n_gpu_layers"`

	// MaxGenerationTokens hard-caps generation length independent of NCtx.
	MaxGenerationTokens int `yaml:"max_generation_tokens"`

	// TempMin/TempMax bound the per-call randomized sampling temperature.
	TempMin float32 `yaml:"temp_min"`
	TempMax float32 `yaml:"temp_max"`
}

// TransportConfig enables and configures the chat transport channels.
type TransportConfig struct {
	Discord   DiscordConfig   `yaml:"discord"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// DiscordConfig configures the Discord channel. The bot token and guild ID
// are never embedded in config directly — only the names of the environment
// variables that carry them.
type DiscordConfig struct {
	Enabled bool `yaml:"enabled"`

	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `yaml:"token_env"`

	// GuildIDEnv optionally names the environment variable holding a guild
	// ID to scope mention detection to. Empty means any guild.
	GuildIDEnv string `yaml:"guild_id_env"`
}

// WebSocketConfig configures the plain JSON-line chat websocket channel.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address the websocket server listens on.
	ListenAddr string `yaml:"listen_addr"`
}

// ToolsConfig configures the built-in tools available to the dispatcher.
type ToolsConfig struct {
	Weather WeatherToolConfig `yaml:"weather"`
	Lore    LoreToolConfig    `yaml:"lore"`
}

// WeatherToolConfig configures the GetWeather tool's outbound HTTP calls.
type WeatherToolConfig struct {
	// BaseURL overrides the weather API's default endpoint. Empty uses the
	// tool's built-in default.
	BaseURL string `yaml:"base_url"`
}

// LoreToolConfig configures the optional SearchLore tool. The tool is only
// registered when both PostgresDSNEnv and OpenAIAPIKeyEnv resolve to
// non-empty environment variables at bootstrap.
type LoreToolConfig struct {
	// PostgresDSNEnv names the environment variable holding the pgvector
	// knowledge store's connection string.
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`

	// OpenAIAPIKeyEnv names the environment variable holding the API key
	// used only to embed search queries.
	OpenAIAPIKeyEnv string `yaml:"openai_api_key_env"`

	// EmbeddingModel selects the OpenAI embedding model.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimensions must match the configured embedding model and the
	// knowledge table's vector column width.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// MCPConfig holds the list of external Model Context Protocol servers to
// connect to, supplementing the built-in tools.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single external MCP tool
// server. Field names and meanings mirror mcp.ServerConfig directly; this is
// the YAML-decodable shape converted into one at bootstrap.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism: "stdio" or
	// "streamable-http".
	Transport Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http.
	Command string `yaml:"command"`

	// URL is the endpoint address used when Transport is "streamable-http".
	// Ignored for stdio.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the
	// subprocess when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// Transport mirrors mcp.Transport's string values in a YAML-decodable form,
// avoiding an import cycle between config and mcp (an MCPServerConfig is
// converted into an mcp.ServerConfig at bootstrap, not decoded directly).
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}
