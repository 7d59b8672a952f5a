package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/internal/transport"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

func TestBuildEmbedder_Unconfigured(t *testing.T) {
	t.Parallel()
	p, err := buildEmbedder(config.LoreToolConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil provider, got %v", p)
	}
}

func TestBuildEmbedder_EnvVarUnset(t *testing.T) {
	t.Parallel()
	p, err := buildEmbedder(config.LoreToolConfig{OpenAIAPIKeyEnv: "CHATBOT_TEST_UNSET_KEY_VAR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil provider, got %v", p)
	}
}

func TestBuildEmbedder_Configured(t *testing.T) {
	t.Setenv("CHATBOT_TEST_API_KEY", "sk-test-key")
	p, err := buildEmbedder(config.LoreToolConfig{OpenAIAPIKeyEnv: "CHATBOT_TEST_API_KEY", EmbeddingModel: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil provider")
	}
}

func TestBuildChannels_NoneEnabled(t *testing.T) {
	t.Parallel()
	registry := transport.NewRegistry()
	channels, err := buildChannels(config.TransportConfig{}, registry, nopAct, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("expected no channels, got %d", len(channels))
	}
}

func TestBuildChannels_WebSocketEnabled(t *testing.T) {
	t.Parallel()
	registry := transport.NewRegistry()
	cfg := config.TransportConfig{
		WebSocket: config.WebSocketConfig{Enabled: true, ListenAddr: ":0"},
	}
	channels, err := buildChannels(cfg, registry, nopAct, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(channels))
	}

	// The websocket channel must have registered itself under ChannelWebSocket.
	id := chattypes.UserID{Channel: chattypes.ChannelWebSocket, ExternalID: "conn-1"}.String()
	if err := registry.Send(context.Background(), id, "hi"); err == nil {
		t.Fatal("expected an error sending to a never-connected id, got nil")
	}
}

func TestBuildChannels_DiscordMissingToken(t *testing.T) {
	t.Parallel()
	registry := transport.NewRegistry()
	cfg := config.TransportConfig{
		Discord: config.DiscordConfig{Enabled: true, TokenEnv: "CHATBOT_TEST_UNSET_DISCORD_TOKEN"},
	}
	if _, err := buildChannels(cfg, registry, nopAct, slog.Default()); err == nil {
		t.Fatal("expected an error when the Discord token env var is unset")
	}
}

func TestBuildMetricsServer_EmptyAddr(t *testing.T) {
	t.Parallel()
	if s := buildMetricsServer("", nil); s != nil {
		t.Fatalf("expected nil server, got %v", s)
	}
}

func TestBuildMetricsServer_WithAddr(t *testing.T) {
	t.Parallel()
	s := buildMetricsServer(":9999", nil)
	if s == nil {
		t.Fatal("expected a non-nil server")
	}
	if s.Addr != ":9999" {
		t.Errorf("Addr = %q, want %q", s.Addr, ":9999")
	}
}

func nopAct(_ context.Context, _ string, _ chattypes.Action) {}
