package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/MrWong99/glyphoxa-chat/internal/mcp"
	"github.com/MrWong99/glyphoxa-chat/internal/mcp/mock"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToolName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind chattypes.ToolCallKind
		want string
	}{
		{chattypes.ToolGetWeather, "get_weather"},
		{chattypes.ToolRollDice, "roll"},
		{chattypes.ToolSearchLore, "search_lore"},
		{chattypes.ToolCallKind("made_up"), "made_up"},
	}
	for _, tt := range tests {
		if got := toolName(tt.kind); got != tt.want {
			t.Errorf("toolName(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestToolArgs(t *testing.T) {
	t.Parallel()

	t.Run("weather", func(t *testing.T) {
		out, err := toolArgs(chattypes.ToolCall{Kind: chattypes.ToolGetWeather, Location: "Paris"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Location string `json:"location"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Location != "Paris" {
			t.Errorf("Location = %q, want Paris", got.Location)
		}
	})

	t.Run("dice", func(t *testing.T) {
		out, err := toolArgs(chattypes.ToolCall{Kind: chattypes.ToolRollDice, Expression: "2d6+1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Expression != "2d6+1" {
			t.Errorf("Expression = %q, want 2d6+1", got.Expression)
		}
	})

	t.Run("lore", func(t *testing.T) {
		out, err := toolArgs(chattypes.ToolCall{Kind: chattypes.ToolSearchLore, Query: "dragons"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Query != "dragons" {
			t.Errorf("Query = %q, want dragons", got.Query)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := toolArgs(chattypes.ToolCall{Kind: chattypes.ToolCallKind("bogus")})
		if err == nil {
			t.Error("expected error for unknown tool call kind, got nil")
		}
	})
}

func TestDispatcher_RunTool(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		host := &mock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "sunny, 21C"}}
		d := &Dispatcher{host: host}

		got := d.RunTool(context.Background(), chattypes.ToolCall{Kind: chattypes.ToolGetWeather, Location: "Paris"})
		if got != "sunny, 21C" {
			t.Errorf("RunTool = %q, want %q", got, "sunny, 21C")
		}
		if host.CallCount("ExecuteTool") != 1 {
			t.Errorf("ExecuteTool called %d times, want 1", host.CallCount("ExecuteTool"))
		}
	})

	t.Run("transport error is folded into text", func(t *testing.T) {
		host := &mock.Host{ExecuteToolErr: context.DeadlineExceeded}
		d := &Dispatcher{host: host, logger: discardLogger()}

		got := d.RunTool(context.Background(), chattypes.ToolCall{Kind: chattypes.ToolRollDice, Expression: "2d6"})
		if got != `Tool "roll" is currently unavailable.` {
			t.Errorf("RunTool = %q, want unavailable message", got)
		}
	})

	t.Run("unknown tool kind never calls host", func(t *testing.T) {
		host := &mock.Host{}
		d := &Dispatcher{host: host, logger: discardLogger()}

		got := d.RunTool(context.Background(), chattypes.ToolCall{Kind: chattypes.ToolCallKind("bogus")})
		if got == "" {
			t.Error("expected a non-empty error message")
		}
		if host.CallCount("ExecuteTool") != 0 {
			t.Errorf("ExecuteTool called %d times, want 0", host.CallCount("ExecuteTool"))
		}
	})
}

func TestDispatcher_Close_NoLore(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{host: &mock.Host{}}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
