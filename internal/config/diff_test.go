package config_test

import (
	"testing"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
)

func TestDiff_LogLevelChanged(t *testing.T) {
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged to be true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_NoChange(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "a", Transport: config.TransportStdio, Command: "cmd"},
		}},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.MCPServersChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_MCPServerAddedRemovedModified(t *testing.T) {
	old := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "keep", Transport: config.TransportStdio, Command: "old-cmd"},
		{Name: "gone", Transport: config.TransportStdio, Command: "x"},
	}}}
	new := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "keep", Transport: config.TransportStdio, Command: "new-cmd"},
		{Name: "fresh", Transport: config.TransportStreamableHTTP, URL: "http://x"},
	}}}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Fatal("expected MCPServersChanged to be true")
	}

	byName := make(map[string]config.MCPServerDiff, len(d.MCPServerChanges))
	for _, sd := range d.MCPServerChanges {
		byName[sd.Name] = sd
	}

	if kd, ok := byName["keep"]; !ok || !kd.CommandChanged {
		t.Errorf("expected 'keep' CommandChanged, got %+v (ok=%v)", kd, ok)
	}
	if gd, ok := byName["gone"]; !ok || !gd.Removed {
		t.Errorf("expected 'gone' Removed, got %+v (ok=%v)", gd, ok)
	}
	if fd, ok := byName["fresh"]; !ok || !fd.Added {
		t.Errorf("expected 'fresh' Added, got %+v (ok=%v)", fd, ok)
	}
}
