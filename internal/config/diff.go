package config

// ConfigDiff describes what changed between two configs. Only the log level
// and the MCP server list are tracked.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	MCPServersChanged bool
	MCPServerChanges []MCPServerDiff
}

// MCPServerDiff describes what changed for a single MCP server between two
// configs.
type MCPServerDiff struct {
	Name             string
	CommandChanged   bool
	URLChanged       bool
	TransportChanged bool
	EnvChanged       bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed in the log
// level and in the MCP server list. The log level can be applied without a
// restart; MCP server changes are reported but take effect only after one.
// The engine's model/session parameters and the enabled transport channels
// are not diffed here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{Name: name, Removed: true})
			d.MCPServersChanged = true
			continue
		}
		sd := diffMCPServer(name, oldSrv, newSrv)
		if sd.CommandChanged || sd.URLChanged || sd.TransportChanged || sd.EnvChanged {
			d.MCPServerChanges = append(d.MCPServerChanges, sd)
			d.MCPServersChanged = true
		}
	}

	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{Name: name, Added: true})
			d.MCPServersChanged = true
		}
	}

	return d
}

// diffMCPServer compares two MCP server configs with the same name.
func diffMCPServer(name string, old, new *MCPServerConfig) MCPServerDiff {
	sd := MCPServerDiff{Name: name}

	if old.Command != new.Command {
		sd.CommandChanged = true
	}
	if old.URL != new.URL {
		sd.URLChanged = true
	}
	if old.Transport != new.Transport {
		sd.TransportChanged = true
	}
	if !mapsEqual(old.Env, new.Env) {
		sd.EnvChanged = true
	}

	return sd
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
