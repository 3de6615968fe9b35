package plugins

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// DumpPlugin is the interface any third-party extension implements to add
// extra sections to the debug monitor's dump without modifying ddscore
// source. Mirrors q_debmon.c's extensible section-print hooks: each
// plugin contributes one block of lines, ordered by Priority; DumpAll adds
// no per-plugin label.
//
// Example:
//
//	type LatencyHistogram struct{}
//	func (p *LatencyHistogram) Name() string { return "latency-histogram" }
//	func (p *LatencyHistogram) Version() string { return "1.0.0" }
//	func (p *LatencyHistogram) Priority() int { return 50 }
//	func (p *LatencyHistogram) Dump() ([]string, error) { ... }
type DumpPlugin interface {
	// Name returns the plugin's unique identifier.
	Name() string

	// Version returns the plugin version.
	Version() string

	// Priority determines dump order (lower = printed first).
	Priority() int

	// Dump returns the lines this plugin contributes to the monitor's
	// text dump.
	Dump() ([]string, error)
}

// PluginInfo describes a registered plugin (for API responses).
type PluginInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Priority int    `json:"priority"`
	Active   bool   `json:"active"`
}

// Registry manages debug-monitor dump plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins []DumpPlugin
	byName  map[string]DumpPlugin
	logger  *log.Logger
}

// NewRegistry creates a plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make([]DumpPlugin, 0),
		byName:  make(map[string]DumpPlugin),
		logger:  log.New(log.Writer(), "[plugins] ", log.LstdFlags),
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(plugin DumpPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[plugin.Name()]; exists {
		return fmt.Errorf("plugin %q already registered", plugin.Name())
	}

	r.plugins = append(r.plugins, plugin)
	r.byName[plugin.Name()] = plugin

	sort.Slice(r.plugins, func(i, j int) bool {
		return r.plugins[i].Priority() < r.plugins[j].Priority()
	})

	r.logger.Printf("registered plugin: %s v%s (priority=%d)",
		plugin.Name(), plugin.Version(), plugin.Priority())
	return nil
}

// Unregister removes a plugin.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, name)
	filtered := make([]DumpPlugin, 0)
	for _, p := range r.plugins {
		if p.Name() != name {
			filtered = append(filtered, p)
		}
	}
	r.plugins = filtered
}

// DumpAll runs every registered plugin in priority order and concatenates
// their output lines, logging but not failing on an individual plugin
// error so one broken plugin cannot blank the rest of the dump.
func (r *Registry) DumpAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lines []string
	for _, plugin := range r.plugins {
		out, err := plugin.Dump()
		if err != nil {
			r.logger.Printf("plugin %s dump failed: %v", plugin.Name(), err)
			continue
		}
		lines = append(lines, out...)
	}
	return lines
}

// List returns info about all registered plugins.
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, PluginInfo{
			Name:     p.Name(),
			Version:  p.Version(),
			Priority: p.Priority(),
			Active:   true,
		})
	}
	return infos
}

// Get returns a specific plugin by name.
func (r *Registry) Get(name string) (DumpPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
