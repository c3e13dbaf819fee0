package bridge

import (
	"encoding/json"
	"sort"
	"strings"
)

// Registry holds protocol adapters keyed by name and alias. Registration
// order is preserved so detection is deterministic: adapters are probed in
// the order they were registered and the first CanHandle match wins, which
// matters when two adapters' sniff heuristics overlap on malformed input.
type Registry struct {
	byName  map[string]Adapter
	ordered []Adapter
}

// NewRegistry builds an empty registry. Construct one at process start and
// pass it by reference; there is no package-level instance.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Adapter)}
}

// NewDefaultRegistry registers the three built-in protocol adapters with
// their conventional aliases.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewACPAdapter(), "openai", "stripe-acp")
	r.Register(NewUCPAdapter(), "universal", "intent")
	r.Register(NewX402Adapter(), "http-402", "crypto")
	return r
}

// Register adds an adapter under its protocol name plus any aliases. Aliases
// map to the same instance; re-registering a name replaces the mapping but
// keeps the original detection position.
func (r *Registry) Register(adapter Adapter, aliases ...string) {
	if adapter == nil {
		return
	}
	name := normalizeProtocolName(adapter.ProtocolName())
	if _, exists := r.byName[name]; !exists {
		r.ordered = append(r.ordered, adapter)
	}
	r.byName[name] = adapter
	for _, alias := range aliases {
		alias = normalizeProtocolName(alias)
		if alias != "" {
			r.byName[alias] = adapter
		}
	}
}

// Get resolves a protocol name or alias to its adapter.
func (r *Registry) Get(name string) (Adapter, bool) {
	adapter, ok := r.byName[normalizeProtocolName(name)]
	return adapter, ok
}

// Detect returns the first registered adapter whose CanHandle accepts the
// payload, in registration order.
func (r *Registry) Detect(raw json.RawMessage) (Adapter, bool) {
	for _, adapter := range r.ordered {
		if adapter.CanHandle(raw) {
			return adapter, true
		}
	}
	return nil, false
}

// Protocols lists the registered primary protocol names, sorted.
func (r *Registry) Protocols() []string {
	names := make([]string, 0, len(r.ordered))
	for _, adapter := range r.ordered {
		names = append(names, adapter.ProtocolName())
	}
	sort.Strings(names)
	return names
}

// Aliases lists every registered name and alias, sorted.
func (r *Registry) Aliases() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProtocolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
