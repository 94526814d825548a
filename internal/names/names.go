// Package names provides display-name resolvers for agent ids: a static
// table, a store-backed resolver, and a Redis-caching wrapper.
package names

import (
	"fmt"
	"log/slog"
	"sync"
)

// Static resolves from a fixed in-memory table.
type Static map[string]string

// ResolveDisplayName implements timeline.NameResolver.
func (s Static) ResolveDisplayName(agentID string) (string, bool) {
	name, ok := s[agentID]
	if name == "" {
		return "", false
	}
	return name, ok
}

// AgentNamer supplies the full agent registry. The session store implements
// this.
type AgentNamer interface {
	AgentNames() (map[string]string, error)
}

// StoreResolver resolves display names from the agent registry, loading it
// once and serving lookups from memory. Call Refresh after registry writes.
type StoreResolver struct {
	namer  AgentNamer
	logger *slog.Logger

	mu     sync.RWMutex
	table  map[string]string
	loaded bool
}

func NewStoreResolver(namer AgentNamer, logger *slog.Logger) *StoreResolver {
	return &StoreResolver{namer: namer, logger: logger}
}

// ResolveDisplayName implements timeline.NameResolver. A failed registry
// load is logged and reported as a miss; resolution stays degraded rather
// than failing the caller.
func (r *StoreResolver) ResolveDisplayName(agentID string) (string, bool) {
	r.mu.RLock()
	if r.loaded {
		name, ok := r.table[agentID]
		r.mu.RUnlock()
		return name, ok && name != ""
	}
	r.mu.RUnlock()

	if err := r.Refresh(); err != nil {
		r.logger.Warn("agent registry load failed", "error", err)
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.table[agentID]
	return name, ok && name != ""
}

// Refresh re-reads the registry from the store.
func (r *StoreResolver) Refresh() error {
	table, err := r.namer.AgentNames()
	if err != nil {
		return fmt.Errorf("loading agent names: %w", err)
	}
	r.mu.Lock()
	r.table = table
	r.loaded = true
	r.mu.Unlock()
	return nil
}
