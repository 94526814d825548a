package flow

import (
	"log/slog"

	"github.com/agentsight/agentsight/internal/timeline"
)

// keyTable resolves inconsistent agent references onto one canonical key per
// agent. The table is built in a single pass over the whole sequence before
// any node or edge exists, so an id↔name association learned late still
// canonicalizes early display-name-only references.
type keyTable struct {
	idByName map[string]string
	nameByID map[string]string
	resolver timeline.NameResolver
	logger   *slog.Logger
	warned   map[string]bool
}

func buildKeyTable(events []timeline.Event, resolver timeline.NameResolver, logger *slog.Logger) *keyTable {
	kt := &keyTable{
		idByName: make(map[string]string),
		nameByID: make(map[string]string),
		resolver: resolver,
		logger:   logger,
		warned:   make(map[string]bool),
	}
	for i := range events {
		ev := &events[i]
		if ev.Type == timeline.EventViolation {
			continue
		}
		kt.learn(ev.AgentID, ev.Agent)
	}
	return kt
}

// learn records an id↔name association. First sighting wins on conflicts so
// the table stays deterministic.
func (kt *keyTable) learn(id, name string) {
	if id == "" || name == "" || name == id {
		return
	}
	if _, ok := kt.nameByID[id]; !ok {
		kt.nameByID[id] = name
	}
	if _, ok := kt.idByName[name]; !ok {
		kt.idByName[name] = id
	}
}

// key returns the canonical key for an agent reference: the id when present,
// else the id learned for the display name. A display name with no known id
// falls back to the name itself. That degraded mode keeps the graph usable
// and is logged once per name as a data-quality signal, not treated as an
// error.
func (kt *keyTable) key(id, name string) string {
	if id != "" {
		return id
	}
	if name == "" || name == timeline.UserDisplayName {
		return ""
	}
	if mapped, ok := kt.idByName[name]; ok {
		return mapped
	}
	if !kt.warned[name] {
		kt.warned[name] = true
		kt.logger.Warn("agent referenced by display name only, using name as key",
			"display_name", name)
	}
	return name
}

// display returns the best display name for a canonical key: the learned
// name, then the resolver, then the key itself.
func (kt *keyTable) display(key string) string {
	if name, ok := kt.nameByID[key]; ok {
		return name
	}
	if kt.resolver != nil {
		if name, ok := kt.resolver.ResolveDisplayName(key); ok && name != "" {
			return name
		}
	}
	return key
}
