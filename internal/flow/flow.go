// Package flow infers the logical communication structure of a correlated
// event sequence: who participated, which links carried traffic, and which
// links a replay cursor lights up.
package flow

import (
	"log/slog"
	"sort"

	"github.com/agentsight/agentsight/internal/timeline"
)

// Role classifies a participant node.
type Role string

const (
	RoleUser        Role = "user"
	RoleOuterAgent  Role = "outer_agent"
	RoleActualAgent Role = "actual_agent"
	RoleTool        Role = "tool"
)

// UserKey is the fixed participant key for the human user.
const UserKey = "user"

// toolKeyPrefix namespaces tool participant keys away from agent ids.
const toolKeyPrefix = "tool:"

// Participant is one node in the reconstructed graph, keyed by the agent's
// canonical identity.
type Participant struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	FirstEvent  int    `json:"first_event"`
}

// EdgeType classifies an edge by the participants it joins.
type EdgeType string

const (
	EdgeUserAgent  EdgeType = "user-agent"
	EdgeAgentAgent EdgeType = "agent-agent"
	EdgeAgentTool  EdgeType = "agent-tool"
)

// Direction tags one occurrence on an edge.
type Direction string

const (
	DirRequest  Direction = "request"
	DirResponse Direction = "response"
)

// Occurrence records one event touching an edge.
type Occurrence struct {
	EventIndex int       `json:"event_index"`
	Direction  Direction `json:"direction"`
}

// EdgeKey identifies an edge. Bidirectional edge types are normalized so
// both orientations collapse onto one record; tool edges keep their
// caller→tool orientation.
type EdgeKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Edge is one communication link with its accumulated occurrences, in
// event order.
type Edge struct {
	Key         EdgeKey      `json:"key"`
	Type        EdgeType     `json:"type"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Directional bool         `json:"directional"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Flow is the reconstructed communication graph for one event sequence.
// Edges keep first-seen order so repeated reconstruction is identical.
type Flow struct {
	Participants      map[string]*Participant `json:"participants"`
	Edges             []*Edge                 `json:"edges"`
	PrimaryAgent      string                  `json:"primary_agent,omitempty"`
	TotalParticipants int                     `json:"total_participants"`
	TotalEdges        int                     `json:"total_edges"`

	edgeIndex map[EdgeKey]*Edge
	byEvent   map[int][]EdgeKey
	names     *keyTable
}

// Option configures a Reconstruct call.
type Option func(*reconstructor)

// WithLogger routes data-quality warnings to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *reconstructor) { r.logger = l }
}

// WithNameResolver supplies display names for canonical keys no event named.
func WithNameResolver(nr timeline.NameResolver) Option {
	return func(r *reconstructor) { r.resolver = nr }
}

type reconstructor struct {
	logger   *slog.Logger
	resolver timeline.NameResolver
}

// Reconstruct scans an ordered event sequence and builds the participant set
// and edge list. Violation events are the monitor's own annotations and
// contribute nothing to the graph. The result is identical for identical
// input.
func Reconstruct(events []timeline.Event, opts ...Option) *Flow {
	r := &reconstructor{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	f := &Flow{
		Participants: make(map[string]*Participant),
		edgeIndex:    make(map[EdgeKey]*Edge),
		byEvent:      make(map[int][]EdgeKey),
		names:        buildKeyTable(events, r.resolver, r.logger),
	}
	f.PrimaryAgent = f.primaryAgent(events)

	for i := range events {
		ev := &events[i]
		switch ev.Type {
		case timeline.EventUserMessage:
			f.ensureUser(i)
			outer := f.turnAgentFor(events, i)
			if outer == "" {
				continue
			}
			f.ensureAgent(outer, RoleOuterAgent, i)
			f.record(unorderedKey(UserKey, outer), EdgeUserAgent, UserKey, outer, false, i, DirRequest)

		case timeline.EventAgentResponse:
			agent := f.names.key(ev.AgentID, ev.Agent)
			if agent == "" {
				continue
			}
			outer := agent
			if o := turnOuter(ev); o != "" {
				outer = f.names.key(o, "")
			}
			f.ensureUser(i)
			f.ensureAgent(outer, RoleOuterAgent, i)
			f.record(unorderedKey(UserKey, outer), EdgeUserAgent, UserKey, outer, false, i, DirResponse)
			if agent != outer {
				f.ensureAgent(agent, RoleActualAgent, i)
				f.record(unorderedKey(outer, agent), EdgeAgentAgent, outer, agent, false, i, DirResponse)
			}

		case timeline.EventHandoff:
			if ev.Details == nil {
				continue
			}
			from := f.names.key(ev.Details.FromAgentID, ev.Agent)
			to := f.names.key(ev.Details.ToAgentID, "")
			if from == "" || to == "" || from == to {
				continue
			}
			f.ensureAgent(from, RoleOuterAgent, i)
			f.ensureAgent(to, RoleActualAgent, i)
			f.record(unorderedKey(from, to), EdgeAgentAgent, from, to, false, i, DirRequest)

		case timeline.EventToolCall:
			if ev.Details == nil || ev.Details.ToolName == "" {
				continue
			}
			agent := f.names.key(ev.AgentID, ev.Agent)
			if agent == "" {
				continue
			}
			role := RoleOuterAgent
			if ev.Details.OuterAgentID != "" {
				role = RoleActualAgent
			}
			f.ensureAgent(agent, role, i)
			tool := f.ensureTool(ev.Details.ToolName, i)
			// Tool edges are strictly one-way: tools never initiate.
			f.record(EdgeKey{A: agent, B: tool}, EdgeAgentTool, agent, tool, true, i, DirRequest)
		}
	}

	f.TotalParticipants = len(f.Participants)
	f.TotalEdges = len(f.Edges)
	return f
}

// ActiveEdges reports which edges a replay cursor at currentIndex lights up:
// every edge with an occurrence at that index, plus, for tool-call cursors,
// the user → outer agent → responder → tool path the call travelled. Only
// edges that exist in the graph are returned; the path trace never invents
// links.
func (f *Flow) ActiveEdges(events []timeline.Event, currentIndex int) map[EdgeKey]bool {
	active := make(map[EdgeKey]bool)
	if currentIndex < 0 || currentIndex >= len(events) {
		return active
	}
	for _, key := range f.byEvent[currentIndex] {
		active[key] = true
	}

	ev := &events[currentIndex]
	if ev.Type != timeline.EventToolCall || ev.Details == nil || ev.Details.ToolName == "" {
		return active
	}

	agent := f.names.key(ev.AgentID, ev.Agent)
	outer := agent
	if ev.Details.OuterAgentID != "" {
		outer = f.names.key(ev.Details.OuterAgentID, "")
	}
	f.markExisting(active, unorderedKey(UserKey, outer))
	if outer != agent {
		f.markExisting(active, unorderedKey(outer, agent))
	}
	f.markExisting(active, EdgeKey{A: agent, B: toolKeyPrefix + ev.Details.ToolName})
	return active
}

// Edge returns the edge stored under key, if any.
func (f *Flow) Edge(key EdgeKey) (*Edge, bool) {
	e, ok := f.edgeIndex[key]
	return e, ok
}

// SortedParticipants lists participants by first appearance, then key, so
// rendered output is stable.
func (f *Flow) SortedParticipants() []*Participant {
	out := make([]*Participant, 0, len(f.Participants))
	for _, p := range f.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstEvent != out[j].FirstEvent {
			return out[i].FirstEvent < out[j].FirstEvent
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// primaryAgent finds the turn-outer agent of the chronologically earliest
// agent_response. Events arrive pre-sorted, so the first hit wins.
func (f *Flow) primaryAgent(events []timeline.Event) string {
	for i := range events {
		ev := &events[i]
		if ev.Type != timeline.EventAgentResponse {
			continue
		}
		if o := turnOuter(ev); o != "" {
			return f.names.key(o, "")
		}
		return f.names.key(ev.AgentID, ev.Agent)
	}
	return ""
}

// turnAgentFor resolves a user message to the outer agent answering its
// turn: the first agent_response before the next user message, taking the
// recorded outer agent when the responder was reached via handoff. Returns
// "" for dangling turns.
func (f *Flow) turnAgentFor(events []timeline.Event, userIndex int) string {
	for j := userIndex + 1; j < len(events); j++ {
		ev := &events[j]
		switch ev.Type {
		case timeline.EventUserMessage:
			return ""
		case timeline.EventAgentResponse:
			if o := turnOuter(ev); o != "" {
				return f.names.key(o, "")
			}
			return f.names.key(ev.AgentID, ev.Agent)
		}
	}
	return ""
}

// turnOuter returns the recorded outer agent id for a response reached via
// handoff, or "" when the responder answered directly.
func turnOuter(ev *timeline.Event) string {
	if ev.Details != nil && ev.Details.OuterAgentID != "" {
		return ev.Details.OuterAgentID
	}
	return ""
}

func (f *Flow) ensureUser(eventIndex int) {
	f.ensure(UserKey, timeline.UserDisplayName, RoleUser, eventIndex)
}

func (f *Flow) ensureAgent(key string, role Role, eventIndex int) {
	f.ensure(key, f.names.display(key), role, eventIndex)
}

func (f *Flow) ensureTool(name string, eventIndex int) string {
	key := toolKeyPrefix + name
	f.ensure(key, name, RoleTool, eventIndex)
	return key
}

// ensure creates the participant on first sight. An existing actual agent is
// promoted to outer when a user turn later resolves to it directly; the
// reverse never happens.
func (f *Flow) ensure(key, display string, role Role, eventIndex int) {
	p, ok := f.Participants[key]
	if !ok {
		f.Participants[key] = &Participant{
			Key:         key,
			DisplayName: display,
			Role:        role,
			FirstEvent:  eventIndex,
		}
		return
	}
	if role == RoleOuterAgent && p.Role == RoleActualAgent {
		p.Role = RoleOuterAgent
	}
}

func (f *Flow) record(key EdgeKey, typ EdgeType, from, to string, directional bool, eventIndex int, dir Direction) {
	e, ok := f.edgeIndex[key]
	if !ok {
		e = &Edge{Key: key, Type: typ, From: from, To: to, Directional: directional}
		f.edgeIndex[key] = e
		f.Edges = append(f.Edges, e)
	}
	e.Occurrences = append(e.Occurrences, Occurrence{EventIndex: eventIndex, Direction: dir})
	f.byEvent[eventIndex] = append(f.byEvent[eventIndex], key)
}

func (f *Flow) markExisting(active map[EdgeKey]bool, key EdgeKey) {
	if _, ok := f.edgeIndex[key]; ok {
		active[key] = true
	}
}

// unorderedKey normalizes a bidirectional pair so both orientations map to
// the same edge record.
func unorderedKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}
