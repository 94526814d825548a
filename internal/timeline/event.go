package timeline

import "time"

// EventType discriminates the timeline event union.
type EventType string

const (
	EventUserMessage   EventType = "user_message"
	EventAgentResponse EventType = "agent_response"
	EventHandoff       EventType = "handoff"
	EventToolCall      EventType = "tool_call"
	EventViolation     EventType = "violation"
)

// SecurityMonitor is the sentinel agent attributed to synthesized violation
// events. It is not a session participant and never appears in a
// reconstructed flow graph.
const SecurityMonitor = "Security Monitor"

// UserDisplayName is the fixed display name attributed to user_message
// events.
const UserDisplayName = "User"

// Event is one correlated occurrence in a session timeline.
type Event struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Agent      string        `json:"agent"`
	AgentID    string        `json:"agent_id,omitempty"`
	Content    string        `json:"content,omitempty"`
	Detections []Detection   `json:"detections,omitempty"`
	Details    *EventDetails `json:"details,omitempty"`
}

// EventDetails carries the variant-specific payload of an Event. Only the
// fields for the event's type are set.
type EventDetails struct {
	// handoff
	FromAgentID string `json:"from_agent_id,omitempty"`
	ToAgentID   string `json:"to_agent_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	HandoffType string `json:"handoff_type,omitempty"`

	// tool_call
	ToolName   string         `json:"tool_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     string         `json:"result,omitempty"`

	// violation
	DetectionID   string   `json:"detection_id,omitempty"`
	DetectionType string   `json:"detection_type,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Matches       []string `json:"matches,omitempty"`

	// OuterAgentID is set on agent_response and tool_call events when the
	// responder was reached via handoff. It records which agent the user's
	// turn originally resolved to, so graph construction can trace the full
	// path without re-correlating.
	OuterAgentID string `json:"outer_agent_id,omitempty"`
}

// NameResolver supplies display names for agent ids the transcript itself
// does not name. Implementations own any caching; callers only read.
type NameResolver interface {
	// ResolveDisplayName returns the display name for an agent id, and
	// whether one is known.
	ResolveDisplayName(agentID string) (string, bool)
}
