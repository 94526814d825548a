// Package timeline correlates raw session transcripts into one deduplicated,
// time-ordered sequence of typed events.
// Pure computation — no imports from other internal packages.
package timeline

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Transcript is the complete raw record of one session, fetched as a single
// snapshot. Optional identifiers reduce matching power when absent; they
// never fail correlation.
type Transcript struct {
	SessionID      string          `json:"session_id,omitempty"`
	ChatMessages   []ChatMessage   `json:"chat_messages"`
	AgentResponses []AgentResponse `json:"agent_responses"`
	Detections     []Detection     `json:"detections"`
}

// ChatMessage is one user or assistant turn in the raw conversation log.
type ChatMessage struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	MessageID  string    `json:"message_id"`
	RequestID  string    `json:"request_id,omitempty"`
	ResponseID string    `json:"response_id,omitempty"`
}

// AgentResponse is one assistant-side response record, carrying the tool
// calls and handoff that happened while producing it.
type AgentResponse struct {
	RequestID        string      `json:"request_id"`
	ResponseID       string      `json:"response_id,omitempty"`
	TraceID          string      `json:"trace_id,omitempty"`
	AgentID          string      `json:"agent_id"`
	AgentDisplayName string      `json:"agent_display_name,omitempty"`
	OuterAgentID     string      `json:"outer_agent_id,omitempty"`
	Response         string      `json:"response"`
	Timestamp        time.Time   `json:"timestamp"`
	Duration         float64     `json:"duration,omitempty"`
	ToolsUsed        []ToolUsage `json:"tools_used,omitempty"`
	Handoff          *Handoff    `json:"handoff,omitempty"`
}

// ToolUsage records a single tool invocation inside an agent response.
type ToolUsage struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     string         `json:"result,omitempty"`
}

// Handoff records a transfer of conversational responsibility between agents
// within one response cycle.
type Handoff struct {
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
	Reason      string `json:"reason,omitempty"`
	HandoffType string `json:"handoff_type,omitempty"`
}

// Detection is a security finding reported by an external scanner. A
// detection may reference the message it was found in through any subset of
// four identifier schemes; none is guaranteed present, consistent, or unique.
type Detection struct {
	ID            string   `json:"id"`
	Severity      string   `json:"severity"`
	DetectionType string   `json:"detection_type"`
	Context       string   `json:"context,omitempty"`
	Matches       []string `json:"matches,omitempty"`
	MessageID     string   `json:"message_id,omitempty"`
	RequestID     string   `json:"request_id,omitempty"`
	MessageIndex  *int     `json:"message_index,omitempty"`
	TraceID       string   `json:"trace_id,omitempty"`
}
