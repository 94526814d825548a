package timeline

import (
	"fmt"
	"sort"
	"time"
)

// Synthetic offsets applied to assistant-side events within one turn. The
// correlator imposes its own sub-event ordering instead of trusting source
// timestamp precision: handoff strictly before any tool call, tool calls in
// invocation order, all strictly before the response they belong to.
const (
	handoffOffset  = -2 * time.Millisecond
	toolBaseOffset = -1 * time.Millisecond
	toolStep       = time.Microsecond
	violationStep  = time.Microsecond
)

// Option configures a Correlate call.
type Option func(*correlator)

// WithNameResolver supplies a display-name lookup for agent ids the
// transcript itself does not name.
func WithNameResolver(r NameResolver) Option {
	return func(c *correlator) { c.resolver = r }
}

// Correlate turns a raw transcript into one deduplicated, time-ordered
// sequence of typed events. It is total for well-typed input: missing or
// inconsistent identifiers reduce matching power, they never fail the call.
// Given the same transcript, the result is identical across calls.
func Correlate(t *Transcript, opts ...Option) []Event {
	c := &correlator{}
	for _, opt := range opts {
		opt(c)
	}
	if t == nil {
		return []Event{}
	}
	c.index(t)

	base := c.baseEvents(t)
	sort.SliceStable(base, func(i, j int) bool {
		return base[i].Timestamp.Before(base[j].Timestamp)
	})
	return weaveViolations(base)
}

// correlator holds the per-call lookup indexes. Built once per Correlate and
// discarded; transcripts are independent.
type correlator struct {
	resolver NameResolver

	respByRequest map[string]*AgentResponse
	respByTrace   map[string]*AgentResponse
	usedResp      map[*AgentResponse]bool

	detections   []Detection
	detByMessage map[string][]int
	detByRequest map[string][]int
	detByIndex   map[int][]int
	detByTrace   map[string][]int

	claimed  []bool
	seenID   map[string]bool
	seenPair map[detPair]bool
}

// detPair is the secondary detection identity: two detections reporting the
// same type on the same message are the same finding even under distinct ids.
type detPair struct {
	messageID     string
	detectionType string
}

func (c *correlator) index(t *Transcript) {
	c.respByRequest = make(map[string]*AgentResponse, len(t.AgentResponses))
	c.respByTrace = make(map[string]*AgentResponse, len(t.AgentResponses))
	c.usedResp = make(map[*AgentResponse]bool, len(t.AgentResponses))
	for i := range t.AgentResponses {
		r := &t.AgentResponses[i]
		// First write wins on duplicate keys so matching stays deterministic.
		if r.RequestID != "" {
			if _, ok := c.respByRequest[r.RequestID]; !ok {
				c.respByRequest[r.RequestID] = r
			}
		}
		if r.TraceID != "" {
			if _, ok := c.respByTrace[r.TraceID]; !ok {
				c.respByTrace[r.TraceID] = r
			}
		}
		if r.ResponseID != "" {
			if _, ok := c.respByTrace[r.ResponseID]; !ok {
				c.respByTrace[r.ResponseID] = r
			}
		}
	}

	c.detections = t.Detections
	c.claimed = make([]bool, len(t.Detections))
	c.seenID = make(map[string]bool, len(t.Detections))
	c.seenPair = make(map[detPair]bool, len(t.Detections))
	c.detByMessage = make(map[string][]int)
	c.detByRequest = make(map[string][]int)
	c.detByIndex = make(map[int][]int)
	c.detByTrace = make(map[string][]int)
	for i := range t.Detections {
		d := &t.Detections[i]
		if d.MessageID != "" {
			c.detByMessage[d.MessageID] = append(c.detByMessage[d.MessageID], i)
		}
		if d.RequestID != "" {
			c.detByRequest[d.RequestID] = append(c.detByRequest[d.RequestID], i)
		}
		if d.MessageIndex != nil {
			c.detByIndex[*d.MessageIndex] = append(c.detByIndex[*d.MessageIndex], i)
		}
		if d.TraceID != "" {
			c.detByTrace[d.TraceID] = append(c.detByTrace[d.TraceID], i)
		}
	}
}

// baseEvents walks the chat log in order and emits user_message events plus
// the handoff, tool_call and agent_response events of each answered turn.
// Assistant-role rows are skipped: their content is already represented by
// the matched agent_response records.
func (c *correlator) baseEvents(t *Transcript) []Event {
	events := make([]Event, 0, len(t.ChatMessages))
	for i := range t.ChatMessages {
		m := &t.ChatMessages[i]
		if m.Role != RoleUser {
			continue
		}
		events = append(events, Event{
			ID:         userEventID(m, i),
			Type:       EventUserMessage,
			Timestamp:  m.Timestamp,
			Agent:      UserDisplayName,
			Content:    m.Content,
			Detections: c.claimDetections(c.candidatesForMessage(m, i)),
		})

		resp := c.matchResponse(m)
		if resp == nil || c.usedResp[resp] {
			// Dangling turn. The user event stands alone.
			continue
		}
		c.usedResp[resp] = true
		events = append(events, c.turnEvents(resp, i, m.Timestamp)...)
	}
	return events
}

// matchResponse finds the agent response answering a user message: primary
// lookup by request id, then the trace index probed with the message's
// response and message ids. Some producers stamp the response's trace with
// the user message's own identifier.
func (c *correlator) matchResponse(m *ChatMessage) *AgentResponse {
	if m.RequestID != "" {
		if r, ok := c.respByRequest[m.RequestID]; ok {
			return r
		}
	}
	for _, key := range []string{m.ResponseID, m.MessageID} {
		if key == "" {
			continue
		}
		if r, ok := c.respByTrace[key]; ok {
			return r
		}
	}
	return nil
}

// turnEvents synthesizes the assistant-side events of one answered turn:
// handoff (if any), one tool_call per tool invocation, then the response.
func (c *correlator) turnEvents(resp *AgentResponse, msgOrdinal int, userTS time.Time) []Event {
	anchor := resp.Timestamp
	if anchor.IsZero() {
		anchor = userTS
	}
	respID := responseEventID(resp, msgOrdinal)

	// The outer agent is whoever the user's turn resolved to before any
	// handoff redirected it.
	outer := resp.OuterAgentID
	if outer == "" && resp.Handoff != nil {
		outer = resp.Handoff.FromAgentID
	}
	var reached *EventDetails
	if outer != "" && outer != resp.AgentID {
		reached = &EventDetails{OuterAgentID: outer}
	}

	events := make([]Event, 0, 2+len(resp.ToolsUsed))
	if h := resp.Handoff; h != nil {
		events = append(events, Event{
			ID:        "handoff-" + respID,
			Type:      EventHandoff,
			Timestamp: anchor.Add(handoffOffset),
			Agent:     c.displayName(h.FromAgentID, ""),
			AgentID:   h.FromAgentID,
			Content:   h.Reason,
			Details: &EventDetails{
				FromAgentID: h.FromAgentID,
				ToAgentID:   h.ToAgentID,
				Reason:      h.Reason,
				HandoffType: h.HandoffType,
			},
		})
	}
	for ti := range resp.ToolsUsed {
		tool := &resp.ToolsUsed[ti]
		details := &EventDetails{
			ToolName:   tool.Name,
			Parameters: tool.Parameters,
			Result:     tool.Result,
		}
		if reached != nil {
			details.OuterAgentID = outer
		}
		events = append(events, Event{
			ID:        fmt.Sprintf("tool-%s-%d", respID, ti),
			Type:      EventToolCall,
			Timestamp: anchor.Add(toolBaseOffset + time.Duration(ti)*toolStep),
			Agent:     c.displayName(resp.AgentID, resp.AgentDisplayName),
			AgentID:   resp.AgentID,
			Details:   details,
		})
	}
	events = append(events, Event{
		ID:         respID,
		Type:       EventAgentResponse,
		Timestamp:  anchor,
		Agent:      c.displayName(resp.AgentID, resp.AgentDisplayName),
		AgentID:    resp.AgentID,
		Content:    resp.Response,
		Detections: c.claimDetections(c.candidatesForResponse(resp, msgOrdinal)),
		Details:    reached,
	})
	return events
}

// candidatesForMessage unions the four detection indexes probed with a user
// message's identifiers and its ordinal position. Probe order is fixed so
// attachment order is deterministic.
func (c *correlator) candidatesForMessage(m *ChatMessage, ordinal int) []int {
	u := newUnion()
	if m.MessageID != "" {
		u.add(c.detByMessage[m.MessageID])
	}
	if m.RequestID != "" {
		u.add(c.detByRequest[m.RequestID])
	}
	u.add(c.detByIndex[ordinal])
	for _, key := range []string{m.MessageID, m.RequestID, m.ResponseID} {
		if key != "" {
			u.add(c.detByTrace[key])
		}
	}
	return u.out
}

// candidatesForResponse resolves detections against a response the same way:
// the message index under the response id, the request index, the assistant
// row's ordinal position (one past the user message), then the trace index.
func (c *correlator) candidatesForResponse(r *AgentResponse, msgOrdinal int) []int {
	u := newUnion()
	if r.ResponseID != "" {
		u.add(c.detByMessage[r.ResponseID])
	}
	if r.RequestID != "" {
		u.add(c.detByRequest[r.RequestID])
	}
	u.add(c.detByIndex[msgOrdinal+1])
	for _, key := range []string{r.TraceID, r.ResponseID} {
		if key != "" {
			u.add(c.detByTrace[key])
		}
	}
	return u.out
}

// claimDetections filters candidate indexes through the cross-event rules:
// each detection attaches at most once, and two detections sharing an id or a
// (message_id, detection_type) pair count as the same finding. Losing
// candidates are consumed, not deferred.
func (c *correlator) claimDetections(candidates []int) []Detection {
	var out []Detection
	for _, i := range candidates {
		if c.claimed[i] {
			continue
		}
		c.claimed[i] = true
		d := c.detections[i]
		if d.ID != "" && c.seenID[d.ID] {
			continue
		}
		pair := detPair{messageID: d.MessageID, detectionType: d.DetectionType}
		if d.MessageID != "" && c.seenPair[pair] {
			continue
		}
		if d.ID != "" {
			c.seenID[d.ID] = true
		}
		if d.MessageID != "" {
			c.seenPair[pair] = true
		}
		out = append(out, d)
	}
	return out
}

// displayName prefers the transcript's own display name, then the resolver,
// then the raw id.
func (c *correlator) displayName(agentID, display string) string {
	if display != "" {
		return display
	}
	if c.resolver != nil && agentID != "" {
		if name, ok := c.resolver.ResolveDisplayName(agentID); ok && name != "" {
			return name
		}
	}
	return agentID
}

// weaveViolations expands attached detections into standalone violation
// events placed directly behind their parent. Offsets grow one microsecond
// per detection but never cross the next base event's timestamp, so the
// woven sequence stays sorted.
func weaveViolations(base []Event) []Event {
	extra := 0
	for i := range base {
		extra += len(base[i].Detections)
	}
	out := make([]Event, 0, len(base)+extra)
	for i := range base {
		out = append(out, base[i])
		next, hasNext := time.Time{}, false
		if i+1 < len(base) {
			next, hasNext = base[i+1].Timestamp, true
		}
		for j, d := range base[i].Detections {
			ts := base[i].Timestamp.Add(time.Duration(j+1) * violationStep)
			if hasNext && ts.After(next) {
				ts = next
			}
			out = append(out, violationEvent(&base[i], d, j, ts))
		}
	}
	return out
}

func violationEvent(parent *Event, d Detection, ordinal int, ts time.Time) Event {
	id := "violation-" + d.ID
	if d.ID == "" {
		id = fmt.Sprintf("violation-%s-%d", parent.ID, ordinal)
	}
	return Event{
		ID:        id,
		Type:      EventViolation,
		Timestamp: ts,
		Agent:     SecurityMonitor,
		Content:   d.Context,
		Details: &EventDetails{
			DetectionID:   d.ID,
			DetectionType: d.DetectionType,
			Severity:      d.Severity,
			Matches:       d.Matches,
		},
	}
}

func userEventID(m *ChatMessage, ordinal int) string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return fmt.Sprintf("msg-%d", ordinal)
}

func responseEventID(r *AgentResponse, msgOrdinal int) string {
	switch {
	case r.ResponseID != "":
		return r.ResponseID
	case r.RequestID != "":
		return "resp-" + r.RequestID
	default:
		return fmt.Sprintf("resp-%d", msgOrdinal)
	}
}

// union collects detection indexes from successive probes, deduplicating
// while preserving first-probe order.
type union struct {
	seen map[int]bool
	out  []int
}

func newUnion() *union {
	return &union{seen: make(map[int]bool)}
}

func (u *union) add(idxs []int) {
	for _, i := range idxs {
		if !u.seen[i] {
			u.seen[i] = true
			u.out = append(u.out, i)
		}
	}
}
