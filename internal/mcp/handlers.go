package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

// ListSessionsInput defines filters for the list_sessions tool.
type ListSessionsInput struct {
	Severity       string `json:"severity,omitempty" jsonschema:"only sessions whose worst detection has this severity (low/medium/high/critical)"`
	Source         string `json:"source,omitempty" jsonschema:"only sessions imported from this source (watcher/api/cli)"`
	Since          string `json:"since,omitempty" jsonschema:"RFC3339 lower bound on import time"`
	WithDetections bool   `json:"with_detections,omitempty" jsonschema:"only sessions with at least one detection"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of sessions to return (default 50)"`
}

// ListSessionsOutput carries the matching session records.
type ListSessionsOutput struct {
	Sessions []session.Record `json:"sessions"`
	Count    int              `json:"count"`
}

// SessionInput selects one stored session by id.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"id of an imported session"`
}

// TimelineOutput is the correlated event sequence for one session.
type TimelineOutput struct {
	SessionID string           `json:"session_id"`
	Events    []timeline.Event `json:"events"`
	Count     int              `json:"count"`
}

// FlowOutput is the reconstructed communication graph for one session.
type FlowOutput struct {
	SessionID         string              `json:"session_id"`
	Participants      []*flow.Participant `json:"participants"`
	Edges             []*flow.Edge        `json:"edges"`
	PrimaryAgent      string              `json:"primary_agent,omitempty"`
	TotalParticipants int                 `json:"total_participants"`
	TotalEdges        int                 `json:"total_edges"`
}

// ScanContentInput defines parameters for the scan_content tool.
type ScanContentInput struct {
	Content string `json:"content" jsonschema:"message content to scan"`
}

func (s *Server) handleListSessions(ctx context.Context, req *mcpsdk.CallToolRequest, input ListSessionsInput) (*mcpsdk.CallToolResult, ListSessionsOutput, error) {
	recs, err := s.store.List(session.QueryOpts{
		Severity:       input.Severity,
		Source:         input.Source,
		Since:          input.Since,
		WithDetections: input.WithDetections,
		Limit:          input.Limit,
	})
	if err != nil {
		return nil, ListSessionsOutput{}, fmt.Errorf("list sessions: %w", err)
	}
	return nil, ListSessionsOutput{Sessions: recs, Count: len(recs)}, nil
}

func (s *Server) handleGetTimeline(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, TimelineOutput, error) {
	events, err := s.timelineFor(input.SessionID)
	if err != nil {
		return nil, TimelineOutput{}, err
	}
	return nil, TimelineOutput{
		SessionID: input.SessionID,
		Events:    events,
		Count:     len(events),
	}, nil
}

func (s *Server) handleGetFlow(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, FlowOutput, error) {
	events, err := s.timelineFor(input.SessionID)
	if err != nil {
		return nil, FlowOutput{}, err
	}

	opts := []flow.Option{flow.WithLogger(s.logger)}
	if s.resolver != nil {
		opts = append(opts, flow.WithNameResolver(s.resolver))
	}
	f := flow.Reconstruct(events, opts...)

	return nil, FlowOutput{
		SessionID:         input.SessionID,
		Participants:      f.SortedParticipants(),
		Edges:             f.Edges,
		PrimaryAgent:      f.PrimaryAgent,
		TotalParticipants: f.TotalParticipants,
		TotalEdges:        f.TotalEdges,
	}, nil
}

func (s *Server) handleScanContent(ctx context.Context, req *mcpsdk.CallToolRequest, input ScanContentInput) (*mcpsdk.CallToolResult, engine.ScanOutcome, error) {
	if input.Content == "" {
		return nil, engine.ScanOutcome{}, fmt.Errorf("content is required")
	}
	outcome, err := s.scanner.ScanContent(ctx, input.Content)
	if err != nil {
		return nil, engine.ScanOutcome{}, fmt.Errorf("scan: %w", err)
	}
	return nil, *outcome, nil
}

// timelineFor loads the stored snapshot and correlates it.
func (s *Server) timelineFor(id string) ([]timeline.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	t, err := s.store.Transcript(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var opts []timeline.Option
	if s.resolver != nil {
		opts = append(opts, timeline.WithNameResolver(s.resolver))
	}
	return timeline.Correlate(t, opts...), nil
}
