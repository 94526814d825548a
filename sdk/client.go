// Package sdk provides a Go client for the agentsight API.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:8080", "12345678")
//	if err := c.Login(ctx); err != nil { ... }
//	sessions, err := c.ListSessions(ctx, nil)
//	tl, err := c.Timeline(ctx, sessions[0].ID)
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Session is the stored metadata for one imported session.
type Session struct {
	ID             string    `json:"id"`
	ImportedAt     time.Time `json:"imported_at"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastViewedAt   time.Time `json:"last_viewed_at,omitempty"`
	Source         string    `json:"source,omitempty"`
	Label          string    `json:"label,omitempty"`
	MessageCount   int       `json:"message_count"`
	ResponseCount  int       `json:"response_count"`
	DetectionCount int       `json:"detection_count"`
	MaxSeverity    string    `json:"max_severity,omitempty"`
}

// Detection is a security finding attached to a timeline event.
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

// Event is one correlated occurrence in a session timeline.
type Event struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Agent      string        `json:"agent"`
	AgentID    string        `json:"agent_id,omitempty"`
	Content    string        `json:"content,omitempty"`
	Detections []Detection   `json:"detections,omitempty"`
	Details    *EventDetails `json:"details,omitempty"`
}

// EventDetails carries the variant payload of an Event.
type EventDetails struct {
	FromAgentID   string         `json:"from_agent_id,omitempty"`
	ToAgentID     string         `json:"to_agent_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	HandoffType   string         `json:"handoff_type,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Result        string         `json:"result,omitempty"`
	DetectionID   string         `json:"detection_id,omitempty"`
	DetectionType string         `json:"detection_type,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Matches       []string       `json:"matches,omitempty"`
	OuterAgentID  string         `json:"outer_agent_id,omitempty"`
}

// Timeline is the correlated event sequence for one session.
type Timeline struct {
	SessionID string  `json:"session_id"`
	Events    []Event `json:"events"`
	Count     int     `json:"count"`
}

// Participant is one node in a reconstructed communication graph.
type Participant struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	FirstEvent  int    `json:"first_event"`
}

// EdgeKey identifies one edge by its endpoint pair.
type EdgeKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Occurrence is one recorded communication on an edge.
type Occurrence struct {
	EventIndex int    `json:"event_index"`
	Direction  string `json:"direction"`
}

// Edge is one communication link with its accumulated occurrences.
type Edge struct {
	Key         EdgeKey      `json:"key"`
	Type        string       `json:"type"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Directional bool         `json:"directional"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Flow is the reconstructed communication graph for one session.
type Flow struct {
	SessionID         string        `json:"session_id"`
	Participants      []Participant `json:"participants"`
	Edges             []Edge        `json:"edges"`
	PrimaryAgent      string        `json:"primary_agent,omitempty"`
	TotalParticipants int           `json:"total_participants"`
	TotalEdges        int           `json:"total_edges"`
}

// ActiveEdges lists the edges live at one timeline position.
type ActiveEdges struct {
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Edges     []EdgeKey `json:"active_edges"`
	Count     int       `json:"count"`
}

// FindingSummary describes a triggered detection rule.
type FindingSummary struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Match    string `json:"match,omitempty"`
}

// ScanResult is the verdict for ad hoc content scanning.
type ScanResult struct {
	Verdict  string           `json:"verdict"`
	Findings []FindingSummary `json:"findings,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ListOptions filters a session listing. Zero values are omitted.
type ListOptions struct {
	Severity       string
	Source         string
	Since          time.Time
	WithDetections bool
	Limit          int
}

// APIError is returned when the API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentsight: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to an agentsight server.
type Client struct {
	baseURL    string
	accessCode string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the agentsight API. accessCode is the
// code the server prints on startup; call Login before authenticated
// requests.
func NewClient(baseURL, accessCode string) *Client {
	return &Client{
		baseURL:    baseURL,
		accessCode: accessCode,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Login exchanges the access code for a session token used on all
// subsequent requests.
func (c *Client) Login(ctx context.Context) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"code": c.accessCode}, &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

// Health checks the server health endpoint. No login required.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns stored sessions, newest import first. opts may
// be nil.
func (c *Client) ListSessions(ctx context.Context, opts *ListOptions) ([]Session, error) {
	path := "/api/sessions"
	if opts != nil {
		q := url.Values{}
		if opts.Severity != "" {
			q.Set("severity", opts.Severity)
		}
		if opts.Source != "" {
			q.Set("source", opts.Source)
		}
		if !opts.Since.IsZero() {
			q.Set("since", opts.Since.Format(time.RFC3339))
		}
		if opts.WithDetections {
			q.Set("with_detections", "true")
		}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}

	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Session returns the stored metadata for one session.
func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its transcript.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// Timeline returns the correlated event timeline for a session.
func (c *Client) Timeline(ctx context.Context, id string) (*Timeline, error) {
	var out Timeline
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/timeline", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Flow returns the reconstructed communication graph for a session.
func (c *Client) Flow(ctx context.Context, id string) (*Flow, error) {
	var out Flow
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/flow", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveEdges returns the edges live at one timeline position.
func (c *Client) ActiveEdges(ctx context.Context, id string, index int) (*ActiveEdges, error) {
	path := fmt.Sprintf("/api/sessions/%s/flow/active?index=%d", url.PathEscape(id), index)
	var out ActiveEdges
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Import uploads a raw session snapshot and returns the stored record.
// snapshot must marshal to the transcript JSON the server ingests.
func (c *Client) Import(ctx context.Context, snapshot any, label string) (*Session, error) {
	path := "/api/import"
	if label != "" {
		path += "?label=" + url.QueryEscape(label)
	}
	var out Session
	if err := c.do(ctx, http.MethodPost, path, snapshot, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scan checks content against the detection rules without importing it.
func (c *Client) Scan(ctx context.Context, content string) (*ScanResult, error) {
	var out ScanResult
	if err := c.do(ctx, http.MethodPost, "/api/scan", map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Agent is one entry in the agent display-name registry.
type Agent struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Agents returns the agent display-name registry.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var out struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// do sends one request and decodes the response into out (skipped when
// out is nil). Non-2xx statuses decode the server's error message into
// an APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}
