// Package session persists imported transcripts and the agent name
// registry. Two backends implement the same Store interface: SQLite for
// single-host deployments and PostgreSQL for shared ones.
package session

import (
	"time"

	"github.com/agentsight/agentsight/internal/timeline"
)

// Record is the stored metadata for one imported session. The raw transcript
// snapshot is kept alongside it and re-correlated on demand; computed
// timelines are never persisted.
type Record struct {
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

// QueryOpts holds filters for session listings.
type QueryOpts struct {
	Severity       string // exact max_severity match
	WithDetections bool   // only sessions with at least one detection
	Source         string
	Since          string // RFC3339, imported_at lower bound
	Limit          int    // default 50
}

// Summarize derives a Record from a raw transcript.
func Summarize(id, source, label string, t *timeline.Transcript, importedAt time.Time) *Record {
	rec := &Record{
		ID:         id,
		ImportedAt: importedAt,
		Source:     source,
		Label:      label,
	}
	if t == nil {
		return rec
	}
	rec.MessageCount = len(t.ChatMessages)
	rec.ResponseCount = len(t.AgentResponses)
	rec.DetectionCount = len(t.Detections)
	for i := range t.ChatMessages {
		ts := t.ChatMessages[i].Timestamp
		if ts.IsZero() {
			continue
		}
		if rec.StartedAt.IsZero() || ts.Before(rec.StartedAt) {
			rec.StartedAt = ts
		}
	}
	for i := range t.Detections {
		if severityRank(t.Detections[i].Severity) > severityRank(rec.MaxSeverity) {
			rec.MaxSeverity = t.Detections[i].Severity
		}
	}
	return rec
}

func severityRank(s string) int {
	switch s {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}
