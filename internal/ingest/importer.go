// Package ingest imports agent session snapshots into the store.
//
// A snapshot is a JSON file holding one session transcript: the chat
// messages, agent responses and any detections the producing system
// already flagged. Import parses the file, optionally rescans message
// content for fresh detections, summarizes the session and persists it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentsight/agentsight/internal/metrics"
	"github.com/agentsight/agentsight/internal/safefile"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

// maxSnapshotBytes caps how large a snapshot file may be. Oversized
// drops are rejected before parsing.
const maxSnapshotBytes = 32 << 20

// Scanner rescans message content at import time. Satisfied by
// *engine.Scanner.
type Scanner interface {
	ScanMessage(ctx context.Context, content string) ([]timeline.Detection, error)
}

// Importer parses snapshot files and writes sessions to the store.
type Importer struct {
	store      session.Store
	scanner    Scanner
	archiveDir string
	logger     *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithScanner enables content scanning during import.
func WithScanner(s Scanner) Option {
	return func(imp *Importer) { imp.scanner = s }
}

// WithArchiveDir moves successfully imported snapshot files into dir.
func WithArchiveDir(dir string) Option {
	return func(imp *Importer) { imp.archiveDir = dir }
}

// NewImporter creates an importer writing to store.
func NewImporter(store session.Store, logger *slog.Logger, opts ...Option) *Importer {
	imp := &Importer{store: store, logger: logger}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// ImportFile reads, parses and stores one snapshot file. The session
// label defaults to the file name without extension. On success the
// file is moved to the archive directory, if one is configured.
func (imp *Importer) ImportFile(ctx context.Context, path, source string) (*session.Record, error) {
	start := time.Now()
	rec, err := imp.importFile(ctx, path, source)
	metrics.ImportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ImportFailures.Inc()
		return nil, err
	}
	metrics.SessionsImported.Inc()
	return rec, nil
}

func (imp *Importer) importFile(ctx context.Context, path, source string) (*session.Record, error) {
	data, err := safefile.ReadFileMax(path, maxSnapshotBytes)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var t timeline.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", filepath.Base(path), err)
	}

	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rec, err := imp.Import(ctx, &t, source, label)
	if err != nil {
		return nil, err
	}

	if imp.archiveDir != "" {
		imp.archive(path)
	}
	return rec, nil
}

// Import stores one transcript. A missing session ID gets a generated
// one. When a scanner is configured, message content is rescanned and
// fresh findings appended; downstream detection dedup keeps rescans
// from doubling up detections the producer already flagged.
//
// Import may mutate t: it assigns the session ID and appends scan
// findings to t.Detections.
func (imp *Importer) Import(ctx context.Context, t *timeline.Transcript, source, label string) (*session.Record, error) {
	if t == nil {
		return nil, fmt.Errorf("nil transcript")
	}

	ctx, span := startImportSpan(ctx, source)
	rec, err := imp.doImport(ctx, t, source, label)
	endImportSpan(span, rec, err)
	return rec, err
}

func (imp *Importer) doImport(ctx context.Context, t *timeline.Transcript, source, label string) (*session.Record, error) {
	if t.SessionID == "" {
		t.SessionID = uuid.New().String()
	}

	if imp.scanner != nil {
		if err := imp.scan(ctx, t); err != nil {
			return nil, err
		}
	}

	rec := session.Summarize(t.SessionID, source, label, t, time.Now().UTC())
	if err := imp.store.SaveSession(rec, t); err != nil {
		return nil, fmt.Errorf("storing session %s: %w", t.SessionID, err)
	}

	if names := agentNames(t); len(names) > 0 {
		if err := imp.store.SaveAgents(names); err != nil {
			imp.logger.Warn("failed to update agent registry", "session_id", t.SessionID, "error", err)
		}
	}

	for _, d := range t.Detections {
		metrics.DetectionsFlagged.WithLabelValues(d.Severity).Inc()
	}

	imp.logger.Info("session imported",
		"session_id", t.SessionID,
		"source", source,
		"messages", rec.MessageCount,
		"responses", rec.ResponseCount,
		"detections", rec.DetectionCount)
	return rec, nil
}

// scan runs the rule engine over user messages and agent responses and
// appends findings as synthetic detections. Scan findings carry no
// producer ID, so each gets a deterministic scan-N identifier plus the
// identifiers of the row that produced it.
func (imp *Importer) scan(ctx context.Context, t *timeline.Transcript) error {
	n := 0
	for i := range t.ChatMessages {
		msg := &t.ChatMessages[i]
		if msg.Role != timeline.RoleUser || msg.Content == "" {
			continue
		}
		found, err := imp.scanner.ScanMessage(ctx, msg.Content)
		if err != nil {
			return fmt.Errorf("scanning message %d: %w", i, err)
		}
		idx := i
		for _, d := range found {
			n++
			d.ID = fmt.Sprintf("scan-%s-%d", t.SessionID, n)
			d.MessageID = msg.MessageID
			d.RequestID = msg.RequestID
			if msg.MessageID == "" {
				d.MessageIndex = &idx
			}
			t.Detections = append(t.Detections, d)
		}
	}
	for i := range t.AgentResponses {
		resp := &t.AgentResponses[i]
		if resp.Response == "" {
			continue
		}
		found, err := imp.scanner.ScanMessage(ctx, resp.Response)
		if err != nil {
			return fmt.Errorf("scanning response %d: %w", i, err)
		}
		for _, d := range found {
			n++
			d.ID = fmt.Sprintf("scan-%s-%d", t.SessionID, n)
			// Response findings carry response-side identifiers so they
			// attach to the response event, not the user turn.
			switch {
			case resp.ResponseID != "":
				d.MessageID = resp.ResponseID
			case resp.TraceID != "":
				d.TraceID = resp.TraceID
			default:
				d.RequestID = resp.RequestID
			}
			t.Detections = append(t.Detections, d)
		}
	}
	return nil
}

// archive moves an imported snapshot out of the watch directory. A
// name collision gets a nanosecond suffix rather than overwriting the
// earlier archive entry.
func (imp *Importer) archive(path string) {
	if err := os.MkdirAll(imp.archiveDir, 0o755); err != nil {
		imp.logger.Warn("failed to create archive dir", "dir", imp.archiveDir, "error", err)
		return
	}
	base := filepath.Base(path)
	dst := filepath.Join(imp.archiveDir, base)
	if _, err := os.Lstat(dst); err == nil {
		ext := filepath.Ext(base)
		dst = filepath.Join(imp.archiveDir,
			fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), time.Now().UnixNano(), ext))
	}
	if err := safefile.Move(path, dst); err != nil {
		imp.logger.Warn("failed to archive snapshot", "path", path, "error", err)
	}
}

// agentNames collects the display names this transcript announces.
func agentNames(t *timeline.Transcript) map[string]string {
	names := make(map[string]string)
	for _, resp := range t.AgentResponses {
		if resp.AgentID != "" && resp.AgentDisplayName != "" {
			names[resp.AgentID] = resp.AgentDisplayName
		}
	}
	return names
}
