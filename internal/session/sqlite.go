package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentsight/agentsight/internal/timeline"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	imported_at TEXT NOT NULL,
	started_at TEXT,
	last_viewed_at TEXT,
	source TEXT,
	label TEXT,
	transcript TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	response_count INTEGER NOT NULL,
	detection_count INTEGER NOT NULL,
	max_severity TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_imported ON sessions(imported_at);
CREATE INDEX IF NOT EXISTS idx_sessions_severity ON sessions(max_severity);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore is the single-host backend. Transcript snapshots are stored as
// JSON; view markers are written asynchronously off the request path.
type SQLiteStore struct {
	db      *sql.DB
	touches chan touchMark
	done    chan struct{}
	logger  *slog.Logger
}

type touchMark struct {
	id  string
	at  string
	ack chan struct{}
}

// NewSQLite opens (or creates) the SQLite session database.
func NewSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	// WAL keeps dashboard reads concurrent with imports
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		touches: make(chan touchMark, 256),
		done:    make(chan struct{}),
		logger:  logger,
	}

	go s.touchLoop()
	return s, nil
}

// SaveSession upserts the session row. Re-importing a session replaces its
// snapshot but keeps the last-viewed marker.
func (s *SQLiteStore) SaveSession(rec *Record, t *timeline.Transcript) error {
	blob, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions
		(id, imported_at, started_at, source, label, transcript, message_count, response_count, detection_count, max_severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			imported_at=excluded.imported_at,
			started_at=excluded.started_at,
			source=excluded.source,
			label=excluded.label,
			transcript=excluded.transcript,
			message_count=excluded.message_count,
			response_count=excluded.response_count,
			detection_count=excluded.detection_count,
			max_severity=excluded.max_severity`,
		rec.ID, rfc3339(rec.ImportedAt), rfc3339(rec.StartedAt), rec.Source, rec.Label,
		string(blob), rec.MessageCount, rec.ResponseCount, rec.DetectionCount, rec.MaxSeverity,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Session(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT id, imported_at, started_at, last_viewed_at, source, label,
		message_count, response_count, detection_count, max_severity
		FROM sessions WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Transcript(id string) (*timeline.Transcript, error) {
	var blob string
	err := s.db.QueryRow(`SELECT transcript FROM sessions WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", id, err)
	}
	var t timeline.Transcript
	if err := json.Unmarshal([]byte(blob), &t); err != nil {
		return nil, fmt.Errorf("decoding transcript %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) List(opts QueryOpts) ([]Record, error) {
	query := `SELECT id, imported_at, started_at, last_viewed_at, source, label,
		message_count, response_count, detection_count, max_severity
		FROM sessions WHERE 1=1`
	var args []any

	if opts.Severity != "" {
		query += " AND max_severity = ?"
		args = append(args, opts.Severity)
	}
	if opts.WithDetections {
		query += " AND detection_count > 0"
	}
	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.Since != "" {
		since := opts.Since
		if ts := parseTime(opts.Since); !ts.IsZero() {
			since = rfc3339(ts)
		}
		query += " AND imported_at >= ?"
		args = append(args, since)
	}

	query += " ORDER BY imported_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch enqueues a view marker for async writing.
func (s *SQLiteStore) Touch(id string) {
	select {
	case s.touches <- touchMark{id: id, at: rfc3339(time.Now().UTC())}:
	default:
		s.logger.Warn("touch buffer full, dropping view marker", "session_id", id)
	}
}

func (s *SQLiteStore) SaveAgents(names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting agent update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := rfc3339(time.Now().UTC())
	for id, name := range names {
		if id == "" || name == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO agents (id, display_name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, updated_at=excluded.updated_at`,
			id, name, now); err != nil {
			return fmt.Errorf("saving agent %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AgentNames() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, display_name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Purge(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE imported_at < ?`, rfc3339(olderThan))
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return res.RowsAffected()
}

// Flush blocks until all queued view markers are written. Call before Close
// when read-after-touch matters.
func (s *SQLiteStore) Flush() {
	ack := make(chan struct{})
	s.touches <- touchMark{ack: ack}
	<-ack
}

// Close flushes pending view markers and closes the database.
func (s *SQLiteStore) Close() error {
	close(s.touches)
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) touchLoop() {
	defer close(s.done)
	for mark := range s.touches {
		if mark.ack != nil {
			close(mark.ack)
			continue
		}
		if _, err := s.db.Exec(`UPDATE sessions SET last_viewed_at = ? WHERE id = ?`, mark.at, mark.id); err != nil {
			s.logger.Error("touch write failed", "session_id", mark.id, "error", err)
		}
	}
}

// scanRecord reads one metadata row through either sql.Row.Scan or
// sql.Rows.Scan.
func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var imported string
	var started, viewed, source, label, severity sql.NullString
	if err := scan(&rec.ID, &imported, &started, &viewed, &source, &label,
		&rec.MessageCount, &rec.ResponseCount, &rec.DetectionCount, &severity); err != nil {
		return nil, err
	}
	rec.ImportedAt = parseTime(imported)
	rec.StartedAt = parseTime(started.String)
	rec.LastViewedAt = parseTime(viewed.String)
	rec.Source = source.String
	rec.Label = label.String
	rec.MaxSeverity = severity.String
	return &rec, nil
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
