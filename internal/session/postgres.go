package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentsight/agentsight/internal/timeline"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	imported_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	last_viewed_at TIMESTAMPTZ,
	source TEXT,
	label TEXT,
	transcript JSONB NOT NULL,
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
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the shared-deployment backend, for teams pointing several
// dashboard replicas at one database.
type PostgresStore struct {
	pool    *pgxpool.Pool
	touches chan touchMark
	done    chan struct{}
	logger  *slog.Logger
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &PostgresStore{
		pool:    pool,
		touches: make(chan touchMark, 256),
		done:    make(chan struct{}),
		logger:  logger,
	}

	go s.touchLoop()
	return s, nil
}

func (s *PostgresStore) SaveSession(rec *Record, t *timeline.Transcript) error {
	blob, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	_, err = s.pool.Exec(context.Background(), `INSERT INTO sessions
		(id, imported_at, started_at, source, label, transcript, message_count, response_count, detection_count, max_severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			imported_at = EXCLUDED.imported_at,
			started_at = EXCLUDED.started_at,
			source = EXCLUDED.source,
			label = EXCLUDED.label,
			transcript = EXCLUDED.transcript,
			message_count = EXCLUDED.message_count,
			response_count = EXCLUDED.response_count,
			detection_count = EXCLUDED.detection_count,
			max_severity = EXCLUDED.max_severity`,
		rec.ID, rec.ImportedAt.UTC(), pgTime(rec.StartedAt), rec.Source, rec.Label,
		blob, rec.MessageCount, rec.ResponseCount, rec.DetectionCount, rec.MaxSeverity,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Session(id string) (*Record, error) {
	row := s.pool.QueryRow(context.Background(), `SELECT id, imported_at, started_at, last_viewed_at,
		source, label, message_count, response_count, detection_count, max_severity
		FROM sessions WHERE id = $1`, id)
	rec, err := scanPgRecord(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) Transcript(id string) (*timeline.Transcript, error) {
	var blob []byte
	err := s.pool.QueryRow(context.Background(), `SELECT transcript FROM sessions WHERE id = $1`, id).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", id, err)
	}
	var t timeline.Transcript
	if err := json.Unmarshal(blob, &t); err != nil {
		return nil, fmt.Errorf("decoding transcript %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) List(opts QueryOpts) ([]Record, error) {
	query := `SELECT id, imported_at, started_at, last_viewed_at, source, label,
		message_count, response_count, detection_count, max_severity
		FROM sessions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Severity != "" {
		query += " AND max_severity = " + arg(opts.Severity)
	}
	if opts.WithDetections {
		query += " AND detection_count > 0"
	}
	if opts.Source != "" {
		query += " AND source = " + arg(opts.Source)
	}
	if since := parseTime(opts.Since); !since.IsZero() {
		query += " AND imported_at >= " + arg(since)
	}

	query += " ORDER BY imported_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPgRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(id string) error {
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Touch(id string) {
	select {
	case s.touches <- touchMark{id: id, at: rfc3339(time.Now().UTC())}:
	default:
		s.logger.Warn("touch buffer full, dropping view marker", "session_id", id)
	}
}

func (s *PostgresStore) SaveAgents(names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting agent update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for id, name := range names {
		if id == "" || name == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO agents (id, display_name, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at`,
			id, name, now); err != nil {
			return fmt.Errorf("saving agent %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) AgentNames() (map[string]string, error) {
	rows, err := s.pool.Query(context.Background(), `SELECT id, display_name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) Purge(olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM sessions WHERE imported_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Flush blocks until all queued view markers are written.
func (s *PostgresStore) Flush() {
	ack := make(chan struct{})
	s.touches <- touchMark{ack: ack}
	<-ack
}

func (s *PostgresStore) Close() error {
	close(s.touches)
	<-s.done
	s.pool.Close()
	return nil
}

func (s *PostgresStore) touchLoop() {
	defer close(s.done)
	for mark := range s.touches {
		if mark.ack != nil {
			close(mark.ack)
			continue
		}
		if _, err := s.pool.Exec(context.Background(),
			`UPDATE sessions SET last_viewed_at = $1 WHERE id = $2`, parseTime(mark.at), mark.id); err != nil {
			s.logger.Error("touch write failed", "session_id", mark.id, "error", err)
		}
	}
}

func scanPgRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var started, viewed *time.Time
	var source, label, severity *string
	if err := scan(&rec.ID, &rec.ImportedAt, &started, &viewed, &source, &label,
		&rec.MessageCount, &rec.ResponseCount, &rec.DetectionCount, &severity); err != nil {
		return nil, err
	}
	if started != nil {
		rec.StartedAt = *started
	}
	if viewed != nil {
		rec.LastViewedAt = *viewed
	}
	if source != nil {
		rec.Source = *source
	}
	if label != nil {
		rec.Label = *label
	}
	if severity != nil {
		rec.MaxSeverity = *severity
	}
	return &rec, nil
}

// pgTime maps zero times to NULL.
func pgTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
