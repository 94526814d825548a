package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentsight/agentsight/internal/timeline"
)

// ErrNotFound is returned for lookups of sessions that were never imported
// or have been deleted.
var ErrNotFound = errors.New("session not found")

// Store is the persistence surface shared by both backends.
type Store interface {
	// SaveSession upserts a session's metadata and raw transcript snapshot.
	SaveSession(rec *Record, t *timeline.Transcript) error
	// Session returns the stored metadata for one session.
	Session(id string) (*Record, error)
	// Transcript returns the raw snapshot for re-correlation.
	Transcript(id string) (*timeline.Transcript, error)
	// List returns session metadata matching the filters, newest import
	// first.
	List(opts QueryOpts) ([]Record, error)
	// Delete removes a session and its transcript.
	Delete(id string) error
	// Touch asynchronously marks a session as viewed. Safe to call on hot
	// paths; markers may be dropped under pressure.
	Touch(id string)
	// Flush blocks until queued view markers are written.
	Flush()
	// SaveAgents upserts display names into the agent registry.
	SaveAgents(names map[string]string) error
	// AgentNames returns the full agent registry.
	AgentNames() (map[string]string, error)
	// Purge deletes sessions imported before the cutoff and returns how many
	// were removed.
	Purge(olderThan time.Time) (int64, error)
	Close() error
}

// Open selects a backend by driver name: "sqlite" (default) or "postgres".
// For SQLite the DSN is the database file path; for PostgreSQL a standard
// connection string.
func Open(driver, dsn string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(dsn, logger)
	case "postgres":
		return NewPostgres(dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
