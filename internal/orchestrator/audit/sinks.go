package audit

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// LoggerSink writes tickets through a structured logger. This is the
// default sink: §6 calls for "the audit sink (logger by default)".
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink wraps an existing slog.Logger.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Write(t schema.HandoffTicket) error {
	s.logger.Info("handoff_ticket",
		"id", t.ID,
		"transition", t.Transition(),
		"reason", t.Reason,
		"expectedOutcome", t.ExpectedOutcome,
		"slaMs", t.SLAMs,
		"confidence", t.Confidence,
		"status", t.Status,
		"payloadKeys", t.PayloadKeys,
	)
	return nil
}

// MemorySink retains tickets in process memory, useful for tests and for
// serving recent-handoff queries without a durable store.
type MemorySink struct {
	mu      sync.Mutex
	tickets []schema.HandoffTicket
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(t schema.HandoffTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, t)
	return nil
}

// All returns a snapshot of every retained ticket.
func (s *MemorySink) All() []schema.HandoffTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.HandoffTicket, len(s.tickets))
	copy(out, s.tickets)
	return out
}

// SQLiteSink persists tickets to a pure-Go SQLite database (modernc.org/sqlite,
// no cgo), the optional durable alternative to the in-memory reference
// implementation §6 describes.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) a SQLite database at path and
// ensures the handoff_tickets table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schemaDDL = `
CREATE TABLE IF NOT EXISTS handoff_tickets (
	id TEXT PRIMARY KEY,
	transition TEXT NOT NULL,
	reason TEXT NOT NULL,
	confidence REAL NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	annotations TEXT NOT NULL,
	payload_keys TEXT NOT NULL
);`
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(t schema.HandoffTicket) error {
	annotations, err := json.Marshal(t.Annotations)
	if err != nil {
		return err
	}
	payloadKeys, err := json.Marshal(t.PayloadKeys)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO handoff_tickets (id, transition, reason, confidence, status, created_at, annotations, payload_keys)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Transition(), t.Reason, t.Confidence, t.Status, t.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"), string(annotations), string(payloadKeys),
	)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }
