package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/duckdb/migrate"
	"github.com/tinytelemetry/logdigest/internal/model"
)

// Store ranks window batches with SQL over an in-memory DuckDB database.
// Batches are inserted inside a transaction that is always rolled back, so
// nothing outlives a single ranking call.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	schema       int
	QueryTimeout time.Duration
}

// NewStore opens an in-memory database and applies the schema.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(queryTimeout ...time.Duration) (*Store, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	// One connection keeps every statement on the same in-memory catalog.
	db.SetMaxOpenConns(1)

	runner := migrate.NewRunner(db)
	if err := runner.Run(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: %w", err)
	}
	schema, pending, err := runner.Status(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: %w", err)
	}
	if pending > 0 {
		db.Close()
		return nil, fmt.Errorf("duckdb: %d migrations still pending at version %d", pending, schema)
	}
	log.Debug().Str("component", "duckdb").Int("schema_version", schema).Msg("ranking store ready")

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	return &Store{db: db, schema: schema, QueryTimeout: qt}, nil
}

// SchemaVersion reports the migration version the store was opened at.
func (s *Store) SchemaVersion() int { return s.schema }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const topErrorsQuery = `
SELECT identifier, source, cnt
FROM error_signatures
WHERE batch_id = ?
ORDER BY cnt DESC, first_seq ASC
LIMIT ?`

// TopErrors returns the n most frequent ERROR signatures of events, count
// descending with ties in event order.
func (s *Store) TopErrors(ctx context.Context, events []model.EventRecord, n int) ([]model.FrequencyEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb: begin: %w", err)
	}
	defer tx.Rollback()

	batchID := uuid.NewString()
	if err := insertBatch(ctx, tx, batchID, events); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, topErrorsQuery, batchID, n)
	if err != nil {
		return nil, fmt.Errorf("duckdb: rank: %w", err)
	}
	defer rows.Close()

	var out []model.FrequencyEntry
	for rows.Next() {
		var (
			id     int
			source string
			count  int64
		)
		if err := rows.Scan(&id, &source, &count); err != nil {
			return nil, fmt.Errorf("duckdb: scan: %w", err)
		}
		out = append(out, model.FrequencyEntry{
			Key:   model.FrequencyKey{Identifier: uint16(id), Source: source},
			Count: int(count),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: rank: %w", err)
	}
	return out, nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, batchID string, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO window_events
		(batch_id, seq, severity, source, identifier, ts, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		var ts any
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp
		}
		if _, err := stmt.ExecContext(ctx, batchID, i, e.Severity.String(), e.Source, int(e.Identifier), ts, e.Message); err != nil {
			return fmt.Errorf("duckdb: insert: %w", err)
		}
	}
	return nil
}
