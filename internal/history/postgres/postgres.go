package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	// pgx is the default driver; lib/pq is kept selectable for deployments
	// that pin it.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/tokligence/streamledger/internal/history"
)

// Ensure Store implements history.Store.
var _ history.Store = (*Store)(nil)

const (
	DriverPGX = "pgx"
	DriverPQ  = "postgres"
)

// Store implements history.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed history store using the provided DSN, driver
// name and connection pool settings.
func New(dsn, driver string, pool history.Pool) (*Store, error) {
	switch driver {
	case "":
		driver = DriverPGX
	case DriverPGX, DriverPQ:
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	pool.Apply(db)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts a new conversation record.
func (s *Store) Save(ctx context.Context, prompt, response string) (history.Record, error) {
	rec := history.NewRecord(prompt, response)
	err := history.SaveTx(ctx, s.db, `
INSERT INTO conversations(id, prompt, response, created_at)
VALUES($1, $2, $3, $4)`, rec)
	if err != nil {
		return history.Record{}, err
	}
	return rec, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (history.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id::text, prompt, response, created_at FROM conversations WHERE id = $1`, id.String())
	rec, err := history.ScanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Record{}, history.ErrNotFound
	}
	if err != nil {
		return history.Record{}, fmt.Errorf("get conversation: %w", err)
	}
	return rec, nil
}

// List returns records newest first along with the total count.
func (s *Store) List(ctx context.Context, limit, offset int) (history.Page, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	page := history.Page{Records: []history.Record{}, Limit: limit, Offset: offset}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&page.Total); err != nil {
		return history.Page{}, fmt.Errorf("count conversations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id::text, prompt, response, created_at
FROM conversations
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return history.Page{}, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := history.ScanRecord(rows)
		if err != nil {
			return history.Page{}, err
		}
		page.Records = append(page.Records, rec)
	}
	return page, rows.Err()
}
