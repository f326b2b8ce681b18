package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPersistence marks a failed attempt to durably record a conversation.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("conversation not found")
)

// Record is one stored prompt/response exchange. Records are written once
// and never updated.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is a window over the stored records, newest first.
type Page struct {
	Records []Record `json:"conversations"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Store defines persistence behaviour for conversation history.
type Store interface {
	// Save writes exactly one record in its own transaction.
	Save(ctx context.Context, prompt, response string) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	List(ctx context.Context, limit, offset int) (Page, error)
	Ping(ctx context.Context) error
	Close() error
}

// PersistenceError wraps a failed save.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Pool tunes the database/sql connection pool.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Apply configures db with the non-zero settings in p.
func (p Pool) Apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

// NewRecord stamps a fresh id and creation time.
func NewRecord(prompt, response string) Record {
	return Record{
		ID:        uuid.New(),
		Prompt:    prompt,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}
}

// SaveTx inserts rec with insertSQL inside a single transaction, rolling back
// on any failure. insertSQL takes id, prompt, response and created_at.
func SaveTx(ctx context.Context, db *sql.DB, insertSQL string, rec Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin", Err: err}
	}
	if _, err := tx.ExecContext(ctx, insertSQL, rec.ID.String(), rec.Prompt, rec.Response, rec.CreatedAt); err != nil {
		_ = tx.Rollback()
		return &PersistenceError{Op: "insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads id, prompt, response, created_at.
func ScanRecord(s Scanner) (Record, error) {
	var (
		rec Record
		id  string
	)
	if err := s.Scan(&id, &rec.Prompt, &rec.Response, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("history: stored id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
