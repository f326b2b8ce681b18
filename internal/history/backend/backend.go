// Package backend opens the history store named by configuration.
package backend

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tokligence/streamledger/internal/history"
	"github.com/tokligence/streamledger/internal/history/postgres"
	"github.com/tokligence/streamledger/internal/history/sqlite"
)

// Options selects and tunes a history backend.
type Options struct {
	// Driver is "sqlite", "pgx" or "postgres" (lib/pq). Empty infers it from URL.
	Driver string
	// URL is a postgres DSN or a sqlite URL (see SQLitePathFromURL). Empty
	// selects SQLitePath.
	URL        string
	SQLitePath string
	Pool       history.Pool
}

// Kind reports which engine Open would use: "sqlite" or "postgres".
func (o Options) Kind() string {
	if o.Driver == "sqlite" {
		return "sqlite"
	}
	if o.Driver == postgres.DriverPGX || o.Driver == postgres.DriverPQ {
		return "postgres"
	}
	if isPostgresURL(o.URL) {
		return "postgres"
	}
	return "sqlite"
}

// Open returns the configured history store. For sqlite, a sqlite:// or
// file: URL wins over SQLitePath; any other URL is ignored so a forced
// sqlite driver never treats a postgres DSN as a file name.
func Open(o Options) (history.Store, error) {
	if o.Kind() == "postgres" {
		if o.URL == "" {
			return nil, fmt.Errorf("history: driver %q requires a database url", o.Driver)
		}
		return postgres.New(NormalizePostgresURL(o.URL), o.Driver, o.Pool)
	}
	path := o.SQLitePath
	if p, ok := SQLitePathFromURL(o.URL); ok {
		if p != "" {
			path = p
		}
	} else if strings.TrimSpace(o.URL) != "" && o.Driver != "sqlite" {
		return nil, fmt.Errorf("history: unsupported database url scheme in %q", redactURL(o.URL))
	}
	if path == "" {
		return nil, fmt.Errorf("history: sqlite path required")
	}
	return sqlite.New(path, o.Pool)
}

// SQLitePathFromURL extracts the database file from a sqlite URL using the
// SQLAlchemy convention: "sqlite:///app.db" is relative to the working
// directory and "sqlite:////var/lib/app.db" is absolute. Driver suffixes
// such as "sqlite+aiosqlite://" and file: URIs are accepted; query strings
// are dropped. ok is false when u is not a sqlite URL.
func SQLitePathFromURL(u string) (path string, ok bool) {
	u = strings.TrimSpace(u)
	lower := strings.ToLower(u)
	var rest string
	switch {
	case strings.HasPrefix(lower, "file:"):
		rest = strings.TrimPrefix(u[len("file:"):], "//")
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "sqlite+"):
		i := strings.Index(u, "://")
		if i < 0 {
			return "", false
		}
		rest = strings.TrimPrefix(u[i+len("://"):], "/")
	default:
		return "", false
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}

// redactURL drops userinfo so credentials never reach error messages.
func redactURL(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return "<invalid url>"
	}
	return parsed.Redacted()
}

func isPostgresURL(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") ||
		strings.HasPrefix(u, "postgresql+")
}

// NormalizePostgresURL strips SQLAlchemy style driver suffixes such as
// "postgresql+asyncpg://" so the URL is accepted by Go drivers.
func NormalizePostgresURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "postgresql+") {
		if i := strings.Index(u, "://"); i > 0 {
			return "postgresql" + u[i:]
		}
	}
	return u
}
