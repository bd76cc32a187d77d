package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rental-insights/utils"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL differences between the supported backends
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// DetectDialect picks the backend from a database URL; anything that is not a
// postgres URL is treated as a SQLite file path.
func DetectDialect(dbURL string) Dialect {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// rebind rewrites '?' placeholders to $N for PostgreSQL
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is the database handle owned by one pipeline run.
// For SQLite it writes to a private build file until Promote renames it into place.
type Store struct {
	DB      *sql.DB
	Dialect Dialect

	path      string
	buildPath string
	logger    *utils.Logger
}

// OpenBuild opens a fresh database for a full rebuild.
// SQLite targets are built at "<path>.build-<runID>"; PostgreSQL targets are rebuilt in place.
func OpenBuild(ctx context.Context, dbURL, runID string, logger *utils.Logger) (*Store, error) {
	dialect := DetectDialect(dbURL)
	if dialect == Postgres {
		return open(ctx, dbURL, dialect, "", logger)
	}

	if err := os.MkdirAll(filepath.Dir(dbURL), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	buildPath := fmt.Sprintf("%s.build-%s", dbURL, runID)
	_ = os.Remove(buildPath)

	s, err := open(ctx, buildPath, dialect, buildPath, logger)
	if err != nil {
		return nil, err
	}
	s.path = dbURL
	return s, nil
}

// Open opens an existing, published database for reading and derived writes
func Open(ctx context.Context, dbURL string, logger *utils.Logger) (*Store, error) {
	dialect := DetectDialect(dbURL)
	if dialect == SQLite {
		if _, err := os.Stat(dbURL); err != nil {
			return nil, fmt.Errorf("database %s not found: %w", dbURL, err)
		}
	}
	s, err := open(ctx, dbURL, dialect, "", logger)
	if err != nil {
		return nil, err
	}
	s.path = dbURL
	return s, nil
}

func open(ctx context.Context, target string, dialect Dialect, buildPath string, logger *utils.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", target)
	default:
		db, err = sql.Open("sqlite", "file:"+target+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	// One long-lived connection per run
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to %s database: %s", dialect, Redact(target))
	return &Store{DB: db, Dialect: dialect, buildPath: buildPath, logger: logger}, nil
}

// Promote publishes a finished build. For SQLite the build file is closed and
// atomically renamed over the published path; readers of the old file keep
// their handle until they reopen.
func (s *Store) Promote() error {
	if s.buildPath == "" {
		return s.Close()
	}
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.buildPath, s.path); err != nil {
		return fmt.Errorf("failed to publish database: %w", err)
	}
	s.logger.Info("Published database %s", s.path)
	s.buildPath = ""
	return nil
}

// Abandon closes the handle and removes an unpublished build file
func (s *Store) Abandon() {
	_ = s.Close()
	if s.buildPath != "" {
		_ = os.Remove(s.buildPath)
		s.logger.Warn("Discarded partial build %s", s.buildPath)
		s.buildPath = ""
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	err := s.DB.Close()
	s.DB = nil
	return err
}

// Path returns the published location of the database
func (s *Store) Path() string {
	return s.path
}

// Redact hides the credentials of a connection URL for logs and console output
func Redact(target string) string {
	if i := strings.Index(target, "@"); i > 0 {
		if j := strings.Index(target, "://"); j > 0 && j < i {
			return target[:j+3] + "***" + target[i:]
		}
	}
	return target
}
