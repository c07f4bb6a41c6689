package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for mallard's snapshot tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  project         TEXT NOT NULL,
  component       TEXT NOT NULL,
  component_type  TEXT NOT NULL,
  path            TEXT,
  content_hash    TEXT,
  signature_hash  TEXT,
  last_indexed    TIMESTAMP,
  UNIQUE (project, component)
);

CREATE TABLE IF NOT EXISTS declarations (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
  key             TEXT NOT NULL UNIQUE,
  parent_key      TEXT,
  name            TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  kind            TEXT NOT NULL,
  accessibility   TEXT,
  as_type         TEXT,
  is_array        BOOLEAN NOT NULL DEFAULT FALSE,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  name_line       INTEGER,
  name_col        INTEGER
);

CREATE TABLE IF NOT EXISTS annotations (
  id              INTEGER PRIMARY KEY,
  declaration_id  INTEGER NOT NULL REFERENCES declarations(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  arguments       TEXT
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
  target_module   TEXT NOT NULL,
  target_key      TEXT NOT NULL,
  scope_key       TEXT,
  name            TEXT NOT NULL,
  flags           TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS findings (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
  inspection      TEXT NOT NULL,
  severity        TEXT NOT NULL,
  description     TEXT NOT NULL,
  target_key      TEXT,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_declarations_module ON declarations(module_id);
CREATE INDEX IF NOT EXISTS idx_declarations_name ON declarations(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_declarations_kind ON declarations(kind);
CREATE INDEX IF NOT EXISTS idx_annotations_declaration ON annotations(declaration_id);
CREATE INDEX IF NOT EXISTS idx_references_module ON references_(module_id);
CREATE INDEX IF NOT EXISTS idx_references_target ON references_(target_key);
CREATE INDEX IF NOT EXISTS idx_references_target_module ON references_(target_module);
CREATE INDEX IF NOT EXISTS idx_findings_module ON findings(module_id);
`
