package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"deepresearch/internal/config"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func Open(cfg config.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.DatabaseAuthToken)
	if err != nil {
		return nil, err
	}

	database, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql db: %w", err)
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return database, nil
}

func buildDSN(rawURL, authToken string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("empty database url")
	}

	if strings.HasPrefix(rawURL, "file:") {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}

	if strings.HasPrefix(rawURL, "libsql://") {
		query := parsed.Query()
		if query.Get("authToken") == "" && strings.TrimSpace(authToken) != "" {
			query.Set("authToken", strings.TrimSpace(authToken))
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.String(), nil
}

// Migrate applies the schema. Statements are idempotent so startup can
// always run it.
func Migrate(ctx context.Context, database *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS research_sessions (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  is_archived INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  sources TEXT,
  documents_used INTEGER NOT NULL DEFAULT 0,
  relevance_score REAL NOT NULL DEFAULT 0,
  iterations INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session_created
  ON messages (session_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  original_filename TEXT NOT NULL,
  file_path TEXT NOT NULL,
  file_type TEXT NOT NULL,
  file_size INTEGER NOT NULL DEFAULT 0,
  chunks_count INTEGER NOT NULL DEFAULT 0,
  ingestion_status TEXT NOT NULL DEFAULT 'pending',
  error_message TEXT,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  chunk_index INTEGER NOT NULL,
  content TEXT NOT NULL,
  embedding BLOB,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document
  ON chunks (document_id, chunk_index);`,
}
