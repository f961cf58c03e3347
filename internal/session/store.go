package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	IsArchived   bool   `json:"isArchived"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type Message struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionId"`
	Role           string   `json:"role"`
	Content        string   `json:"content"`
	Sources        []string `json:"sources,omitempty"`
	DocumentsUsed  int      `json:"documentsUsed,omitempty"`
	RelevanceScore float64  `json:"relevanceScore,omitempty"`
	Iterations     int      `json:"iterations,omitempty"`
	CreatedAt      string   `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) CreateSession(ctx context.Context, title string) (Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New research"
	}

	query := `
INSERT INTO research_sessions (id, title)
VALUES (?, ?)
RETURNING id, title, is_archived, created_at, updated_at;
`

	var out Session
	if err := s.db.QueryRowContext(ctx, query, uuid.NewString(), title).Scan(
		&out.ID,
		&out.Title,
		&out.IsArchived,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return out, nil
}

func (s Store) GetSession(ctx context.Context, id string) (Session, error) {
	query := `
SELECT s.id, s.title, s.is_archived, s.created_at, s.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
FROM research_sessions s
WHERE s.id = ?
LIMIT 1;
`

	var out Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&out.ID,
		&out.Title,
		&out.IsArchived,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.MessageCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// ListSessions returns non-archived sessions, most recently updated
// first. Set includeArchived to list everything.
func (s Store) ListSessions(ctx context.Context, includeArchived bool) ([]Session, error) {
	query := `
SELECT s.id, s.title, s.is_archived, s.created_at, s.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
FROM research_sessions s
WHERE (? OR s.is_archived = 0)
ORDER BY s.updated_at DESC, s.id;
`

	rows, err := s.db.QueryContext(ctx, query, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var item Session
		if err := rows.Scan(&item.ID, &item.Title, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt, &item.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, item)
	}
	return sessions, rows.Err()
}

func (s Store) RenameSession(ctx context.Context, id, title string) (Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Session{}, errors.New("title is required")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE research_sessions SET title = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`, title, id)
	if err != nil {
		return Session{}, fmt.Errorf("rename session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Session{}, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

func (s Store) SetArchived(ctx context.Context, id string, archived bool) (Session, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE research_sessions SET is_archived = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`, archived, id)
	if err != nil {
		return Session{}, fmt.Errorf("archive session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Session{}, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

// DeleteSession removes a session and, via the schema cascade, its
// messages.
func (s Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM research_sessions WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) TouchSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s Store) InsertMessage(ctx context.Context, message Message) (Message, error) {
	if strings.TrimSpace(message.SessionID) == "" {
		return Message{}, errors.New("session id is required")
	}
	if message.Role != "user" && message.Role != "assistant" {
		return Message{}, fmt.Errorf("unsupported message role %q", message.Role)
	}

	var sourcesJSON any
	if len(message.Sources) > 0 {
		encoded, err := json.Marshal(message.Sources)
		if err != nil {
			return Message{}, fmt.Errorf("encode sources: %w", err)
		}
		sourcesJSON = string(encoded)
	}

	query := `
INSERT INTO messages (id, session_id, role, content, sources, documents_used, relevance_score, iterations)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, session_id, role, content, created_at;
`

	var out Message
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		message.SessionID,
		message.Role,
		message.Content,
		sourcesJSON,
		message.DocumentsUsed,
		message.RelevanceScore,
		message.Iterations,
	).Scan(&out.ID, &out.SessionID, &out.Role, &out.Content, &out.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	out.Sources = message.Sources
	out.DocumentsUsed = message.DocumentsUsed
	out.RelevanceScore = message.RelevanceScore
	out.Iterations = message.Iterations

	if err := s.TouchSession(ctx, message.SessionID); err != nil {
		return Message{}, err
	}
	return out, nil
}

func (s Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `
SELECT id, session_id, role, content, COALESCE(sources, ''), documents_used, relevance_score, iterations, created_at
FROM messages
WHERE session_id = ?
ORDER BY created_at, id;
`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			item       Message
			rawSources string
		)
		if err := rows.Scan(
			&item.ID,
			&item.SessionID,
			&item.Role,
			&item.Content,
			&rawSources,
			&item.DocumentsUsed,
			&item.RelevanceScore,
			&item.Iterations,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if rawSources != "" {
			if err := json.Unmarshal([]byte(rawSources), &item.Sources); err != nil {
				return nil, fmt.Errorf("decode sources for message %s: %w", item.ID, err)
			}
		}
		messages = append(messages, item)
	}
	return messages, rows.Err()
}
