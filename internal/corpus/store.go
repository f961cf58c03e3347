package corpus

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	FilePath         string `json:"-"`
	FileType         string `json:"fileType"`
	FileSize         int64  `json:"fileSize"`
	ChunksCount      int    `json:"chunksCount"`
	IngestionStatus  string `json:"ingestionStatus"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

type Chunk struct {
	DocumentID string
	Index      int
	Content    string
	Embedding  []float32
}

// ScoredChunk is a retrieval hit: the chunk text plus the cosine
// similarity against the query embedding.
type ScoredChunk struct {
	DocumentID string
	Filename   string
	Content    string
	Score      float64
}

type Stats struct {
	Documents  int   `json:"documents"`
	Ingested   int   `json:"ingested"`
	Chunks     int   `json:"chunks"`
	TotalBytes int64 `json:"totalBytes"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) InsertDocument(ctx context.Context, originalFilename, storedFilename, filePath string, fileSize int64) (Document, error) {
	query := `
INSERT INTO documents (id, filename, original_filename, file_path, file_type, file_size, ingestion_status)
VALUES (?, ?, ?, ?, ?, ?, 'pending')
RETURNING id, filename, original_filename, file_path, file_type, file_size, chunks_count, ingestion_status, COALESCE(error_message, ''), created_at, updated_at;
`

	var out Document
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		strings.TrimSpace(storedFilename),
		strings.TrimSpace(originalFilename),
		strings.TrimSpace(filePath),
		FileType(originalFilename),
		fileSize,
	).Scan(
		&out.ID, &out.Filename, &out.OriginalFilename, &out.FilePath, &out.FileType,
		&out.FileSize, &out.ChunksCount, &out.IngestionStatus, &out.ErrorMessage,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return out, nil
}

func (s Store) GetDocument(ctx context.Context, id string) (Document, error) {
	query := `
SELECT id, filename, original_filename, file_path, file_type, file_size, chunks_count, ingestion_status, COALESCE(error_message, ''), created_at, updated_at
FROM documents WHERE id = ? LIMIT 1;
`

	var out Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&out.ID, &out.Filename, &out.OriginalFilename, &out.FilePath, &out.FileType,
		&out.FileSize, &out.ChunksCount, &out.IngestionStatus, &out.ErrorMessage,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return out, nil
}

func (s Store) ListDocuments(ctx context.Context) ([]Document, error) {
	query := `
SELECT id, filename, original_filename, file_path, file_type, file_size, chunks_count, ingestion_status, COALESCE(error_message, ''), created_at, updated_at
FROM documents ORDER BY created_at DESC, id;
`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0, 16)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FilePath, &doc.FileType,
			&doc.FileSize, &doc.ChunksCount, &doc.IngestionStatus, &doc.ErrorMessage,
			&doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s Store) DeleteDocument(ctx context.Context, id string) (Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?;`, id); err != nil {
		return Document{}, fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?;`, id); err != nil {
		return Document{}, fmt.Errorf("delete document: %w", err)
	}
	return doc, nil
}

func (s Store) SetIngestionStatus(ctx context.Context, id, status, errorMessage string, chunksCount int) error {
	query := `
UPDATE documents
SET ingestion_status = ?, error_message = NULLIF(?, ''), chunks_count = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`
	result, err := s.db.ExecContext(ctx, query, status, strings.TrimSpace(errorMessage), chunksCount, id)
	if err != nil {
		return fmt.Errorf("update ingestion status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceChunks swaps the stored chunks for a document inside one
// transaction so retrieval never sees a half-ingested corpus.
func (s Store) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?;`, documentID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	insert := `INSERT INTO chunks (id, document_id, chunk_index, content, embedding) VALUES (?, ?, ?, ?, ?);`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, insert,
			uuid.NewString(), documentID, chunk.Index, chunk.Content, encodeVector(chunk.Embedding),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// Search ranks every ingested chunk by cosine similarity against the
// query embedding and returns the top k.
func (s Store) Search(ctx context.Context, queryVec []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	query := `
SELECT c.document_id, d.original_filename, c.content, c.embedding
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.ingestion_status = 'completed' AND c.embedding IS NOT NULL;
`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	defer rows.Close()

	hits := make([]ScoredChunk, 0, 64)
	for rows.Next() {
		var hit ScoredChunk
		var blob []byte
		if err := rows.Scan(&hit.DocumentID, &hit.Filename, &hit.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		embedding, err := decodeVector(blob)
		if err != nil {
			continue
		}
		hit.Score = cosineSimilarity(queryVec, embedding)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Filename < hits[j].Filename
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	query := `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN ingestion_status = 'completed' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(chunks_count), 0),
  COALESCE(SUM(file_size), 0)
FROM documents;
`
	if err := s.db.QueryRowContext(ctx, query).Scan(&out.Documents, &out.Ingested, &out.Chunks, &out.TotalBytes); err != nil {
		return Stats{}, fmt.Errorf("corpus stats: %w", err)
	}
	return out, nil
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, errors.New("malformed embedding blob")
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
