package corpus

import (
	"context"
	"database/sql"
	"testing"

	"deepresearch/internal/db"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.0}

	decoded, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("expected %d values, got %d", len(vec), len(decoded))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("value %d mismatch: %v != %v", i, decoded[i], vec[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.InsertDocument(ctx, "notes.txt", "abc-notes.txt", "/tmp/abc-notes.txt", 42)
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}

	chunks := []Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "about cats", Embedding: []float32{1, 0}},
		{DocumentID: doc.ID, Index: 1, Content: "about dogs", Embedding: []float32{0, 1}},
		{DocumentID: doc.ID, Index: 2, Content: "mixed pets", Embedding: []float32{1, 1}},
	}
	if err := store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("replace chunks: %v", err)
	}
	if err := store.SetIngestionStatus(ctx, doc.ID, StatusCompleted, "", len(chunks)); err != nil {
		t.Fatalf("set status: %v", err)
	}

	hits, err := store.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "about cats" {
		t.Fatalf("expected closest chunk first, got %q", hits[0].Content)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Filename != "notes.txt" {
		t.Fatalf("expected original filename on hit, got %q", hits[0].Filename)
	}
}

func TestSearchSkipsUningestedDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.InsertDocument(ctx, "draft.md", "abc-draft.md", "/tmp/abc-draft.md", 10)
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if err := store.ReplaceChunks(ctx, doc.ID, []Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "pending text", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("replace chunks: %v", err)
	}

	hits, err := store.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits for pending document, got %d", len(hits))
	}
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.InsertDocument(ctx, "gone.txt", "abc-gone.txt", "/tmp/abc-gone.txt", 5)
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if err := store.ReplaceChunks(ctx, doc.ID, []Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "text", Embedding: []float32{1}},
	}); err != nil {
		t.Fatalf("replace chunks: %v", err)
	}

	if _, err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetDocument(ctx, doc.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Documents != 0 {
		t.Fatalf("expected empty corpus, got %+v", stats)
	}
}
