package corpus

import (
	"context"
	"fmt"
	"log"
	"time"
)

const embedBatchSize = 64

// DocumentEmbedder turns chunk texts into retrieval-document vectors.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Ingestor struct {
	store    Store
	embedder DocumentEmbedder
	chunker  Chunker
}

func NewIngestor(store Store, embedder DocumentEmbedder, chunker Chunker) Ingestor {
	return Ingestor{store: store, embedder: embedder, chunker: chunker}
}

// Ingest runs the extract, chunk, embed, store pipeline for one document
// and records the outcome on the document row.
func (ing Ingestor) Ingest(ctx context.Context, documentID string) error {
	startedAt := time.Now()

	doc, err := ing.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := ing.store.SetIngestionStatus(ctx, doc.ID, StatusProcessing, "", 0); err != nil {
		return err
	}

	chunksStored, err := ing.run(ctx, doc)
	if err != nil {
		log.Printf("ingestion failed: document_id=%s file=%s err=%v elapsed_ms=%d",
			doc.ID, doc.OriginalFilename, err, time.Since(startedAt).Milliseconds())
		if statusErr := ing.store.SetIngestionStatus(ctx, doc.ID, StatusFailed, err.Error(), 0); statusErr != nil {
			log.Printf("ingestion status update failed: document_id=%s err=%v", doc.ID, statusErr)
		}
		return err
	}

	if err := ing.store.SetIngestionStatus(ctx, doc.ID, StatusCompleted, "", chunksStored); err != nil {
		return err
	}

	log.Printf("ingestion completed: document_id=%s file=%s chunks=%d elapsed_ms=%d",
		doc.ID, doc.OriginalFilename, chunksStored, time.Since(startedAt).Milliseconds())
	return nil
}

func (ing Ingestor) run(ctx context.Context, doc Document) (int, error) {
	text, err := ExtractFile(doc.FilePath)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	pieces := ing.chunker.Split(text)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	chunks := make([]Chunk, 0, len(pieces))
	for batchStart := 0; batchStart < len(pieces); batchStart += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(pieces) {
			batchEnd = len(pieces)
		}
		batch := pieces[batchStart:batchEnd]

		vectors, err := ing.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("embed batch at %d: %w", batchStart, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, content := range batch {
			chunks = append(chunks, Chunk{
				DocumentID: doc.ID,
				Index:      batchStart + i,
				Content:    content,
				Embedding:  vectors[i],
			})
		}
	}

	if err := ing.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
