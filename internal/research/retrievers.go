package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"deepresearch/internal/brave"
	"deepresearch/internal/corpus"
)

// ChunkSearcher is the corpus surface the engine consumes.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]corpus.ScoredChunk, error)
}

// CorpusRetriever adapts vector search over ingested documents into
// evidence items keyed by filename.
type CorpusRetriever struct {
	searcher ChunkSearcher
}

func NewCorpusRetriever(searcher ChunkSearcher) CorpusRetriever {
	return CorpusRetriever{searcher: searcher}
}

func (r CorpusRetriever) Retrieve(ctx context.Context, subQuestion string, topK int) ([]EvidenceItem, error) {
	if r.searcher == nil {
		return nil, fmt.Errorf("%w: corpus searcher not configured", ErrRetrievalUnavailable)
	}

	hits, err := r.searcher.Search(ctx, subQuestion, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	items := make([]EvidenceItem, 0, len(hits))
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Content)
		if text == "" {
			continue
		}
		items = append(items, EvidenceItem{
			SourceID: hit.Filename,
			Title:    hit.Filename,
			Text:     text,
			Score:    hit.Score,
			Origin:   OriginCorpus,
		})
	}
	return items, nil
}

// WebSearcher is the web search surface the engine consumes.
type WebSearcher interface {
	Search(ctx context.Context, query string, count int) ([]brave.SearchResult, error)
}

// WebRetriever searches the web and reads the result pages. Pages that
// fail to fetch fall back to their search snippet; only a failed search
// itself is a backend failure. Page reads are spaced by pageDelay
// across all concurrent sub-questions.
type WebRetriever struct {
	searcher WebSearcher
	reader   Reader
	pacer    *fetchPacer
}

func NewWebRetriever(searcher WebSearcher, reader Reader, pageDelay time.Duration) WebRetriever {
	return WebRetriever{searcher: searcher, reader: reader, pacer: newFetchPacer(pageDelay)}
}

func (r WebRetriever) Retrieve(ctx context.Context, subQuestion string, topK int) ([]EvidenceItem, error) {
	if r.searcher == nil {
		return nil, fmt.Errorf("%w: web searcher not configured", ErrRetrievalUnavailable)
	}

	results, err := r.searcher.Search(ctx, subQuestion, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	items := make([]EvidenceItem, 0, len(results))
	for i, result := range results {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		item := EvidenceItem{
			SourceID: result.URL,
			Title:    result.Title,
			Text:     result.Snippet,
			Score:    positionScore(i),
			Origin:   OriginWeb,
		}

		if r.reader != nil {
			if err := r.pacer.wait(ctx); err != nil {
				return items, err
			}
			readResult, readErr := r.reader.Read(ctx, result.URL)
			if readErr != nil {
				log.Printf("web page read skipped: url=%s status=%s err=%v", result.URL, readResult.FetchStatus, readErr)
			} else {
				item.Text = readResult.Text
				if title := strings.TrimSpace(readResult.Title); title != "" {
					item.Title = title
				}
			}
		}

		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// positionScore maps search rank onto the same 0..1 scale as cosine
// similarity so merged evidence sorts sanely.
func positionScore(rank int) float64 {
	score := 0.9 - float64(rank)*0.1
	if score < 0.1 {
		return 0.1
	}
	return score
}
