package research

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Route says which evidence backends a run consults.
type Route string

const (
	// RouteAuto lets the planner pick during query analysis.
	RouteAuto Route = "auto"
	RouteRAG  Route = "rag"
	RouteWeb  Route = "web"
	RouteBoth Route = "both"
)

func (r Route) includesRAG() bool {
	return r == RouteRAG || r == RouteBoth
}

func (r Route) includesWeb() bool {
	return r == RouteWeb || r == RouteBoth
}

// ErrRetrievalUnavailable marks backend failures, as opposed to backends
// that answered with zero matches.
var ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one research run. Zero values fall back to the
// engine defaults.
type Request struct {
	Query                string
	History              []Turn
	SourceHint           Route
	IterationBudget      int
	TopK                 int
	SufficiencyThreshold float64
}

func (req Request) withDefaults() Request {
	req.Query = strings.TrimSpace(req.Query)
	if req.SourceHint == "" {
		req.SourceHint = RouteAuto
	}
	if req.IterationBudget < 1 {
		req.IterationBudget = defaultIterationBudget
	}
	if req.TopK < 1 {
		req.TopK = defaultTopK
	}
	if req.SufficiencyThreshold <= 0 || req.SufficiencyThreshold > 10 {
		req.SufficiencyThreshold = defaultSufficiencyThreshold
	}
	return req
}

// EvidenceItem is one retrieved passage. SourceID is a document filename
// for corpus evidence and a URL for web evidence.
type EvidenceItem struct {
	SourceID string
	Title    string
	Text     string
	Score    float64
	Origin   string
}

const (
	OriginCorpus = "corpus"
	OriginWeb    = "web"
)

type Plan struct {
	Route        Route
	SubQuestions []string
	Degraded     bool
}

type Judgment struct {
	Score          float64
	Sufficient     bool
	MissingAspects []string
	Degraded       bool
}

// Result is the terminal output of a run.
type Result struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	DocumentsUsed  int      `json:"documentsUsed"`
	RelevanceScore float64  `json:"relevanceScore"`
	Iterations     int      `json:"iterations"`
}

// PromptResponder answers one prompt with text, JSON payloads included.
type PromptResponder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// StreamResponder streams a completion and returns the accumulated text.
type StreamResponder interface {
	RespondStream(ctx context.Context, prompt string, onToken func(delta string) error) (string, error)
}

// Retriever fetches evidence for one sub-question.
type Retriever interface {
	Retrieve(ctx context.Context, subQuestion string, topK int) ([]EvidenceItem, error)
}

// Reader fetches and extracts one web page.
type Reader interface {
	Read(ctx context.Context, rawURL string) (ReadResult, error)
}

type ReadResult struct {
	URL         string
	FinalURL    string
	Title       string
	ContentType string
	Text        string
	Snippet     string
	FetchStatus string
	FetchedAt   time.Time
	Truncated   bool
}
