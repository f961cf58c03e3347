package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"deepresearch/internal/config"
	"deepresearch/internal/corpus"
	"deepresearch/internal/research"
	"deepresearch/internal/session"
)

// Researcher runs one research request; the research.Controller in
// production, a scripted stub in tests.
type Researcher interface {
	Run(ctx context.Context, req research.Request) (research.Result, error)
	Stream(ctx context.Context, req research.Request) <-chan research.Event
}

// Ingestor turns one uploaded document into searchable chunks.
type Ingestor interface {
	Ingest(ctx context.Context, documentID string) error
}

type Handler struct {
	cfg        config.Config
	db         *sql.DB
	sessions   session.Store
	documents  corpus.Store
	ingestor   Ingestor
	researcher Researcher
}

func NewHandler(cfg config.Config, db *sql.DB, sessions session.Store, documents corpus.Store, ingestor Ingestor, researcher Researcher) Handler {
	return Handler{
		cfg:        cfg,
		db:         db,
		sessions:   sessions,
		documents:  documents,
		ingestor:   ingestor,
		researcher: researcher,
	}
}

func (h Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
