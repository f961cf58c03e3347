package httpapi

import (
	"database/sql"
	"net/http"

	"deepresearch/internal/config"
	"deepresearch/internal/corpus"
	"deepresearch/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg config.Config, db *sql.DB, ingestor Ingestor, researcher Researcher) http.Handler {
	h := NewHandler(cfg, db, session.NewStore(db), corpus.NewStore(db), ingestor, researcher)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/sessions", func(sessions chi.Router) {
			sessions.Post("/", h.CreateSession)
			sessions.Get("/", h.ListSessions)
			sessions.Route("/{sessionID}", func(one chi.Router) {
				one.Get("/", h.GetSession)
				one.Patch("/", h.UpdateSession)
				one.Delete("/", h.DeleteSession)
				one.Get("/messages", h.ListMessages)
				one.Post("/messages", h.PostMessage)
				one.Get("/stream", h.StreamMessage)
			})
		})

		v1.Route("/documents", func(documents chi.Router) {
			documents.Post("/upload", h.UploadDocument)
			documents.Get("/", h.ListDocuments)
			documents.Get("/stats", h.DocumentStats)
			documents.Route("/{documentID}", func(one chi.Router) {
				one.Get("/", h.GetDocument)
				one.Delete("/", h.DeleteDocument)
			})
		})
	})

	return r
}
