package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deepresearch/internal/brave"
	"deepresearch/internal/config"
	"deepresearch/internal/corpus"
	"deepresearch/internal/db"
	"deepresearch/internal/gemini"
	"deepresearch/internal/httpapi"
	"deepresearch/internal/research"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	geminiClient, err := gemini.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("init gemini client: %v", err)
	}

	documents := corpus.NewStore(database)
	ingestor := corpus.NewIngestor(documents, geminiClient, corpus.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap))
	searcher := corpus.NewSearcher(documents, geminiClient)

	reader := research.NewHTTPReader(research.ReaderConfig{
		RequestTimeout: cfg.RequestTimeout,
		UserAgent:      cfg.UserAgent,
	}, nil)

	controller := research.NewController(
		research.NewPlanner(geminiClient.RouteResponder(), geminiClient.SubQuestionResponder()),
		research.NewJudge(geminiClient.RelevanceResponder()),
		research.NewSynthesizer(geminiClient),
		research.NewCorpusRetriever(searcher),
		research.NewWebRetriever(brave.NewClient(cfg, nil), reader, cfg.RateLimitDelay),
		research.Config{
			IterationBudget:      cfg.MaxIterations,
			TopK:                 cfg.RetrievalTopK,
			SufficiencyThreshold: cfg.RelevanceThreshold,
		},
	)

	handler := httpapi.NewRouter(cfg, database, ingestor, controller)

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.ResearchTimeoutSeconds+10) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s environment=%s", cfg.ListenAddress(), cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
