package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort                = "8080"
	defaultGeminiModel         = "gemini-2.0-flash"
	defaultGeminiEmbedModel    = "gemini-embedding-001"
	defaultBraveBaseURL        = "https://api.search.brave.com/res/v1"
	defaultUploadDir           = "/tmp/research-uploads"
	defaultMaxIterations       = 3
	defaultRetrievalTopK       = 5
	defaultRelevanceThreshold  = 7.0
	defaultChunkSize           = 1000
	defaultChunkOverlap        = 200
	defaultMaxFileSizeMB       = 50
	defaultMaxOutputTokens     = 4096
	defaultTemperature         = 0.1
	defaultRequestTimeoutSecs  = 30
	defaultRateLimitDelayMs    = 1000
	defaultResearchTimeoutSecs = 180
	defaultUserAgent           = "deepresearch-bot/1.0"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string

	DatabaseURL       string
	DatabaseAuthToken string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiEmbedModel string
	Temperature      float64
	MaxOutputTokens  int

	BraveAPIKey  string
	BraveBaseURL string

	MaxIterations      int
	RetrievalTopK      int
	RelevanceThreshold float64

	ChunkSize      int
	ChunkOverlap   int
	MaxFileSizeMB  int
	LocalUploadDir string

	UserAgent              string
	RequestTimeout         time.Duration
	RateLimitDelay         time.Duration
	ResearchTimeoutSeconds int
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func Load() (Config, error) {
	cfg := Config{
		Port:                   envOrDefault("PORT", defaultPort),
		Environment:            envOrDefault("APP_ENV", "development"),
		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken:      strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		GeminiAPIKey:           strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:            envOrDefault("GEMINI_MODEL", defaultGeminiModel),
		GeminiEmbedModel:       envOrDefault("GEMINI_EMBED_MODEL", defaultGeminiEmbedModel),
		Temperature:            floatOrDefault("TEMPERATURE", defaultTemperature),
		MaxOutputTokens:        intOrDefault("MAX_TOKENS", defaultMaxOutputTokens),
		BraveAPIKey:            strings.TrimSpace(os.Getenv("BRAVE_API_KEY")),
		BraveBaseURL:           envOrDefault("BRAVE_BASE_URL", defaultBraveBaseURL),
		MaxIterations:          intOrDefault("MAX_ITERATIONS", defaultMaxIterations),
		RetrievalTopK:          intOrDefault("RETRIEVAL_TOP_K", defaultRetrievalTopK),
		RelevanceThreshold:     floatOrDefault("RELEVANCE_THRESHOLD", defaultRelevanceThreshold),
		ChunkSize:              intOrDefault("CHUNK_SIZE", defaultChunkSize),
		ChunkOverlap:           intOrDefault("CHUNK_OVERLAP", defaultChunkOverlap),
		MaxFileSizeMB:          intOrDefault("MAX_FILE_SIZE_MB", defaultMaxFileSizeMB),
		LocalUploadDir:         envOrDefault("LOCAL_UPLOAD_DIR", defaultUploadDir),
		UserAgent:              envOrDefault("RESEARCH_USER_AGENT", defaultUserAgent),
		ResearchTimeoutSeconds: intOrDefault("RESEARCH_TIMEOUT_SECONDS", defaultResearchTimeoutSecs),
	}

	cfg.RequestTimeout = time.Duration(intOrDefault("REQUEST_TIMEOUT_SECONDS", defaultRequestTimeoutSecs)) * time.Second
	cfg.RateLimitDelay = time.Duration(intOrDefault("RATE_LIMIT_DELAY_MS", defaultRateLimitDelayMs)) * time.Millisecond

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.MaxIterations < 1 {
		return Config{}, errors.New("MAX_ITERATIONS must be >= 1")
	}
	if cfg.RetrievalTopK < 1 {
		return Config{}, errors.New("RETRIEVAL_TOP_K must be >= 1")
	}
	if cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 10 {
		return Config{}, errors.New("RELEVANCE_THRESHOLD must be between 0 and 10")
	}
	if cfg.ChunkSize < 1 {
		return Config{}, errors.New("CHUNK_SIZE must be >= 1")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return Config{}, errors.New("CHUNK_OVERLAP must be >= 0 and smaller than CHUNK_SIZE")
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
