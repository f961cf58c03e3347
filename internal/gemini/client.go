package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deepresearch/internal/config"

	"google.golang.org/genai"
)

var (
	ErrMissingAPIKey = errors.New("gemini api key is not configured")

	// ErrUnavailable wraps transport and backend failures so callers can
	// tell them apart from malformed model output.
	ErrUnavailable = errors.New("gemini backend unavailable")
)

type Client struct {
	inner       *genai.Client
	model       string
	embedModel  string
	temperature float32
	maxTokens   int32
}

func NewClient(ctx context.Context, cfg config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	inner, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		inner:       inner,
		model:       cfg.GeminiModel,
		embedModel:  cfg.GeminiEmbedModel,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxOutputTokens),
	}, nil
}

func (c *Client) generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
}

// Respond runs a single text completion and returns the full response.
func (c *Client) Respond(ctx context.Context, prompt string) (string, error) {
	resp, err := c.inner.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.generationConfig())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// RespondJSON runs a completion constrained to the given response schema
// and returns the raw JSON payload.
func (c *Client) RespondJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	genConfig := c.generationConfig()
	genConfig.ResponseMIMEType = "application/json"
	genConfig.ResponseSchema = schema

	resp, err := c.inner.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// RespondStream streams a completion, invoking onToken per delta, and
// returns the accumulated text.
func (c *Client) RespondStream(ctx context.Context, prompt string, onToken func(delta string) error) (string, error) {
	var full strings.Builder
	for resp, err := range c.inner.Models.GenerateContentStream(ctx, c.model, genai.Text(prompt), c.generationConfig()) {
		if err != nil {
			return full.String(), fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onToken != nil {
			if err := onToken(delta); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

// EmbedQuery embeds a retrieval query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of corpus chunks.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (c *Client) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := c.inner.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
		TaskType: task,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
