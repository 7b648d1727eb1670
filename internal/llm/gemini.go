package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/studylens/studylens/internal/log"
)

// EmbeddingDim is the vector dimensionality stored in pgvector.
// gemini-embedding-001 defaults to 3072 but supports Matryoshka truncation;
// the chunks table schema must match this value.
const EmbeddingDim = 768

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string  // e.g. "gemini-2.5-flash"
	EmbedModel  string  // e.g. "gemini-embedding-001"
	Temperature float32 // sampling temperature for generation

	// Limiter smooths outbound calls (nil = 2 req/s, burst 4). This is
	// pacing on top of the window quota enforced by the caller's Gate.
	Limiter *rate.Limiter

	Logger log.Logger
}

// Gemini streams completions and generates embeddings via the Gemini API.
// It implements Generator and the knowledge store's Embedder capability.
type Gemini struct {
	client      *genai.Client
	model       string
	embedModel  string
	temperature float32
	limiter     *rate.Limiter
	logger      log.Logger
}

// NewGemini creates a Gemini client. Returns ErrUnavailable when no API key
// is configured so callers can distinguish "not set up" from request errors.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key not configured", ErrUnavailable)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(2, 4)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
	}, nil
}

// Stream implements Generator.
func (g *Gemini) Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := g.limiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("rate limiter wait: %w", err))
			return
		}

		config := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(g.temperature),
		}
		if systemPrompt != "" {
			config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(userPrompt), config) {
			if err != nil {
				yield("", g.classify(err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// Embed generates an embedding for text, truncated to EmbeddingDim.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(EmbeddingDim)),
	})
	if err != nil {
		return nil, g.classify(err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

// classify maps SDK errors onto the package error kinds so callers can
// apply retry policy without string matching.
func (g *Gemini) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if IsRateLimited(err) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
