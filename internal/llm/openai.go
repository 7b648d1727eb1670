package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/studylens/studylens/internal/log"
)

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional; set to e.g. http://localhost:11434/v1 for Ollama
	Model       string // e.g. "gpt-4o-mini" or a local model name
	Temperature float64

	// Limiter smooths outbound calls (nil = 2 req/s, burst 4).
	Limiter *rate.Limiter

	Logger log.Logger
}

// OpenAI streams completions from any OpenAI-compatible chat endpoint.
// It implements Generator.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	limiter     *rate.Limiter
	logger      log.Logger
}

// NewOpenAI creates an OpenAI client. A base URL without an API key is
// allowed (local Ollama); neither configured is ErrUnavailable.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai API key or base URL not configured", ErrUnavailable)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(2, 4)
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
	}, nil
}

// Stream implements Generator.
func (o *OpenAI) Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := o.limiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("rate limiter wait: %w", err))
			return
		}

		messages := []openai.ChatCompletionMessageParamUnion{}
		if systemPrompt != "" {
			messages = append(messages, openai.SystemMessage(systemPrompt))
		}
		messages = append(messages, openai.UserMessage(userPrompt))

		stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(o.model),
			Messages:    messages,
			Temperature: openai.Float(o.temperature),
		})
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", o.classify(err))
		}
	}
}

// classify maps SDK errors onto the package error kinds.
func (o *OpenAI) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if IsRateLimited(err) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("openai: %w", err)
}
