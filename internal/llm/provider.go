// Package llm contains the text-generation provider clients and the
// capability interfaces the rest of the engine depends on.
//
// A provider is a closed enum, not an open plugin surface: the engine
// supports exactly the configured backends and selects between them with a
// switch. Both clients expose the same minimal capability — stream tokens
// for (system prompt, user prompt) — so everything above this package is
// provider-agnostic.
package llm

import (
	"context"
	"fmt"
	"iter"
)

// Provider identifies a text-generation backend.
type Provider string

const (
	// ProviderGemini is the hosted Gemini API.
	ProviderGemini Provider = "gemini"

	// ProviderOpenAI is any OpenAI-compatible chat completion endpoint,
	// including self-hosted Ollama via a custom base URL.
	ProviderOpenAI Provider = "openai"
)

// ParseProvider converts a string to a Provider, rejecting unknown values.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownProvider, s, ProviderGemini, ProviderOpenAI)
	}
}

// String returns the wire name of the provider.
func (p Provider) String() string { return string(p) }

// Generator streams a completion for one prompt pair. The returned sequence
// yields token fragments in arrival order; a non-nil error is terminal for
// the stream. Implementations must honor ctx cancellation between yields.
type Generator interface {
	Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error]
}

// Complete drains a Generator stream into a single string. Used for small
// auxiliary completions (metadata filter extraction), not for answers.
func Complete(ctx context.Context, g Generator, systemPrompt, userPrompt string) (string, error) {
	var out []byte
	for fragment, err := range g.Stream(ctx, systemPrompt, userPrompt) {
		if err != nil {
			return "", err
		}
		out = append(out, fragment...)
	}
	return string(out), nil
}
