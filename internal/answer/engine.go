package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studylens/studylens/internal/knowledge"
	"github.com/studylens/studylens/internal/llm"
	"github.com/studylens/studylens/internal/log"
	"github.com/studylens/studylens/internal/rag"
	"github.com/studylens/studylens/internal/ratelimit"
	"github.com/studylens/studylens/internal/session"
)

// DefaultMaxSources caps the provenance list sent after an answer.
const DefaultMaxSources = 5

// ErrNoRelevantDocuments is the terminal failure when retrieval finds no
// grounding for the question.
var ErrNoRelevantDocuments = errors.New("no relevant documents found")

// ScopeResolver maps a session ID to a retrieval scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, sessionID string) session.Scope
}

// Retriever finds ranked chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, gen llm.Generator, question string, k int, scope []string) ([]knowledge.SearchResult, error)
}

// Query is one question to answer.
type Query struct {
	Question  string
	K         int
	Provider  llm.Provider
	SessionID string
}

// Config wires an Engine.
type Config struct {
	Gate       *ratelimit.Gate
	Resolver   ScopeResolver
	Retriever  Retriever
	Assembler  *rag.Assembler
	Generators map[llm.Provider]llm.Generator
	Logger     log.Logger

	// SentenceDelay paces Response events so terminals render the answer
	// progressively. Zero disables pacing.
	SentenceDelay time.Duration

	// MaxSources overrides DefaultMaxSources when positive.
	MaxSources int
}

func (c *Config) validate() error {
	if c.Gate == nil {
		return errors.New("gate is required")
	}
	if c.Resolver == nil {
		return errors.New("resolver is required")
	}
	if c.Retriever == nil {
		return errors.New("retriever is required")
	}
	if c.Assembler == nil {
		return errors.New("assembler is required")
	}
	if len(c.Generators) == 0 {
		return errors.New("at least one generator is required")
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.MaxSources <= 0 {
		c.MaxSources = DefaultMaxSources
	}
	return nil
}

// Engine answers questions as streams of events.
type Engine struct {
	gate          *ratelimit.Gate
	resolver      ScopeResolver
	retriever     Retriever
	assembler     *rag.Assembler
	generators    map[llm.Provider]llm.Generator
	logger        log.Logger
	sentenceDelay time.Duration
	maxSources    int
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("answer engine config: %w", err)
	}
	return &Engine{
		gate:          cfg.Gate,
		resolver:      cfg.Resolver,
		retriever:     cfg.Retriever,
		assembler:     cfg.Assembler,
		generators:    cfg.Generators,
		logger:        cfg.Logger,
		sentenceDelay: cfg.SentenceDelay,
		maxSources:    cfg.MaxSources,
	}, nil
}

// Generate answers one query. The returned channel yields Response events
// sentence by sentence, then Sources, then Done; an Error event is terminal
// and nothing follows it. The channel is always closed. Cancelling ctx
// stops the stream promptly.
func (e *Engine) Generate(ctx context.Context, q Query) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		e.run(ctx, q, events)
	}()
	return events
}

func (e *Engine) run(ctx context.Context, q Query, events chan<- Event) {
	if q.Question == "" {
		e.send(ctx, events, Event{Type: EventError, Content: "question must not be empty"})
		return
	}

	gen, ok := e.generators[q.Provider]
	if !ok {
		e.send(ctx, events, Event{Type: EventError,
			Content: fmt.Sprintf("provider %q is not available", q.Provider)})
		return
	}

	// Admission: when the window is exhausted, tell the caller and wait it
	// out rather than failing the question.
	if !e.gate.CanAdmit() {
		wait := e.gate.TimeUntilAvailable()
		e.logger.Info("rate limit window exhausted", "wait", wait)
		if !e.send(ctx, events, Event{Type: EventWarning,
			Content: fmt.Sprintf("Rate limit reached. Waiting %.0f seconds before answering.", wait.Seconds())}) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	scope := e.resolver.Resolve(ctx, q.SessionID)

	results, err := e.retriever.Retrieve(ctx, gen, q.Question, q.K, scope.Documents)
	if err != nil {
		e.logger.Error("retrieval failed", "error", err)
		e.send(ctx, events, Event{Type: EventError, Content: "retrieval failed: " + err.Error()})
		return
	}

	packed := e.assembler.Pack(results)
	if len(results) == 0 || packed == "" {
		e.send(ctx, events, Event{Type: EventError, Content: ErrNoRelevantDocuments.Error()})
		return
	}

	// Count the admission at the last moment so waiting questions do not
	// consume the window before their provider call.
	e.gate.Admit()

	if !e.streamAnswer(ctx, gen, q, packed, events) {
		return
	}

	if !e.send(ctx, events, Event{Type: EventSources, Sources: e.collectSources(results)}) {
		return
	}
	e.send(ctx, events, Event{Type: EventDone})
}

// streamAnswer relays the provider stream sentence by sentence. Returns
// false when the stream failed or the caller went away; an Error event has
// already been sent for failures.
func (e *Engine) streamAnswer(ctx context.Context, gen llm.Generator, q Query, packed string, events chan<- Event) bool {
	provider := q.Provider.String()
	seg := &segmenter{}
	for fragment, err := range gen.Stream(ctx, systemPrompt, userPrompt(packed, q.Question)) {
		if err != nil {
			// Mid-stream failures are terminal: part of the answer may
			// already be out, so a retry would duplicate text.
			e.logger.Error("generation stream failed", "error", err)
			content := "generation failed: " + err.Error()
			if llm.IsRateLimited(err) {
				content = "provider rate limit exceeded, please retry shortly"
			}
			e.send(ctx, events, Event{Type: EventError, Content: content})
			return false
		}
		for _, sentence := range seg.feed(fragment) {
			if !e.sendPaced(ctx, events, sentence, provider) {
				return false
			}
		}
	}
	if rest := seg.flush(); rest != "" {
		if !e.sendPaced(ctx, events, rest, provider) {
			return false
		}
	}
	return true
}

func (e *Engine) sendPaced(ctx context.Context, events chan<- Event, sentence, provider string) bool {
	if !e.send(ctx, events, Event{Type: EventResponse, Content: sentence, Provider: provider}) {
		return false
	}
	if e.sentenceDelay > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.sentenceDelay):
		}
	}
	return true
}

// collectSources returns the answer's provenance, one entry per document in
// rank order, capped at maxSources.
func (e *Engine) collectSources(results []knowledge.SearchResult) []Source {
	seen := make(map[string]bool, len(results))
	sources := make([]Source, 0, e.maxSources)
	for _, res := range results {
		key := res.Metadata.DocumentUUID
		if key == "" {
			key = res.Metadata.Filename
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			Filename:   res.Metadata.Filename,
			DocumentID: res.Metadata.DocumentID,
		})
		if len(sources) == e.maxSources {
			break
		}
	}
	return sources
}

func (e *Engine) send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}
