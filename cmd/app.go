package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studylens/studylens/db"
	"github.com/studylens/studylens/internal/answer"
	"github.com/studylens/studylens/internal/config"
	"github.com/studylens/studylens/internal/knowledge"
	"github.com/studylens/studylens/internal/llm"
	"github.com/studylens/studylens/internal/log"
	"github.com/studylens/studylens/internal/rag"
	"github.com/studylens/studylens/internal/ratelimit"
	"github.com/studylens/studylens/internal/session"
	"github.com/studylens/studylens/internal/storage"
)

// app holds the wired application graph shared by the commands.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	pool     *pgxpool.Pool
	store    *knowledge.Store
	sessions *session.Store
	engine   *answer.Engine

	providers []string
}

// newApp loads configuration, migrates and connects storage, constructs the
// provider clients, and assembles the answer engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Config{})

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	pool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, pool: pool}
	if err := a.wire(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	generators := make(map[llm.Provider]llm.Generator)

	// Gemini also provides embeddings, so it is constructed whenever a key
	// is present, regardless of the generation provider.
	var gemini *llm.Gemini
	if a.cfg.GeminiAPIKey != "" {
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:      a.cfg.GeminiAPIKey,
			Model:       a.cfg.GeminiModel,
			EmbedModel:  a.cfg.EmbedModel,
			Temperature: a.cfg.Temperature,
			Logger:      a.logger,
		})
		if err != nil {
			return fmt.Errorf("gemini client: %w", err)
		}
		gemini = g
		generators[llm.ProviderGemini] = g
		a.providers = append(a.providers, llm.ProviderGemini.String())
	}
	if gemini == nil {
		return fmt.Errorf("GEMINI_API_KEY is required: embeddings use the Gemini API for every provider")
	}

	if a.cfg.OpenAIAPIKey != "" || a.cfg.OpenAIBaseURL != "" {
		o, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      a.cfg.OpenAIAPIKey,
			BaseURL:     a.cfg.OpenAIBaseURL,
			Model:       a.cfg.OpenAIModel,
			Temperature: float64(a.cfg.Temperature),
			Logger:      a.logger,
		})
		if err != nil {
			return fmt.Errorf("openai client: %w", err)
		}
		generators[llm.ProviderOpenAI] = o
		a.providers = append(a.providers, llm.ProviderOpenAI.String())
	}

	store, err := knowledge.New(knowledge.Config{
		Querier:  knowledge.NewPGQuerier(a.pool),
		Embedder: gemini,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.store = store
	a.sessions = session.NewStore(a.pool)

	engine, err := answer.New(answer.Config{
		Gate:          ratelimit.New(a.cfg.RateMaxCalls, a.cfg.RatePeriod),
		Resolver:      session.NewResolver(a.sessions, a.logger),
		Retriever:     rag.NewRetriever(store, a.logger),
		Assembler:     rag.NewAssembler(a.cfg.PerChunkCap, a.cfg.ContextBudget),
		Generators:    generators,
		Logger:        a.logger,
		SentenceDelay: a.cfg.SentenceDelay,
	})
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

func (a *app) close() {
	a.pool.Close()
}

// defaultProvider returns the configured provider, parsed.
func (a *app) defaultProvider() (llm.Provider, error) {
	return llm.ParseProvider(a.cfg.Provider)
}
