// Package app assembles the application: configuration, logging,
// tracing, database, model provider, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/boganlabs/bogan/internal/api"
	"github.com/boganlabs/bogan/internal/assessment"
	"github.com/boganlabs/bogan/internal/config"
	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/database"
	"github.com/boganlabs/bogan/internal/guideline"
	"github.com/boganlabs/bogan/internal/interview"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
	"github.com/boganlabs/bogan/internal/observability"
	"github.com/boganlabs/bogan/internal/translate"
)

// Server timeouts. The write timeout is generous because a full
// generation turn streams over one SSE response.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// modelRateLimit caps outbound model calls per second across the
// process, with headroom for short bursts.
const (
	modelRateLimit = 5
	modelRateBurst = 10
)

// App is the assembled application.
type App struct {
	Config        *config.Config
	Logger        log.Logger
	Pool          *pgxpool.Pool
	Conversations *conversation.Store
	Guidelines    *guideline.Store
	Orchestrator  *interview.Orchestrator
	Embedder      llm.Embedder

	server       *http.Server
	otelShutdown func(context.Context) error
}

// Setup validates the configuration, runs migrations, and wires every
// component. Call Close to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(context.Background()); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelShutdown = observability.Setup(ctx, cfg.Tracing, logger)

	if err := database.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.Pool = pool

	generator, embedder, err := provideModelProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	a.Conversations = conversation.NewStore(pool, logger)
	a.Guidelines = guideline.NewStore(pool)

	limiter := rate.NewLimiter(rate.Limit(modelRateLimit), modelRateBurst)
	retryGen := interview.NewRetryGenerator(generator, interview.DefaultRetryConfig(), limiter, logger)

	// The translator keeps the raw generator: it carries its own
	// single-retry policy and must fail fast so the patient can resend.
	translator := translate.NewGateway(generator, cfg.ModelName, logger)
	synthesizer := assessment.NewSynthesizer(retryGen, cfg.ModelName, cfg.MaxTokens, logger)
	retriever := guideline.NewRetriever(a.Guidelines, embedder, logger)

	orch, err := interview.New(interview.Config{
		Generator:       generator,
		Store:           a.Conversations,
		Retriever:       retriever,
		Synthesizer:     synthesizer,
		Translator:      translator,
		Logger:          logger,
		Model:           cfg.ModelName,
		ExtractionModel: cfg.ExtractionModel,
		MaxTokens:       cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Interviewer: orch,
		Store:       a.Conversations,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return a, nil
}

// provideModelProvider constructs the configured provider adapter. Both
// adapters serve generation and embeddings.
func provideModelProvider(ctx context.Context, cfg *config.Config) (llm.TextGenerator, llm.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.EmbedderModel)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gemini client: %w", err)
		}
		return client, client, nil
	case config.ProviderOpenAI:
		client := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbedderModel)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("HTTP server ready",
		"addr", a.server.Addr,
		"api", "/api/conversations",
		"health", "/healthz, /readyz",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// Close releases application resources in reverse setup order.
func (a *App) Close(ctx context.Context) error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			return fmt.Errorf("flushing traces: %w", err)
		}
	}
	return nil
}
