// Package app wires every semem subsystem into a running application.
//
// New connects all components from a loaded [config.Config]; Run starts the
// background decay and session-eviction tickers and blocks until its context
// is cancelled; Shutdown runs the registered closers in registration order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/semem-go/semem/internal/api"
	"github.com/semem-go/semem/internal/compose"
	"github.com/semem-go/semem/internal/config"
	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/embedclient"
	"github.com/semem-go/semem/internal/health"
	"github.com/semem-go/semem/internal/hyde"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/observe"
	"github.com/semem-go/semem/internal/resilience"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/internal/sessionregistry"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/internal/verbs"
	"github.com/semem-go/semem/pkg/memory/postgres"
)

// App owns every subsystem's lifetime and exposes the combined HTTP handler.
type App struct {
	cfg *config.Config

	namespace    *namespace.Factory
	triples      *triplestore.Store
	store        *postgres.Store
	interactions *interactions.Store
	sessions     *sessionregistry.Registry
	dispatcher   *verbs.Dispatcher
	handler      http.Handler
	metrics      *observe.Metrics

	// closers run in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
	stopTick chan struct{}
}

// New wires every component named in the module map: namespace factory,
// triple store adapter, PostgreSQL long-term memory, embedding/LLM clients,
// corpus decomposer, HyDE engine, hybrid retriever, answer composer, session
// registry, verb dispatcher, and the HTTP+MCP transport layer.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*App, error) {
	a := &App{cfg: cfg, metrics: metrics, stopTick: make(chan struct{})}

	ns := namespace.New()
	a.namespace = ns

	graph := ""
	var endpoint config.SPARQLEndpoint
	if len(cfg.SPARQLEndpoints) > 0 {
		endpoint = cfg.SPARQLEndpoints[0]
		graph = endpoint.GraphRagno
	}

	triples := triplestore.New(triplestore.Config{
		QueryURL:  endpoint.QueryURL,
		UpdateURL: endpoint.UpdateURL,
		Username:  endpoint.Username,
		Password:  endpoint.Password,
	})
	a.triples = triples

	dims := cfg.Interaction.EmbeddingDimension
	if dims <= 0 {
		dims = 1536
	}
	store, err := postgres.NewStore(ctx, postgresDSN(cfg), dims)
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() error { store.Close(); return nil })

	embedProvider, err := reg.CreateEmbeddings(cfg.EmbeddingProvider, cfg.EmbeddingModel, cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: create embeddings provider: %w", err)
	}
	embed := embedclient.New(embedProvider, 1024, 0)

	if len(cfg.LLMProviders) == 0 {
		return nil, fmt.Errorf("app: at least one llmProviders entry is required")
	}
	primary := cfg.LLMProviders[0]
	primaryProvider, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", primary.Type, err)
	}

	// Every additional entry in LLMProviders is wired as an automatic failover
	// behind a circuit breaker, so a struggling primary doesn't take ask/tell
	// down with it (§4.9 "LLM unavailable" degraded-answer path).
	llmFallback := resilience.NewLLMFallback(primaryProvider, primary.Type, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second},
	})
	for _, fb := range cfg.LLMProviders[1:] {
		fbProvider, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback provider %q: %w", fb.Type, err)
		}
		llmFallback.AddFallback(fb.Type, fbProvider)
	}
	llm := llmclient.New(llmFallback, primary.Type, primary.ChatModel)

	sessions := sessionregistry.New(sessionregistry.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		RecentCap:   cfg.Session.RecentCacheSize,
		Graph:       graph,
		Namespace:   ns,
	})
	a.sessions = sessions

	ia := interactions.New(interactions.Config{
		CapacityPerSession: cfg.Interaction.ShortTermCapacityPerSession,
		Alpha:              cfg.Decay.Alpha,
		AgeFactor:          cfg.Decay.AgeFactor,
		PromoteBelow:       cfg.Decay.PromoteBelow,
		Graph:              graph,
	}, ns, store.Interactions(), triples)
	a.interactions = ia

	resolver := decompose.GraphResolver{Graph: store}
	decomposer := decompose.New(llm, ns, decompose.Config{Graph: graph})

	hydeEngine := hyde.New(llm, decomposer, ns, hyde.Config{Graph: graph})

	rdfSource := retriever.NewRDFGraphSource(triples, ns, endpoint.GraphCorpus)
	ret := retriever.New(embed, llm, ia, store.Interactions(), rdfSource, cfg.Retriever)

	composer := compose.New(ia, ret, compose.Config{})

	dispatcher := verbs.New(verbs.Deps{
		Namespace:    ns,
		Sessions:     sessions,
		Interactions: ia,
		Retriever:    ret,
		Decomposer:   decomposer,
		Resolver:     resolver,
		LLM:          llm,
		Hyde:         hydeEngine,
		Composer:     composer,
		Quads:        triples,
		Graph:        store,
		Metrics:      metrics,
	}, verbs.Config{
		QueueDepth:  cfg.Session.QueueDepth,
		VerbTimeout: cfg.Session.VerbTimeout,
		Graph:       graph,
		NavGraph:    endpoint.GraphNavigation,
	})
	a.dispatcher = dispatcher

	server := api.New(dispatcher, sessions)

	mux := http.NewServeMux()
	server.Routes(mux)

	healthHandler := health.New(
		health.Checker{Name: "postgres", Check: func(ctx context.Context) error {
			_, err := store.Interactions().Scan(ctx, interactions.ScanFilter{SessionURI: "__healthcheck__"})
			return err
		}},
	)
	healthHandler.Register(mux)

	a.handler = observe.Middleware(metrics)(mux)

	return a, nil
}

// postgresDSN reads the Postgres connection string. The memory core has no
// dedicated config section for it (§9 open question), so it is sourced from
// the environment the same way database credentials are everywhere else in
// the corpus — never embedded in the JSON config file.
func postgresDSN(cfg *config.Config) string {
	if dsn := os.Getenv("SEMEM_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return "postgres://localhost:5432/semem"
}

// Handler returns the combined HTTP mux (verb surface, /mcp, /health,
// /healthz, /readyz), wrapped in observability middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the background decay-pass and session-eviction tickers and
// blocks until ctx is cancelled (§5, §4.12).
func (a *App) Run(ctx context.Context) error {
	decayInterval := a.cfg.Decay.TickInterval
	if decayInterval <= 0 {
		decayInterval = 60 * time.Second
	}
	decayTicker := time.NewTicker(decayInterval)
	defer decayTicker.Stop()

	evictTicker := time.NewTicker(decayInterval)
	defer evictTicker.Stop()

	slog.Info("app running", "decayInterval", decayInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stopTick:
			return nil
		case <-decayTicker.C:
			if err := a.interactions.DecayPass(ctx); err != nil {
				slog.Warn("decay pass failed", "err", err)
			}
		case <-evictTicker.C:
			quads := a.sessions.EvictIdle(time.Now())
			if len(quads) > 0 {
				if err := a.triples.InsertQuads(ctx, quads); err != nil {
					slog.Warn("failed to write session-eviction quads", "err", err)
				}
			}
		}
	}
}

// Shutdown stops the background tickers and runs the registered closers in
// the order they were registered, respecting ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		close(a.stopTick)
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
