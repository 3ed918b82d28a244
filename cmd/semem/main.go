// Command semem is the main entry point for the semantic memory core server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/semem-go/semem/internal/app"
	"github.com/semem-go/semem/internal/config"
	"github.com/semem-go/semem/internal/observe"
	"github.com/semem-go/semem/pkg/provider/embeddings"
	embeddingsollama "github.com/semem-go/semem/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/semem-go/semem/pkg/provider/embeddings/openai"
	"github.com/semem-go/semem/pkg/provider/llm"
	"github.com/semem-go/semem/pkg/provider/llm/anyllm"
	llmopenai "github.com/semem-go/semem/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "semem: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("semem starting", "config", *configPath, "listenAddr", cfg.Server.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "semem",
		ServiceVersion: "1.0.0",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(ctx, cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	server := &httpServer{addr: cfg.Server.ListenAddr, handler: application.Handler()}
	server.Start()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- application.Run(ctx) }()

	slog.Info("server ready", "listenAddr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the concrete provider constructors the
// domain stack ships with into reg, so config.Registry.CreateLLM/
// CreateEmbeddings can build them by name.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.LLMProvider) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.ChatModel, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		providerName := providerName
		reg.RegisterLLM(providerName, func(entry config.LLMProvider) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.ChatModel, opts...)
		})
	}

	reg.RegisterEmbeddings("openai", func(_, model, apiKey, baseURL string) (embeddings.Provider, error) {
		var opts []embeddingsopenai.Option
		if baseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(baseURL))
		}
		return embeddingsopenai.New(apiKey, model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(_, model, _, baseURL string) (embeddings.Provider, error) {
		return embeddingsollama.New(baseURL, model)
	})
}

// httpServer runs application.Handler() on a background goroutine and
// reports listen errors (other than a clean shutdown) to the log.
type httpServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (s *httpServer) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.handler}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
}

func (s *httpServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
