// Package main is the entry point for the lexiforge lookup server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wordisle/lexiforge/internal/api"
	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/config"
	"github.com/wordisle/lexiforge/internal/dictprov"
	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/internal/metrics"
	"github.com/wordisle/lexiforge/internal/observability"
	"github.com/wordisle/lexiforge/internal/pipeline"
	"github.com/wordisle/lexiforge/internal/resilience"
	"github.com/wordisle/lexiforge/internal/resolver"
	"github.com/wordisle/lexiforge/internal/store"
	"github.com/wordisle/lexiforge/internal/synth"
	"github.com/wordisle/lexiforge/pkg/types"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	}, observability.NewRedactor())
	slog.SetDefault(logger)

	logger.Info("starting lexiforge", "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	c, err := cache.New(cfg.Cache, logger)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}

	var st store.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := store.NewRedis(cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		st = redisStore
	} else {
		logger.Warn("no redis address configured, using in-memory store")
		st = store.NewMemory()
	}

	limiter := resilience.NewHostLimiter(cfg.RateLimit)

	registry := dictprov.NewRegistry()
	dictprov.RegisterBuiltins(registry)
	for _, provCfg := range cfg.Providers {
		if !provCfg.IsEnabled() {
			continue
		}
		timeout := provCfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		prov, err := registry.Create(provCfg, dictprov.Transport{
			Client:  &http.Client{Timeout: timeout},
			Limiter: limiter,
		})
		if err != nil {
			logger.Error("failed to create provider", "name", provCfg.Name, "error", err)
			continue
		}
		logger.Info("provider registered", "name", prov.Name, "host", prov.Host)
	}
	fetcher := dictprov.NewFetcher(cfg.Fetcher, registry, c, logger)

	var llmClient *llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient, err = llm.NewClient(cfg.LLM, c, nil, logger)
		if err != nil {
			logger.Error("failed to create llm client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no llm api key configured, running provider passthrough only")
	}

	words, err := loadVocabulary(cfg.Vocabulary)
	if err != nil {
		logger.Error("failed to load vocabulary", "path", cfg.Vocabulary.Path, "error", err)
		os.Exit(1)
	}
	logger.Info("vocabulary loaded", "words", len(words))

	var embedder resolver.Embedder
	if llmClient != nil {
		embedder = llmClient
	}
	res := resolver.New(cfg.Resolver, words, embedder, logger)

	synthesizer := synth.New(cfg.Synthesis, llmClient, nil, logger)
	pipe := pipeline.New(cfg.Pipeline, res, fetcher, synthesizer, llmClient, st, c, logger)

	cfgManager.OnChange(func(next *config.Config) {
		pipe.Reconfigure(next.Pipeline)
		res.Reconfigure(next.Resolver)
	})

	handler := api.NewHandler(pipe, st, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
		go metrics.WatchCacheStats(ctx, c)
	}

	var httpHandler http.Handler = mux
	httpHandler = observability.RequestIDMiddleware(httpHandler)
	httpHandler = metrics.Middleware(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Refuse new lookups, then drain in-flight requests.
	pipe.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}
	cfgManager.Close()
	logger.Info("server stopped")
}

// loadVocabulary reads the newline-delimited word list. Blank lines and
// lines starting with # are skipped. Entries are canonicalized with the
// resolver's normalizer so exact lookups hit regardless of diacritics
// or punctuation in the source list.
func loadVocabulary(cfg config.VocabularyConfig) ([]types.Word, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}

	normalizer := resolver.NewNormalizer()
	var words []types.Word
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, types.Word{
			Text:       line,
			Normalized: normalizer.Normalize(line),
			Language:   lang,
		})
	}
	return words, scanner.Err()
}
