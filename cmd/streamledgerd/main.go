package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	openaiadapter "github.com/tokligence/streamledger/internal/adapter/openai"
	adapterrouter "github.com/tokligence/streamledger/internal/adapter/router"
	"github.com/tokligence/streamledger/internal/config"
	"github.com/tokligence/streamledger/internal/health"
	"github.com/tokligence/streamledger/internal/history"
	"github.com/tokligence/streamledger/internal/history/backend"
	"github.com/tokligence/streamledger/internal/httpserver"
	"github.com/tokligence/streamledger/internal/logging"
	"github.com/tokligence/streamledger/internal/metrics"
	"github.com/tokligence/streamledger/internal/ratelimit"
	"github.com/tokligence/streamledger/internal/relay"
	"github.com/tokligence/streamledger/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		JSON:     cfg.LogJSON,
		File:     cfg.LogFile,
		MaxBytes: cfg.LogMaxBytes,
		Fields:   []zap.Field{zap.String("service", cfg.AppName)},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer closer.Close()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("streamledgerd exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting streamledgerd",
		zap.String("version", version.Info()),
		zap.String("environment", cfg.Environment),
		zap.String("address", cfg.HTTPAddress))

	opts := backend.Options{
		Driver:     cfg.DatabaseDriver,
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		Pool: history.Pool{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		},
	}
	store, err := backend.Open(opts)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()
	logger.Info("history store ready", zap.String("engine", opts.Kind()))

	collector := metrics.NewCollector()

	provider := adapterrouter.Select(adapterrouter.Config{
		OpenAI: openaiadapter.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Organization:   cfg.OpenAIOrg,
			RequestTimeout: cfg.LLMRequestTimeout,
		},
		RetryAttempts:     cfg.RetryAttempts,
		RetryBackoff:      cfg.RetryBackoff,
		FallbackDelay:     cfg.FallbackTokenDelay,
		Logger:            logger.Named("provider"),
		OnUpstreamFailure: collector.RecordUpstreamFailure,
	})
	source, err := adapter.NewSource(provider, adapter.Request{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("build chunk source: %w", err)
	}

	rl, err := relay.New(relay.Config{
		Source:      source,
		Store:       store,
		Logger:      logger.Named("relay"),
		Recorder:    collector,
		SaveTimeout: cfg.SaveTimeout,
	})
	if err != nil {
		return fmt.Errorf("build relay: %w", err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
	})
	defer limiter.Close()

	format, err := adapter.ParseFormat(cfg.ResponseFormat)
	if err != nil {
		return err
	}

	httpSrv, err := httpserver.New(httpserver.Config{
		Relay:   rl,
		History: store,
		Health: health.New(health.Config{Targets: []health.Target{
			{Name: httpserver.DatabaseComponent, Type: "database", Critical: true, Pinger: store},
		}}),
		Metrics: collector,
		RateLimit: ratelimit.NewMiddleware(limiter, cfg.RateLimitEnabled, logger.Named("ratelimit"),
			ratelimit.WithExemptPaths("/metrics"),
			ratelimit.WithRejectHook(collector.RecordRateLimitHit)),
		Logger:             logger.Named("http"),
		APIKey:             cfg.APIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultFormat:      format,
		DefaultPageLimit:   cfg.DefaultPageLimit,
		MaxPageLimit:       cfg.MaxPageLimit,
		Provider:           provider.Name(),
	})
	if err != nil {
		return err
	}

	// Cancelled only when the shutdown grace period runs out, so streams
	// still running fail over and persist before the store closes.
	requestCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		BaseContext:       func(net.Listener) context.Context { return requestCtx },
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams are open-ended; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.HTTPAddress), zap.String("provider", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	drain := cfg.SaveTimeout
	if drain <= 0 {
		drain = relay.DefaultSaveTimeout
	}
	if err := httpSrv.Shutdown(shutdownCtx, srv, cancelRequests, drain+time.Second); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}
