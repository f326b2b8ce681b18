package router

import (
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/adapter/loopback"
	openaiadapter "github.com/tokligence/streamledger/internal/adapter/openai"
	"github.com/tokligence/streamledger/internal/adapter/retry"
)

// Config describes the providers available to the process.
type Config struct {
	OpenAI        openaiadapter.Config
	RetryAttempts int
	RetryBackoff  time.Duration
	FallbackDelay time.Duration
	Logger        *zap.Logger
	// OnUpstreamFailure is forwarded to the retry adapter.
	OnUpstreamFailure func(provider string, attempt int, err error)
}

// Select picks the provider once at setup: the real upstream, wrapped in the
// retry policy, when an API key is configured; the loopback simulator
// otherwise. A real provider that cannot be constructed falls back to
// loopback with a warning.
func Select(cfg Config) adapter.Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := loopback.New(cfg.FallbackDelay)

	if cfg.OpenAI.APIKey == "" {
		logger.Info("no upstream credential configured, using simulated provider",
			zap.String("provider", fallback.Name()))
		return fallback
	}

	oaCfg := cfg.OpenAI
	if oaCfg.Logger == nil {
		oaCfg.Logger = logger.Named("openai")
	}
	upstream, err := openaiadapter.New(oaCfg)
	if err != nil {
		logger.Warn("upstream provider unavailable, using simulated provider",
			zap.String("provider", fallback.Name()), zap.Error(err))
		return fallback
	}
	wrapped, err := retry.New(retry.Config{
		Provider:  upstream,
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBackoff,
		Logger:    logger.Named("retry"),
		OnFailure: cfg.OnUpstreamFailure,
	})
	if err != nil {
		logger.Warn("retry policy rejected, using simulated provider", zap.Error(err))
		return fallback
	}
	logger.Info("using upstream provider", zap.String("provider", upstream.Name()),
		zap.String("base_url", oaCfg.BaseURL))
	return wrapped
}
