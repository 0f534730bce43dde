package embedding

import (
	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/observability"
)

// New builds the configured embedder. The openai provider falls back to the
// deterministic mock when no API key is set.
func New(cfg config.EmbeddingConfig, logger *observability.Logger) (Embedder, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	if cfg.Provider == "mock" {
		return NewMockClient(cfg.Dimension), nil
	}

	if cfg.APIKey == "" {
		logger.Warn().
			Str("provider", cfg.Provider).
			Msg("No embedding API key configured, using mock embeddings")
		return NewMockClient(cfg.Dimension), nil
	}

	return NewClient(Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		MaxChars:  cfg.MaxChars,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
}

// GeneratorConfigFrom maps embedding settings onto generator settings.
func GeneratorConfigFrom(cfg config.EmbeddingConfig) GeneratorConfig {
	return GeneratorConfig{
		ContentType:   cfg.ContentType,
		CallDelay:     cfg.CallDelay,
		SkipUnchanged: cfg.SkipUnchanged,
		Retry: RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
	}
}
