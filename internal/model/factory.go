package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eleven-am/trackie/internal/shared"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Provider        string
	APIKey          string
	Model           string
	Temperature     float32
	Voice           string
	LanguageCode    string
	MediaResolution string
}

// New builds the provider named in cfg. Providers without a streaming
// implementation fail here rather than at connect time.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Channel, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		return NewGemini(ctx, cfg, logger)
	case ProviderOpenAI:
		return nil, fmt.Errorf("provider %q: %w", cfg.Provider, shared.ErrNotSupported)
	default:
		return nil, fmt.Errorf("unknown model provider %q: %w", cfg.Provider, shared.ErrNotSupported)
	}
}
