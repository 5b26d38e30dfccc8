package provider

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/internal/config"
)

// New constructs the provider named by cfg.Provider. Unknown names are an
// error rather than a silent fallback: degraded operation (echo) has to be
// asked for explicitly.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "ark":
		return newArkProvider(ctx, cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	case "echo", "":
		return newEchoProvider(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
