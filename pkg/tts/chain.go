package tts

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
)

// Chain tries providers in order; the first success wins.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain. At least one provider is required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize tries each provider until one succeeds. Cancellation stops the
// walk immediately.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs error
	for i, p := range c.providers {
		res, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider_index", i, "chars", len(text))
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = multierr.Append(errs, err)
		c.logger.Warn("provider failed, trying next", "provider_index", i, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs error
	for _, p := range c.providers {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}

// Providers returns the chain's providers.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
