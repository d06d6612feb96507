package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// FallbackGenerator tries the primary provider and falls back to the secondary one
// when the primary is unreachable or out of quota.
type FallbackGenerator struct {
	primary   Generator
	secondary Generator
	logger    *zap.Logger
}

// NewFallbackGenerator creates a generator routing primary -> secondary.
func NewFallbackGenerator(primary, secondary Generator, logger *zap.Logger) *FallbackGenerator {
	return &FallbackGenerator{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (f *FallbackGenerator) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *FallbackGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := f.primary.Generate(ctx, prompt)
	if err == nil {
		return out, nil
	}
	if !isConnectionError(err) && !isQuotaError(err) {
		return "", err
	}

	f.logger.Warn("primary AI provider unavailable, falling back",
		zap.String("primary", f.primary.Name()),
		zap.String("secondary", f.secondary.Name()),
		zap.Error(err))

	out, fallbackErr := f.secondary.Generate(ctx, prompt)
	if fallbackErr != nil {
		return "", fmt.Errorf("%s failed (%v), %s failed: %w", f.primary.Name(), err, f.secondary.Name(), fallbackErr)
	}
	return out, nil
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"(429)",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
