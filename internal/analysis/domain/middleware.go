package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Analyze(ctx context.Context, req Request) ([]Finding, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Analyze(ctx context.Context, req Request) ([]Finding, error) {
	start := time.Now()
	findings, err := m.next.Analyze(ctx, req)

	mode := "explorer"
	if req.Blockchain == "" || req.Address == "" {
		mode = "raw-code"
	}
	m.logger.Info("Analyze",
		"mode", mode,
		"blockchain", req.Blockchain,
		"address", req.Address,
		"findings", len(findings),
		"duration", time.Since(start),
		"error", err,
	)
	return findings, err
}
