// Package explain produces the human-readable recommendation text attached
// to findings. An external generator (typically an LLM) is optional; the
// engine must behave identically when it is absent or failing, so every call
// site supplies a templated fallback.
package explain

import (
	"context"
	"log/slog"

	"policyscope/internal/domain"
	"policyscope/internal/telemetry"
)

// Generator produces explanation text for a prompt. Implementations are
// external collaborators and may fail or time out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Service wraps an optional Generator with the template fallback. It is never
// on the critical decision path: generation failures are recovered locally
// and surface only as the fallback text.
type Service struct {
	gen     Generator
	metrics *telemetry.Metrics
}

// NewService creates an explanation service. gen and metrics may be nil.
func NewService(gen Generator, metrics *telemetry.Metrics) *Service {
	return &Service{gen: gen, metrics: metrics}
}

// Recommend returns generated text for the prompt, or the fallback when no
// generator is configured or the generator fails.
func (s *Service) Recommend(ctx context.Context, prompt, fallback string) string {
	if s.gen == nil {
		return fallback
	}

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil || text == "" {
		wrapped := domain.DependencyUnavailable("explanation generator", err)
		slog.Debug("explanation generator unavailable, using template", "error", wrapped)
		if s.metrics != nil {
			s.metrics.ExplanationFallbacks.Inc()
		}
		return fallback
	}
	return text
}
