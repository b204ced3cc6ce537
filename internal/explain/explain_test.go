package explain

import (
	"context"
	"errors"
	"testing"
)

func TestRecommendWithoutGenerator(t *testing.T) {
	svc := NewService(nil, nil)
	got := svc.Recommend(context.Background(), "why", "template text")
	if got != "template text" {
		t.Errorf("Recommend() = %q, want fallback", got)
	}
}

func TestRecommendGeneratorSuccess(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "generated: " + prompt, nil
	})
	svc := NewService(gen, nil)

	got := svc.Recommend(context.Background(), "why", "template text")
	if got != "generated: why" {
		t.Errorf("Recommend() = %q, want generated text", got)
	}
}

func TestRecommendGeneratorFailureFallsBack(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("provider down")
	})
	svc := NewService(gen, nil)

	got := svc.Recommend(context.Background(), "why", "template text")
	if got != "template text" {
		t.Errorf("Recommend() = %q, want fallback on generator failure", got)
	}
}

func TestRecommendEmptyGenerationFallsBack(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", nil
	})
	svc := NewService(gen, nil)

	if got := svc.Recommend(context.Background(), "why", "template text"); got != "template text" {
		t.Errorf("Recommend() = %q, want fallback on empty generation", got)
	}
}
