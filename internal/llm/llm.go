// Package llm talks to the language model that plans queries and writes answers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/polo52/polochat/internal/config"
)

// Generator turns a prompt into model text. Implementations honour ctx cancellation and
// never retry on their own.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

const maxErrorBody = 512

// New builds the configured provider, choosing its model once from cfg.Models.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Generator, string, error) {
	if len(cfg.Models) == 0 {
		return nil, "", fmt.Errorf("at least one model candidate is required")
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		probe, err := NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Models[0],
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, "", err
		}
		model := ResolveModel(ctx, probe, cfg.Models, logger)
		return probe.WithModel(model), model, nil
	case config.ProviderOllama:
		probe := NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Models[0],
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		model := ResolveModel(ctx, probe, cfg.Models, logger)
		return probe.WithModel(model), model, nil
	default:
		return nil, "", fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// ResolveModel returns the first candidate the provider advertises. When the listing fails
// or nothing matches, the first candidate is used as configured.
func ResolveModel(ctx context.Context, lister ModelLister, candidates []string, logger *slog.Logger) string {
	if len(candidates) == 0 {
		return ""
	}
	if logger == nil {
		logger = slog.Default()
	}

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	available, err := lister.ListModels(listCtx)
	if err != nil {
		logger.WarnContext(ctx, "llm_model_listing_failed",
			slog.String("fallback_model", candidates[0]),
			slog.String("error", err.Error()),
		)
		return candidates[0]
	}

	for _, candidate := range candidates {
		for _, name := range available {
			if modelMatches(candidate, name) {
				logger.InfoContext(ctx, "llm_model_selected", slog.String("model", candidate))
				return candidate
			}
		}
	}
	logger.WarnContext(ctx, "llm_model_not_advertised",
		slog.Any("candidates", candidates),
		slog.Int("available", len(available)),
	)
	return candidates[0]
}

// modelMatches accepts exact names and Ollama style tags, so "llama3.1" matches
// "llama3.1:latest".
func modelMatches(candidate, advertised string) bool {
	candidate = strings.TrimSpace(candidate)
	advertised = strings.TrimSpace(advertised)
	if candidate == "" {
		return false
	}
	if strings.EqualFold(candidate, advertised) {
		return true
	}
	return !strings.Contains(candidate, ":") && strings.HasPrefix(strings.ToLower(advertised), strings.ToLower(candidate)+":")
}

func truncateBody(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
