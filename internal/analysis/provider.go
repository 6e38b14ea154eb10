package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/config"
	"labreader/internal/models"
)

// ErrUnavailable is the only error a Provider returns. Callers fall back to Unavailable.
var ErrUnavailable = errors.New("analysis unavailable")

// Provider turns extracted report text into findings and advice.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, report *models.ExtractedReport) (*models.AnalysisResult, error)
}

const unavailableSummary = "Automated analysis is currently unavailable. " +
	"The text extracted from your report is shown below so you can review it with a healthcare professional."

// Unavailable is the placeholder result used when the selected provider fails.
func Unavailable(provider string) *models.AnalysisResult {
	return &models.AnalysisResult{
		Summary:    unavailableSummary,
		Successful: false,
		Provider:   provider,
	}
}

// New builds the provider selected by cfg.Analysis.Provider.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Provider, error) {
	name := cfg.Analysis.Provider
	switch name {
	case "", config.ProviderHeuristic:
		return NewHeuristic(), nil
	case config.ProviderGemini, config.ProviderOpenAI, config.ProviderClaude:
		chatModel, err := NewChatModel(ctx, name, cfg.Providers[name], cfg.Analysis.MaxOutputTokens)
		if err != nil {
			return nil, err
		}
		return NewRemote(name, newChatCompleter(chatModel, cfg.Analysis), cfg.Analysis, log), nil
	case config.ProviderVertex:
		backend, err := newVertexCompleter(ctx, cfg.Providers[name], cfg.Analysis)
		if err != nil {
			return nil, err
		}
		return NewRemote(name, backend, cfg.Analysis, log), nil
	default:
		return nil, fmt.Errorf("invalid analysis provider: %s", name)
	}
}

// recoverUnavailable converts a panic inside a provider into ErrUnavailable.
func recoverUnavailable(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s panicked: %v", ErrUnavailable, name, r)
	}
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
