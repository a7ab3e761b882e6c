// Package oracle talks to the generation model. Everything it returns is
// treated as untrusted: responses are defensively decoded, normalized, and
// then validated by the calling pipeline. The oracle proposes; it never
// commits.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/internal/model"
)

// SourceMetadata annotates one interview source for extraction.
type SourceMetadata struct {
	InterviewName string
	InterviewDate string
	Segment       string
	Owner         string
}

// ExtractionRequest asks the oracle to extract respondents from one source.
type ExtractionRequest struct {
	SourceText string
	SourceID   string
	Metadata   *SourceMetadata
}

// Provider is the generation oracle. Implementations return normalized
// payloads but make no integrity guarantees about their content.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// IsAvailable checks that the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool

	// ProposeExtractions extracts structured respondent records with quote
	// provenance from one source text.
	ProposeExtractions(ctx context.Context, req ExtractionRequest) ([]ExtractionProposal, error)

	// ProposeAggregation clusters finalized records. The rule-based engine
	// remains the fallback when this fails.
	ProposeAggregation(ctx context.Context, records []model.ExtractionRecord) (*model.Aggregation, error)

	// ProposePersonaAxes suggests 2-5 classification axes for an
	// aggregation.
	ProposePersonaAxes(ctx context.Context, agg *model.Aggregation) ([]model.PersonaAxis, error)

	// ProposePersonas synthesizes one persona card per cluster along the
	// given axes.
	ProposePersonas(ctx context.Context, agg *model.Aggregation, axes []model.PersonaAxis) ([]model.Persona, error)

	// ProposeComparisonAnalysis produces the common/differing analysis
	// overlay for two or more personas.
	ProposeComparisonAnalysis(ctx context.Context, personas []model.Persona) (*model.ComparisonOverlay, error)
}

// RateLimiter throttles oracle calls by key (provider/model pair).
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// ResponseCache stores raw completions keyed by prompt hash.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}

// Options carries the optional collaborators a provider can use.
type Options struct {
	Limiter RateLimiter
	Cache   ResponseCache
	Verbose bool
}

// NewProvider creates a provider from configuration. An empty provider
// name disables the oracle and returns nil without error.
func NewProvider(cfg model.OracleConfig, opts Options) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg, opts)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (supported: openai)", cfg.Provider)
	}
}
