package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/personaforge/personaforge/internal/model"
)

// Per-operation sampling temperatures. Extraction needs the most literal
// output; persona synthesis is allowed the most latitude.
const (
	tempExtraction  = 0.2
	tempAggregation = 0.3
	tempComparison  = 0.3
	tempPersona     = 0.4
	tempAxes        = 0.4
)

// OpenAIProvider implements Provider on the OpenAI chat completions API.
// OpenRouter and other compatible endpoints work through BaseURL.
type OpenAIProvider struct {
	client  *openai.Client
	cfg     model.OracleConfig
	limiter RateLimiter
	cache   ResponseCache
	verbose bool
}

// NewOpenAIProvider creates a provider. An API key is required.
func NewOpenAIProvider(cfg model.OracleConfig, opts Options) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: opts.Limiter,
		cache:   opts.Cache,
		verbose: opts.Verbose,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks the API is reachable with the configured key.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oracle API check failed: %v\n", err)
		return false
	}
	return true
}

// ProposeExtractions extracts respondent records from one source.
func (p *OpenAIProvider) ProposeExtractions(ctx context.Context, req ExtractionRequest) ([]ExtractionProposal, error) {
	return retry(ctx, p.cfg, func() ([]ExtractionProposal, error) {
		response, err := p.complete(ctx, extractionSystemPrompt, buildExtractionPrompt(req), tempExtraction)
		if err != nil {
			return nil, err
		}
		proposals, err := decodeArray[ExtractionProposal](response)
		if err != nil {
			return nil, err
		}
		if len(proposals) == 0 {
			return nil, fmt.Errorf("oracle returned no extraction records")
		}
		return proposals, nil
	})
}

// ProposeAggregation clusters records through the oracle.
func (p *OpenAIProvider) ProposeAggregation(ctx context.Context, records []model.ExtractionRecord) (*model.Aggregation, error) {
	return retry(ctx, p.cfg, func() (*model.Aggregation, error) {
		response, err := p.complete(ctx, aggregationSystemPrompt, buildAggregationPrompt(records), tempAggregation)
		if err != nil {
			return nil, err
		}
		agg, err := decodeObject[model.Aggregation](response)
		if err != nil {
			return nil, err
		}
		if len(agg.Clusters) == 0 {
			return nil, fmt.Errorf("oracle aggregation has no clusters")
		}
		return agg, nil
	})
}

// ProposePersonaAxes suggests classification axes.
func (p *OpenAIProvider) ProposePersonaAxes(ctx context.Context, agg *model.Aggregation) ([]model.PersonaAxis, error) {
	return retry(ctx, p.cfg, func() ([]model.PersonaAxis, error) {
		response, err := p.complete(ctx, axesSystemPrompt, buildAxesPrompt(agg), tempAxes)
		if err != nil {
			return nil, err
		}
		proposals, err := decodeArray[axisProposal](response)
		if err != nil {
			return nil, err
		}
		if len(proposals) == 0 {
			return nil, fmt.Errorf("oracle returned no persona axes")
		}
		axes := make([]model.PersonaAxis, 0, len(proposals))
		for i, prop := range proposals {
			order := i
			if prop.Order != nil {
				order = *prop.Order
			}
			axes = append(axes, model.PersonaAxis{
				ID:          prop.ID,
				Name:        prop.Name,
				Description: prop.Description,
				Order:       order,
			})
		}
		return axes, nil
	})
}

// ProposePersonas synthesizes persona cards from an aggregation.
func (p *OpenAIProvider) ProposePersonas(ctx context.Context, agg *model.Aggregation, axes []model.PersonaAxis) ([]model.Persona, error) {
	return retry(ctx, p.cfg, func() ([]model.Persona, error) {
		response, err := p.complete(ctx, personaSystemPrompt, buildPersonaPrompt(agg, axes), tempPersona)
		if err != nil {
			return nil, err
		}
		personas, err := decodeArray[model.Persona](response)
		if err != nil {
			return nil, err
		}
		if len(personas) == 0 {
			return nil, fmt.Errorf("oracle returned no personas")
		}
		return personas, nil
	})
}

// ProposeComparisonAnalysis produces the analysis overlay for a comparison.
func (p *OpenAIProvider) ProposeComparisonAnalysis(ctx context.Context, personas []model.Persona) (*model.ComparisonOverlay, error) {
	return retry(ctx, p.cfg, func() (*model.ComparisonOverlay, error) {
		response, err := p.complete(ctx, comparisonSystemPrompt, buildComparisonPrompt(personas), tempComparison)
		if err != nil {
			return nil, err
		}
		return decodeObject[model.ComparisonOverlay](response)
	})
}

// complete makes one chat completion call. Responses are cached by prompt
// hash so re-running a pipeline stage within a run does not re-spend
// tokens.
func (p *OpenAIProvider) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	key := completionKey(p.cfg.Model, systemPrompt, userPrompt)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			if p.verbose {
				fmt.Fprintln(os.Stderr, "oracle: cache hit")
			}
			return string(cached), nil
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.Name()+"/"+p.cfg.Model); err != nil {
			return "", err
		}
	}

	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatModel := p.cfg.Model
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	maxTokens := p.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}

	resp, err := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("oracle API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if p.cache != nil {
		_ = p.cache.Set(key, []byte(content))
	}
	return content, nil
}

// retry runs fn up to 1+MaxRetries times. Decode failures retry too: a
// fresh completion often fixes a truncated or chatty response.
func retry[T any](ctx context.Context, cfg model.OracleConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = time.Second
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// completionKey hashes the full prompt so distinct requests never collide.
func completionKey(chatModel, systemPrompt, userPrompt string) string {
	hash := sha256.Sum256([]byte(chatModel + "\x00" + systemPrompt + "\x00" + userPrompt))
	return "personaforge:v1:" + hex.EncodeToString(hash[:])
}
