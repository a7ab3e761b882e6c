// Package pipeline orchestrates the four stages: extraction, aggregation,
// persona synthesis, and comparison. Each stage gates on the previous one;
// the oracle proposes content and the pipeline validates and commits it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/personaforge/personaforge/internal/cluster"
	"github.com/personaforge/personaforge/internal/compare"
	"github.com/personaforge/personaforge/internal/integrity"
	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/oracle"
	"github.com/personaforge/personaforge/internal/score"
	"github.com/personaforge/personaforge/internal/store"
	"github.com/personaforge/personaforge/internal/worker"
)

// ProgressFunc receives stage progress events. Progress is reported
// through this callback, never by intercepting logs.
type ProgressFunc func(stage, message string)

// Pipeline wires the stages together around a shared extraction store.
type Pipeline struct {
	cfg       *model.Config
	provider  oracle.Provider
	store     *store.ExtractionStore
	validator *integrity.Validator
	scorer    *score.ConfidenceScorer
	engine    *cluster.Engine
	synth     *compare.Synthesizer

	commits  *commitLog
	progress ProgressFunc
}

// SetProgress installs the progress callback. A nil callback disables
// progress reporting.
func (p *Pipeline) SetProgress(fn ProgressFunc) {
	p.progress = fn
}

// New creates a pipeline. The provider may be nil, in which case only the
// rule-based stages work.
func New(cfg *model.Config, provider oracle.Provider) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		provider:  provider,
		store:     store.NewExtractionStore(),
		validator: integrity.NewValidator(),
		scorer:    score.NewConfidenceScorer(),
		engine:    cluster.NewEngine(),
		synth:     compare.NewSynthesizer(),
		commits:   &commitLog{},
	}
}

// Store exposes the extraction store for record review and editing.
func (p *Pipeline) Store() *store.ExtractionStore {
	return p.store
}

// Issues returns all integrity issues collected so far.
func (p *Pipeline) Issues() []integrity.Issue {
	return p.commits.allIssues()
}

// SourceError is one source that failed to extract.
type SourceError struct {
	SourceID string
	Err      error
}

// ExtractionSummary reports the outcome of a batch extraction.
type ExtractionSummary struct {
	Sources int
	Records int
	Failed  []SourceError
	Issues  []integrity.Issue
}

// GenerateExtractions extracts every source concurrently and commits the
// resulting records. Integrity issues are collected as warnings, never as
// failures; a source fails only when the oracle call itself fails.
func (p *Pipeline) GenerateExtractions(ctx context.Context, sources []model.InputSource) (*ExtractionSummary, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("extraction requires an oracle provider")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no input sources")
	}

	workers := p.cfg.Concurrency.Workers
	if workers <= 0 {
		workers = 1
	}

	batch := worker.NewBatchProcessor(p, workers)
	results := batch.ProcessSources(ctx, sources)

	summary := &ExtractionSummary{Sources: len(sources)}
	for _, res := range results {
		if res.Error != nil {
			summary.Failed = append(summary.Failed, SourceError{SourceID: res.SourceID, Err: res.Error})
			p.warnf("extraction failed for %s: %v", res.SourceID, res.Error)
			continue
		}
		summary.Records += len(res.Records)
	}
	sort.Slice(summary.Failed, func(i, j int) bool {
		return summary.Failed[i].SourceID < summary.Failed[j].SourceID
	})
	summary.Issues = p.commits.allIssues()

	if summary.Records == 0 {
		return summary, fmt.Errorf("no records extracted from %d sources", len(sources))
	}
	return summary, nil
}

// FinalizeExtractions freezes the record set, making it legal input to
// aggregation.
func (p *Pipeline) FinalizeExtractions() {
	p.store.FinalizeAll()
}

// GenerateAggregation clusters the finalized records. When AI aggregation
// is configured the oracle result is used only if it holds the partition
// invariant; the rule-based engine is always the fallback.
func (p *Pipeline) GenerateAggregation(ctx context.Context) (*model.Aggregation, error) {
	if !p.store.IsFinalized() {
		return nil, fmt.Errorf("aggregation requires finalized extraction records")
	}
	records := p.store.FinalizedSubset()

	if p.cfg.Oracle.AIAggregation && p.provider != nil {
		agg, err := p.provider.ProposeAggregation(ctx, records)
		switch {
		case err != nil:
			p.warnf("oracle aggregation failed, falling back to rule-based clustering: %v", err)
		case !validPartition(agg, records):
			p.warnf("oracle aggregation does not partition the respondents, falling back to rule-based clustering")
		default:
			p.emit("aggregation", fmt.Sprintf("oracle produced %d clusters", len(agg.Clusters)))
			return agg, nil
		}
	}

	return p.engine.Aggregate(records)
}

// GeneratePersonaAxes asks the oracle for classification axes, sorted by
// their order field.
func (p *Pipeline) GeneratePersonaAxes(ctx context.Context, agg *model.Aggregation) ([]model.PersonaAxis, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("persona axes require an oracle provider")
	}
	if agg == nil || len(agg.Clusters) == 0 {
		return nil, fmt.Errorf("persona axes require an aggregation")
	}

	axes, err := p.provider.ProposePersonaAxes(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("propose persona axes: %w", err)
	}
	sort.SliceStable(axes, func(i, j int) bool { return axes[i].Order < axes[j].Order })
	for i := range axes {
		if axes[i].ID == "" {
			axes[i].ID = fmt.Sprintf("axis-%d", i+1)
		}
	}
	return axes, nil
}

// GeneratePersonas synthesizes one persona per cluster along the given
// axes. The oracle's output is shape-validated: a persona without evidence
// quotes borrows the representative quotes of its cluster.
func (p *Pipeline) GeneratePersonas(ctx context.Context, agg *model.Aggregation, axes []model.PersonaAxis) ([]model.Persona, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("persona synthesis requires an oracle provider")
	}
	if agg == nil || len(agg.Clusters) == 0 {
		return nil, fmt.Errorf("persona synthesis requires an aggregation")
	}

	personas, err := p.provider.ProposePersonas(ctx, agg, axes)
	if err != nil {
		return nil, fmt.Errorf("propose personas: %w", err)
	}

	clustersByID := make(map[string]*model.Cluster, len(agg.Clusters))
	for i := range agg.Clusters {
		clustersByID[agg.Clusters[i].ID] = &agg.Clusters[i]
	}

	for i := range personas {
		persona := &personas[i]
		if persona.ID == "" {
			persona.ID = fmt.Sprintf("persona-%d", i+1)
		}
		if persona.ClusterID == "" && i < len(agg.Clusters) {
			persona.ClusterID = agg.Clusters[i].ID
		}
		if persona.OneLineSummary == "" {
			return nil, fmt.Errorf("persona %s has no summary", persona.ID)
		}
		if len(persona.Evidence.Quotes) == 0 {
			c := clustersByID[persona.ClusterID]
			if c == nil || len(c.RepresentativeQuotes) == 0 {
				return nil, fmt.Errorf("persona %s has no evidence quotes", persona.ID)
			}
			for _, rq := range c.RepresentativeQuotes {
				persona.Evidence.Quotes = append(persona.Evidence.Quotes, model.EvidenceQuote{
					Text:         rq.Quote,
					RespondentID: rq.RespondentID,
					Category:     rq.Category,
				})
			}
		}
		persona.Evidence.Count = len(persona.Evidence.Quotes)
	}
	return personas, nil
}

// GenerateComparison builds the side-by-side comparison. The oracle overlay
// is optional; when it fails the rule-based fallback analysis is used.
func (p *Pipeline) GenerateComparison(ctx context.Context, personas []model.Persona) (*model.Comparison, error) {
	var overlay *model.ComparisonOverlay
	if p.provider != nil && len(personas) >= 2 {
		o, err := p.provider.ProposeComparisonAnalysis(ctx, personas)
		if err != nil {
			p.warnf("oracle comparison analysis failed, using fallback: %v", err)
		} else {
			overlay = o
		}
	}
	return p.synth.Build(personas, overlay)
}

// validPartition checks that the clusters partition the respondents: every
// respondent in exactly one cluster, no strangers, no empty clusters.
func validPartition(agg *model.Aggregation, records []model.ExtractionRecord) bool {
	if agg == nil || len(agg.Clusters) == 0 {
		return false
	}
	if len(records) >= 2 && (len(agg.Clusters) < 2 || len(agg.Clusters) > 5) {
		return false
	}
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.RespondentID] = true
	}
	seen := make(map[string]bool, len(records))
	for _, c := range agg.Clusters {
		if len(c.RespondentIDs) == 0 {
			return false
		}
		for _, id := range c.RespondentIDs {
			if !known[id] || seen[id] {
				return false
			}
			seen[id] = true
		}
	}
	return len(seen) == len(records)
}

func (p *Pipeline) warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func (p *Pipeline) emit(stage, message string) {
	if p.progress != nil {
		p.progress(stage, message)
	}
}
