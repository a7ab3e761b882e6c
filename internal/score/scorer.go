// Package score computes the confidence score of an extraction record from
// three transparent components. Each component is a step function, so the
// same inputs always produce the same score and a reviewer can reconstruct
// it by hand.
package score

import (
	"math"

	"github.com/personaforge/personaforge/internal/model"
)

// personaFields are the extraction fields counted toward completeness.
const personaFieldCount = 10

// ConfidenceScorer calculates extraction confidence.
type ConfidenceScorer struct{}

// NewConfidenceScorer creates a new scorer.
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// Calculate returns the total confidence in [0,1] plus the per-component
// breakdown. The breakdown is stored alongside the record so the score can
// be audited later.
func (s *ConfidenceScorer) Calculate(rec *model.ExtractionRecord) (float64, model.ConfidenceBreakdown) {
	breakdown := model.ConfidenceBreakdown{
		QuoteCountScore:        s.quoteCountScore(len(rec.Quotes)),
		FieldCompletenessScore: s.completenessScore(rec),
		QuoteClarityScore:      s.clarityScore(rec.Quotes),
	}

	total := breakdown.QuoteCountScore + breakdown.FieldCompletenessScore + breakdown.QuoteClarityScore
	if math.IsNaN(total) || math.IsInf(total, 0) {
		total = 0
	}
	return clamp01(total), breakdown
}

// quoteCountScore steps with the number of supporting quotes, up to 0.4.
func (s *ConfidenceScorer) quoteCountScore(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n <= 5:
		return 0.1
	case n <= 10:
		return 0.2
	case n <= 15:
		return 0.3
	default:
		return 0.4
	}
}

// completenessScore counts how many of the ten persona fields are filled and
// steps with the filled ratio, up to 0.3.
func (s *ConfidenceScorer) completenessScore(rec *model.ExtractionRecord) float64 {
	filled := 0
	if rec.Role != nil && *rec.Role != "" {
		filled++
	}
	if rec.Relationship != nil && *rec.Relationship != "" {
		filled++
	}
	if rec.Household != nil {
		filled++
	}
	if rec.PurchaseContext != nil {
		filled++
	}
	if len(rec.Trigger) > 0 {
		filled++
	}
	if rec.JobToBeDone != nil &&
		(len(rec.JobToBeDone.Functional) > 0 || len(rec.JobToBeDone.Emotional) > 0 || len(rec.JobToBeDone.Social) > 0) {
		filled++
	}
	if len(rec.Barriers) > 0 {
		filled++
	}
	if rec.DecisionCriteria != nil && len(rec.DecisionCriteria.Entries()) > 0 {
		filled++
	}
	if len(rec.InformationSources) > 0 {
		filled++
	}
	if rec.BehaviorPatterns != nil {
		filled++
	}

	ratio := float64(filled) / float64(personaFieldCount)
	switch {
	case ratio <= 0.3:
		return 0
	case ratio <= 0.5:
		return 0.1
	case ratio <= 0.7:
		return 0.2
	default:
		return 0.3
	}
}

// clarityScore rewards quotes of readable length. A quote of 10-50 runes
// earns 0.05, a longer one 0.03, and carrying a line number earns 0.02 more.
// The per-quote average is scaled by 10 and capped at 0.3. Lengths are in
// runes; the source material is Japanese.
func (s *ConfidenceScorer) clarityScore(quotes []model.Quote) float64 {
	if len(quotes) == 0 {
		return 0
	}

	sum := 0.0
	for _, q := range quotes {
		n := len([]rune(q.Text))
		switch {
		case n >= 10 && n <= 50:
			sum += 0.05
		case n > 50:
			sum += 0.03
		}
		if q.LineNumber != 0 {
			sum += 0.02
		}
	}

	score := sum / float64(len(quotes)) * 10
	if score > 0.3 {
		score = 0.3
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
