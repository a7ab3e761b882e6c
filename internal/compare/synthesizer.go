// Package compare builds side-by-side persona comparisons. The field
// tables are always re-projected from the personas themselves; the oracle
// only contributes an optional analysis overlay on top.
package compare

import (
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/internal/model"
)

// Synthesizer builds comparisons from personas.
type Synthesizer struct{}

// NewSynthesizer creates a comparison synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Build compares two or more personas. The overlay, when present, fills
// commonPoints, differences, and the detailed analysis; a nil overlay
// falls back to a minimal deterministic analysis so the comparison is
// never empty-handed.
func (s *Synthesizer) Build(personas []model.Persona, overlay *model.ComparisonOverlay) (*model.Comparison, error) {
	if len(personas) < 2 {
		return nil, fmt.Errorf("comparison needs at least 2 personas, got %d", len(personas))
	}

	cmp := &model.Comparison{
		Personas: make([]string, 0, len(personas)),
		Fields: model.ComparisonFields{
			OneLineSummary:       make(map[string]string),
			BackgroundStory:      make(map[string]string),
			ProxyStructure:       make(map[string]model.ProxyPurchaseStructure),
			JobToBeDone:          make(map[string]model.JobToBeDone),
			DecisionCriteriaTop5: make(map[string][]model.CriterionWeight),
			TypicalJourney:       make(map[string]model.Journey),
			CommonMisconceptions: make(map[string][]string),
			EffectiveStrategies:  make(map[string]model.Strategies),
		},
		CommonPoints: []string{},
		Differences:  []string{},
	}

	for _, p := range personas {
		cmp.Personas = append(cmp.Personas, p.ID)
		cmp.Fields.OneLineSummary[p.ID] = p.OneLineSummary
		cmp.Fields.BackgroundStory[p.ID] = p.BackgroundStory
		cmp.Fields.ProxyStructure[p.ID] = p.ProxyStructure
		cmp.Fields.JobToBeDone[p.ID] = p.JobToBeDone
		cmp.Fields.DecisionCriteriaTop5[p.ID] = p.DecisionCriteriaTop5
		cmp.Fields.TypicalJourney[p.ID] = p.TypicalJourney
		cmp.Fields.CommonMisconceptions[p.ID] = p.CommonMisconceptions
		cmp.Fields.EffectiveStrategies[p.ID] = p.EffectiveStrategies
	}

	if overlay != nil {
		if len(overlay.CommonPoints) > 0 {
			cmp.CommonPoints = overlay.CommonPoints
		}
		if len(overlay.Differences) > 0 {
			cmp.Differences = overlay.Differences
		}
		if len(overlay.DetailedAnalysis) > 0 {
			cmp.DetailedAnalysis = overlay.DetailedAnalysis
		}
		return cmp, nil
	}

	s.fallbackAnalysis(personas, cmp)
	return cmp, nil
}

// fallbackAnalysis derives a minimal common/differing summary from the
// persona data itself.
func (s *Synthesizer) fallbackAnalysis(personas []model.Persona, cmp *model.Comparison) {
	seen := make(map[string]bool)
	var criteria []string
	for _, p := range personas {
		for _, c := range p.DecisionCriteriaTop5 {
			if !seen[c.Key] {
				seen[c.Key] = true
				criteria = append(criteria, c.Key)
			}
		}
	}
	if len(criteria) > 0 {
		cmp.CommonPoints = append(cmp.CommonPoints, "判断基準: "+strings.Join(criteria, ", "))
	}

	summaries := make(map[string]bool)
	for _, p := range personas {
		summaries[p.OneLineSummary] = true
	}
	if len(summaries) == len(personas) {
		cmp.Differences = append(cmp.Differences, "各ペルソナの特徴が異なる（詳細な分析は生成できませんでした）")
	}
}
