package model

// ComparisonFields maps each of the eight fixed semantic fields to a
// per-persona-id value table.
type ComparisonFields struct {
	OneLineSummary       map[string]string                 `json:"one_line_summary"`
	BackgroundStory      map[string]string                 `json:"background_story"`
	ProxyStructure       map[string]ProxyPurchaseStructure `json:"proxy_purchase_structure"`
	JobToBeDone          map[string]JobToBeDone            `json:"job_to_be_done"`
	DecisionCriteriaTop5 map[string][]CriterionWeight      `json:"decision_criteria_top5"`
	TypicalJourney       map[string]Journey                `json:"typical_journey"`
	CommonMisconceptions map[string][]string               `json:"common_misconceptions"`
	EffectiveStrategies  map[string]Strategies             `json:"effective_strategies"`
}

// FieldAnalysis is the common/differing breakdown for one comparison field.
type FieldAnalysis struct {
	CommonPoints []string `json:"commonPoints"`
	Differences  []string `json:"differences"`
}

// ComparisonOverlay is the optional oracle-provided analysis merged into a
// comparison. It never replaces the re-projected field tables.
type ComparisonOverlay struct {
	CommonPoints     []string                 `json:"commonPoints"`
	Differences      []string                 `json:"differences"`
	DetailedAnalysis map[string]FieldAnalysis `json:"detailedAnalysis,omitempty"`
}

// Comparison holds 2+ personas side by side.
type Comparison struct {
	Personas         []string                 `json:"personas"`
	Fields           ComparisonFields         `json:"comparison"`
	CommonPoints     []string                 `json:"commonPoints"`
	Differences      []string                 `json:"differences"`
	DetailedAnalysis map[string]FieldAnalysis `json:"detailedAnalysis,omitempty"`
}
