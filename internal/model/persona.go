package model

import "time"

// ProxyPurchaseStructure describes whose problem a persona solves and how.
type ProxyPurchaseStructure struct {
	WhoseProblem string `json:"whose_problem"`
	WhoSolves    string `json:"who_solves"`
	How          string `json:"how"`
}

// Journey is the persona's typical path from trigger to retention.
type Journey struct {
	Trigger       string `json:"trigger"`
	Consideration string `json:"consideration"`
	Purchase      string `json:"purchase"`
	Retention     string `json:"retention"`
}

// Strategies lists tactics hypothesized to work for a persona.
type Strategies struct {
	Messages    []string `json:"messages,omitempty"`
	Touchpoints []string `json:"touchpoints,omitempty"`
	Offers      []string `json:"offers,omitempty"`
}

// EvidenceQuote is one supporting excerpt attached to a persona.
type EvidenceQuote struct {
	Text         string `json:"text"`
	RespondentID string `json:"respondent_id"`
	Category     string `json:"category"`
}

// Evidence is the quote set backing a persona hypothesis.
type Evidence struct {
	Quotes []EvidenceQuote `json:"quotes"`
	Count  int             `json:"count"`
}

// Persona is a narrative hypothesis synthesized by the oracle from one
// cluster. The core only shape-validates it; the narrative content is the
// oracle's.
type Persona struct {
	ID                   string                 `json:"id"`
	ClusterID            string                 `json:"cluster_id"`
	OneLineSummary       string                 `json:"one_line_summary"`
	BackgroundStory      string                 `json:"background_story"`
	ProxyStructure       ProxyPurchaseStructure `json:"proxy_purchase_structure"`
	JobToBeDone          JobToBeDone            `json:"job_to_be_done"`
	DecisionCriteriaTop5 []CriterionWeight      `json:"decision_criteria_top5"`
	TypicalJourney       Journey                `json:"typical_journey"`
	CommonMisconceptions []string               `json:"common_misconceptions"`
	EffectiveStrategies  Strategies             `json:"effective_strategies"`
	Evidence             Evidence               `json:"evidence"`
}

// PersonaAxis gives persona generation a direction (e.g. "自身購入で悩みが深い人").
type PersonaAxis struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

// SavedPersona is the knowledge-base form of a persona. The schema is fixed
// for cross-application exchange.
type SavedPersona struct {
	PersonaID       string                 `json:"persona_id"`
	Title           string                 `json:"title"`
	HypothesisLabel string                 `json:"hypothesis_label"` // fixed: "仮説ペルソナ"
	Summary         string                 `json:"summary"`
	Story           string                 `json:"story"`
	ProxyStructure  ProxyPurchaseStructure `json:"proxy_structure"`
	JTBD            JobToBeDone            `json:"jtbd"`
	CriteriaTop5    []CriterionWeight      `json:"decision_criteria_top5"`
	Journey         Journey                `json:"journey"`
	Pitfalls        []string               `json:"pitfalls"`
	Tactics         Strategies             `json:"tactics"`
	Evidence        Evidence               `json:"evidence"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	SourceProjectID string                 `json:"source_project_id,omitempty"`
	Owner           string                 `json:"owner,omitempty"`
	Shared          bool                   `json:"shared"`
}

// SavedComparison is the knowledge-base form of a persona comparison.
type SavedComparison struct {
	ComparisonID    string     `json:"comparison_id"`
	Title           string     `json:"title"`
	HypothesisLabel string     `json:"hypothesis_label"` // fixed: "仮説比較"
	Personas        []string   `json:"personas"`
	Comparison      Comparison `json:"comparison_data"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SourceProjectID string     `json:"source_project_id,omitempty"`
	Owner           string     `json:"owner,omitempty"`
	Shared          bool       `json:"shared"`
}
