package model

import "time"

// RepresentativeQuote is one quote chosen to illustrate a cluster. It is
// always drawn from a member record's quotes, never synthesized.
type RepresentativeQuote struct {
	Quote        string `json:"quote"`
	RespondentID string `json:"respondent_id"`
	Category     string `json:"category"`
	QuoteID      string `json:"quote_id"`
}

// ClusterPatterns summarizes the behavioral pattern shared by a cluster.
type ClusterPatterns struct {
	Triggers         []string           `json:"triggers"`          // top triggers by frequency
	DecisionCriteria map[string]float64 `json:"decision_criteria"` // per-key mean over members with a value
	Barriers         []string           `json:"barriers"`          // top barriers by frequency
}

// Cluster is one behavioral segment of an Aggregation.
type Cluster struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"` // e.g. "代理購入者_配偶者_price重視型"
	RespondentIDs        []string              `json:"respondent_ids"`
	Prevalence           float64               `json:"prevalence"` // member count / total, in (0,1]
	Patterns             ClusterPatterns       `json:"patterns"`
	RepresentativeQuotes []RepresentativeQuote `json:"representative_quotes"` // 3-7 when available
}

// AggregationMeta records when and from how many records an aggregation
// was generated.
type AggregationMeta struct {
	GeneratedAt     time.Time `json:"generated_at"`
	ExtractionCount int       `json:"extraction_count"`
}

// Aggregation is the clustered, prevalence-weighted summary of all
// finalized extraction records. It is derived and fully regenerable; a
// regeneration replaces it wholesale.
//
// Invariant: every respondent belongs to exactly one cluster, and the
// cluster count is in [2,5] whenever two or more finalized records exist.
type Aggregation struct {
	Clusters         []Cluster       `json:"clusters"`
	TotalRespondents int             `json:"total_respondents"`
	Metadata         AggregationMeta `json:"metadata"`
}
