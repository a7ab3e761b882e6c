package model

import "time"

// Quote is an attributed excerpt of source text. Created once by the
// extraction step and immutable afterwards; owned by exactly one record.
type Quote struct {
	ID           string     `json:"id"`          // e.g. "quote-001"
	Text         string     `json:"text"`        // claimed excerpt
	SourceFile   string     `json:"source_file"` // matches Statement.Source
	LineNumber   int        `json:"line_number,omitempty"`
	LineRange    *LineRange `json:"line_range,omitempty"`
	Category     string     `json:"category"`     // field the quote supports: "trigger", "barriers", "role", ...
	StatementID  string     `json:"statement_id"` // statement the excerpt was taken from
	LinkedFields []string   `json:"linked_fields,omitempty"`
}

// Household describes the respondent's household, when stated.
type Household struct {
	Composition string `json:"composition,omitempty"`
	AgeRange    string `json:"age_range,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
}

// PurchaseContext describes how and when purchases happen.
type PurchaseContext struct {
	Timing  string `json:"timing,omitempty"`
	Channel string `json:"channel,omitempty"`
	Type    string `json:"type,omitempty"` // 定期, まとめ買い, 単発
}

// JobToBeDone splits the respondent's job-to-be-done into the three
// classic dimensions.
type JobToBeDone struct {
	Functional []string `json:"functional,omitempty"`
	Emotional  []string `json:"emotional,omitempty"`
	Social     []string `json:"social,omitempty"`
}

// DecisionCriteria holds per-criterion weights in [0,1]. A nil field means
// the criterion was never mentioned, which is different from weight zero.
type DecisionCriteria struct {
	Price         *float64 `json:"price,omitempty"`
	Trust         *float64 `json:"trust,omitempty"`
	Effort        *float64 `json:"effort,omitempty"`
	Effectiveness *float64 `json:"effectiveness,omitempty"`
}

// CriterionWeight is one named criterion with its weight.
type CriterionWeight struct {
	Key    string  `json:"criterion"`
	Weight float64 `json:"weight"`
}

// criterionOrder is the canonical key order, used for deterministic
// tie-breaking wherever criteria are ranked.
var criterionOrder = []string{"price", "trust", "effort", "effectiveness"}

// Entries returns the non-nil criteria in canonical key order.
func (d *DecisionCriteria) Entries() []CriterionWeight {
	if d == nil {
		return nil
	}
	byKey := map[string]*float64{
		"price":         d.Price,
		"trust":         d.Trust,
		"effort":        d.Effort,
		"effectiveness": d.Effectiveness,
	}
	var out []CriterionWeight
	for _, k := range criterionOrder {
		if v := byKey[k]; v != nil {
			out = append(out, CriterionWeight{Key: k, Weight: *v})
		}
	}
	return out
}

// TopKeys returns the n highest-weighted criterion keys, ties broken by
// canonical key order.
func (d *DecisionCriteria) TopKeys(n int) []string {
	entries := d.Entries()
	// stable insertion sort by descending weight; Entries is already in
	// canonical order so equal weights keep it
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Weight > entries[j-1].Weight; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if n > len(entries) {
		n = len(entries)
	}
	keys := make([]string, 0, n)
	for _, e := range entries[:n] {
		keys = append(keys, e.Key)
	}
	return keys
}

// BehaviorPatterns captures who buys, when, and what.
type BehaviorPatterns struct {
	Who  string `json:"who,omitempty"`
	When string `json:"when,omitempty"`
	What string `json:"what,omitempty"`
}

// FieldQuotes indexes quotes by the field they back. Keys are field names,
// optionally dotted for sub-fields ("job_to_be_done.functional",
// "decision_criteria.price").
type FieldQuotes map[string][]Quote

// Add appends a quote under the given field key.
func (f FieldQuotes) Add(field string, q Quote) {
	f[field] = append(f[field], q)
}

// ConfidenceBreakdown is the transparent three-part confidence score.
type ConfidenceBreakdown struct {
	QuoteCountScore        float64 `json:"quote_count_score"`        // 0-0.4
	FieldCompletenessScore float64 `json:"field_completeness_score"` // 0-0.3
	QuoteClarityScore      float64 `json:"quote_clarity_score"`      // 0-0.3
}

// Actor identifies who authored a change.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorUser   Actor = "user"
)

// ExtractionRecord is one respondent's structured facts with quote
// provenance. Once Finalized is set the record is read-only and becomes
// legal input to aggregation.
type ExtractionRecord struct {
	RespondentID string `json:"respondent_id"`

	Role         *string `json:"role"`         // e.g. 代理購入者, 本人購入者; nil when unknown
	Relationship *string `json:"relationship"` // e.g. 配偶者, 親, 子; nil when unknown

	Household          *Household        `json:"household"`
	PurchaseContext    *PurchaseContext  `json:"purchase_context"`
	Trigger            []string          `json:"trigger"`
	JobToBeDone        *JobToBeDone      `json:"job_to_be_done"`
	Barriers           []string          `json:"barriers"`
	DecisionCriteria   *DecisionCriteria `json:"decision_criteria"`
	InformationSources []string          `json:"information_sources"`
	BehaviorPatterns   *BehaviorPatterns `json:"behavior_patterns"`

	// Quotes always holds at least one entry; a fallback quote is
	// synthesized at creation when the oracle returns none.
	Quotes      []Quote     `json:"quotes"`
	FieldQuotes FieldQuotes `json:"field_quotes"`

	Confidence          float64             `json:"confidence"` // 0-1
	ConfidenceBreakdown ConfidenceBreakdown `json:"confidence_breakdown"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy Actor     `json:"created_by"`
	UpdatedBy Actor     `json:"updated_by"`

	Finalized   bool       `json:"finalized"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// RoleOr returns the role, or def when unset.
func (r *ExtractionRecord) RoleOr(def string) string {
	if r.Role == nil || *r.Role == "" {
		return def
	}
	return *r.Role
}

// RelationshipOr returns the relationship, or def when unset.
func (r *ExtractionRecord) RelationshipOr(def string) string {
	if r.Relationship == nil || *r.Relationship == "" {
		return def
	}
	return *r.Relationship
}
