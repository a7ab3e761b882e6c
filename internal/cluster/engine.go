// Package cluster groups finalized extraction records into 2-5 respondent
// clusters using deterministic rules. No oracle is involved; the same
// records always produce the same aggregation.
package cluster

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/personaforge/personaforge/internal/model"
)

const (
	maxClusters   = 5
	keptOnMerge   = 4
	maxRepQuotes  = 7
	topPatternLen = 3
)

// priorityCategories are the quote categories preferred as representative
// evidence for a cluster.
var priorityCategories = map[string]bool{
	"trigger":  true,
	"barriers": true,
	"role":     true,
}

// Engine performs rule-based clustering.
type Engine struct{}

// NewEngine creates a clustering engine.
func NewEngine() *Engine {
	return &Engine{}
}

// group is an intermediate cluster before synthesis.
type group struct {
	key     string
	records []model.ExtractionRecord
}

// Aggregate clusters the given finalized records. Records must not be
// empty; the caller gates on dataset finalization.
func (e *Engine) Aggregate(records []model.ExtractionRecord) (*model.Aggregation, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no finalized records to aggregate")
	}

	groups := e.groupByKey(records)

	if len(groups) > maxClusters {
		groups = e.mergeSmallest(groups)
	}
	if len(groups) < 2 && len(records) >= 2 {
		groups = e.split(groups)
	}

	clusters := make([]model.Cluster, 0, len(groups))
	for i, g := range groups {
		clusters = append(clusters, e.synthesize(g, i+1, len(records)))
	}

	return &model.Aggregation{
		Clusters:         clusters,
		TotalRespondents: len(records),
		Metadata: model.AggregationMeta{
			GeneratedAt:     time.Now(),
			ExtractionCount: len(records),
		},
	}, nil
}

// clusterKey builds the grouping key from role, relationship, and the two
// highest-weighted decision criteria.
func clusterKey(rec *model.ExtractionRecord) string {
	criteria := "unknown"
	if keys := rec.DecisionCriteria.TopKeys(2); len(keys) > 0 {
		criteria = strings.Join(keys, "_")
	}
	return rec.RoleOr("unknown") + "_" + rec.RelationshipOr("unknown") + "_" + criteria
}

// groupByKey partitions records preserving first-seen key order, so the
// output is stable for a given input order.
func (e *Engine) groupByKey(records []model.ExtractionRecord) []group {
	index := make(map[string]int)
	var groups []group
	for _, rec := range records {
		key := clusterKey(&rec)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// mergeSmallest keeps the four largest groups and pools the rest into an
// "other" group. Ties keep first-seen order.
func (e *Engine) mergeSmallest(groups []group) []group {
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].records) > len(groups[j].records)
	})
	kept := groups[:keptOnMerge]
	other := group{key: "other"}
	for _, g := range groups[keptOnMerge:] {
		other.records = append(other.records, g.records...)
	}
	if len(other.records) > 0 {
		kept = append(kept, other)
	}
	return kept
}

// split divides a single group in two. The primary axis is a strong price
// weight; when that leaves one side empty, the criterion with the highest
// weight variance across the group is tried instead. A group that still
// cannot be divided stays a single cluster.
func (e *Engine) split(groups []group) []group {
	g := groups[0]

	if parts, ok := splitOn(g, "price", func(d *model.DecisionCriteria) *float64 {
		if d == nil {
			return nil
		}
		return d.Price
	}); ok {
		return parts
	}

	if key, pick := highestVarianceCriterion(g.records); key != "" {
		if parts, ok := splitOn(g, key, pick); ok {
			return parts
		}
	}

	return groups
}

// splitOn divides g into records where the picked criterion exceeds 0.5 and
// the rest. It reports false when either side would be empty.
func splitOn(g group, key string, pick func(*model.DecisionCriteria) *float64) ([]group, bool) {
	high := group{key: g.key + "_" + key}
	rest := group{key: g.key + "_other"}
	for _, rec := range g.records {
		if v := pick(rec.DecisionCriteria); v != nil && *v > 0.5 {
			high.records = append(high.records, rec)
		} else {
			rest.records = append(rest.records, rec)
		}
	}
	if len(high.records) == 0 || len(rest.records) == 0 {
		return nil, false
	}
	return []group{high, rest}, true
}

// highestVarianceCriterion finds the criterion whose weights vary the most
// across the records. Ties resolve in canonical criterion order.
func highestVarianceCriterion(records []model.ExtractionRecord) (string, func(*model.DecisionCriteria) *float64) {
	pickers := map[string]func(*model.DecisionCriteria) *float64{
		"price":         func(d *model.DecisionCriteria) *float64 { return d.Price },
		"trust":         func(d *model.DecisionCriteria) *float64 { return d.Trust },
		"effort":        func(d *model.DecisionCriteria) *float64 { return d.Effort },
		"effectiveness": func(d *model.DecisionCriteria) *float64 { return d.Effectiveness },
	}

	bestKey := ""
	bestVar := 0.0
	for _, key := range []string{"price", "trust", "effort", "effectiveness"} {
		pick := pickers[key]
		var values []float64
		for _, rec := range records {
			if rec.DecisionCriteria == nil {
				continue
			}
			if v := pick(rec.DecisionCriteria); v != nil {
				values = append(values, *v)
			}
		}
		if len(values) < 2 {
			continue
		}
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		variance := 0.0
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(values))
		if variance > bestVar {
			bestVar = variance
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", nil
	}
	pick := pickers[bestKey]
	return bestKey, func(d *model.DecisionCriteria) *float64 {
		if d == nil {
			return nil
		}
		return pick(d)
	}
}

// synthesize builds the cluster summary: name, prevalence, frequent
// patterns, averaged criteria weights, and representative quotes.
func (e *Engine) synthesize(g group, ordinal, total int) model.Cluster {
	first := &g.records[0]
	mainCriterion := "unknown"
	if keys := first.DecisionCriteria.TopKeys(1); len(keys) > 0 {
		mainCriterion = keys[0]
	}
	name := fmt.Sprintf("%s_%s_%s重視型", first.RoleOr("不明"), first.RelationshipOr("不明"), mainCriterion)

	ids := make([]string, 0, len(g.records))
	for _, rec := range g.records {
		ids = append(ids, rec.RespondentID)
	}

	return model.Cluster{
		ID:            fmt.Sprintf("cluster-%d", ordinal),
		Name:          name,
		RespondentIDs: ids,
		Prevalence:    float64(len(g.records)) / float64(total),
		Patterns: model.ClusterPatterns{
			Triggers:         topByFrequency(g.records, func(r *model.ExtractionRecord) []string { return r.Trigger }),
			DecisionCriteria: averageCriteria(g.records),
			Barriers:         topByFrequency(g.records, func(r *model.ExtractionRecord) []string { return r.Barriers }),
		},
		RepresentativeQuotes: representativeQuotes(g.records),
	}
}

// topByFrequency returns the three most frequent values, ties broken by
// first appearance.
func topByFrequency(records []model.ExtractionRecord, pick func(*model.ExtractionRecord) []string) []string {
	counts := make(map[string]int)
	var order []string
	for _, rec := range records {
		for _, v := range pick(&rec) {
			if _, seen := counts[v]; !seen {
				order = append(order, v)
			}
			counts[v]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topPatternLen {
		order = order[:topPatternLen]
	}
	return order
}

// averageCriteria averages each criterion over the records that carry a
// positive weight for it.
func averageCriteria(records []model.ExtractionRecord) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		for _, e := range rec.DecisionCriteria.Entries() {
			if e.Weight == 0 {
				continue
			}
			sums[e.Key] += e.Weight
			counts[e.Key]++
		}
	}
	avg := make(map[string]float64, len(sums))
	for k, sum := range sums {
		avg[k] = sum / float64(counts[k])
	}
	return avg
}

// representativeQuotes collects up to seven quotes whose category marks
// them as trigger, barrier, or role evidence, in record order.
func representativeQuotes(records []model.ExtractionRecord) []model.RepresentativeQuote {
	var out []model.RepresentativeQuote
	for _, rec := range records {
		for _, q := range rec.Quotes {
			if !priorityCategories[q.Category] {
				continue
			}
			out = append(out, model.RepresentativeQuote{
				Quote:        q.Text,
				RespondentID: rec.RespondentID,
				Category:     q.Category,
				QuoteID:      q.ID,
			})
		}
	}
	if len(out) > maxRepQuotes {
		out = out[:maxRepQuotes]
	}
	return out
}
