package cluster

import (
	"fmt"
	"testing"

	"github.com/personaforge/personaforge/internal/model"
)

func strptr(s string) *string { return &s }

func fptr(v float64) *float64 { return &v }

func record(id, role, relationship string, criteria *model.DecisionCriteria) model.ExtractionRecord {
	return model.ExtractionRecord{
		RespondentID:     id,
		Role:             strptr(role),
		Relationship:     strptr(relationship),
		DecisionCriteria: criteria,
		Finalized:        true,
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	if _, err := NewEngine().Aggregate(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestAggregate_GroupsByRoleRelationshipCriteria(t *testing.T) {
	records := []model.ExtractionRecord{
		record("respondent-001", "代理購入者", "配偶者", &model.DecisionCriteria{Price: fptr(0.8), Trust: fptr(0.6)}),
		record("respondent-002", "代理購入者", "配偶者", &model.DecisionCriteria{Price: fptr(0.9), Trust: fptr(0.7)}),
		record("respondent-003", "本人購入者", "本人", &model.DecisionCriteria{Effectiveness: fptr(0.9)}),
		record("respondent-004", "本人購入者", "本人", &model.DecisionCriteria{Effectiveness: fptr(0.8)}),
	}

	agg, err := NewEngine().Aggregate(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(agg.Clusters))
	}
	if agg.TotalRespondents != 4 {
		t.Errorf("expected 4 total respondents, got %d", agg.TotalRespondents)
	}
	if agg.Metadata.ExtractionCount != 4 {
		t.Errorf("expected extraction count 4, got %d", agg.Metadata.ExtractionCount)
	}

	// Every respondent lands in exactly one cluster.
	seen := make(map[string]int)
	for _, c := range agg.Clusters {
		for _, id := range c.RespondentIDs {
			seen[id]++
		}
	}
	for _, rec := range records {
		if seen[rec.RespondentID] != 1 {
			t.Errorf("respondent %s appears %d times", rec.RespondentID, seen[rec.RespondentID])
		}
	}

	if agg.Clusters[0].Name != "代理購入者_配偶者_price重視型" {
		t.Errorf("unexpected cluster name: %s", agg.Clusters[0].Name)
	}
	if agg.Clusters[0].Prevalence != 0.5 {
		t.Errorf("expected prevalence 0.5, got %.2f", agg.Clusters[0].Prevalence)
	}
	if agg.Clusters[0].ID != "cluster-1" || agg.Clusters[1].ID != "cluster-2" {
		t.Errorf("expected sequential cluster ids, got %s, %s", agg.Clusters[0].ID, agg.Clusters[1].ID)
	}
}

func TestAggregate_MergesBeyondFiveClusters(t *testing.T) {
	// Seven distinct keys with descending sizes. The three smallest pool
	// into "other", capping the result at five clusters.
	var records []model.ExtractionRecord
	sizes := []int{5, 4, 3, 2, 1, 1, 1}
	for g, size := range sizes {
		for i := 0; i < size; i++ {
			records = append(records, record(
				fmt.Sprintf("respondent-%02d-%02d", g, i),
				fmt.Sprintf("role%d", g), "本人",
				&model.DecisionCriteria{Price: fptr(0.5)},
			))
		}
	}

	agg, err := NewEngine().Aggregate(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Clusters) != 5 {
		t.Fatalf("expected 5 clusters after merge, got %d", len(agg.Clusters))
	}

	other := agg.Clusters[4]
	if len(other.RespondentIDs) != 3 {
		t.Errorf("expected 3 respondents in the merged cluster, got %d", len(other.RespondentIDs))
	}
	// Merge never loses records.
	total := 0
	for _, c := range agg.Clusters {
		total += len(c.RespondentIDs)
	}
	if total != len(records) {
		t.Errorf("expected %d respondents across clusters, got %d", len(records), total)
	}
}

func TestAggregate_SplitsSingleClusterOnPrice(t *testing.T) {
	// Same key, different price weights: price > 0.5 divides them.
	records := []model.ExtractionRecord{
		record("respondent-001", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.9), Trust: fptr(0.2)}),
		record("respondent-002", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.8), Trust: fptr(0.1)}),
		record("respondent-003", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.7), Trust: fptr(0.1)}),
	}
	// Third record drops below the split threshold.
	records[2].DecisionCriteria.Price = fptr(0.3)

	agg, err := NewEngine().Aggregate(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Clusters) != 2 {
		t.Fatalf("expected split into 2 clusters, got %d", len(agg.Clusters))
	}
	if len(agg.Clusters[0].RespondentIDs) != 2 || len(agg.Clusters[1].RespondentIDs) != 1 {
		t.Errorf("unexpected split sizes: %d / %d",
			len(agg.Clusters[0].RespondentIDs), len(agg.Clusters[1].RespondentIDs))
	}
}

func TestAggregate_SplitFallsBackToVariance(t *testing.T) {
	// All price weights are high, so the price split leaves one side empty.
	// Trust varies, so the split falls back to it.
	records := []model.ExtractionRecord{
		record("respondent-001", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.9), Trust: fptr(0.9)}),
		record("respondent-002", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.9), Trust: fptr(0.1)}),
	}

	agg, err := NewEngine().Aggregate(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Clusters) != 2 {
		t.Fatalf("expected variance-based split into 2 clusters, got %d", len(agg.Clusters))
	}
}

func TestAggregate_AcceptsSingleIndivisibleCluster(t *testing.T) {
	// Identical records cannot be split on any criterion.
	records := []model.ExtractionRecord{
		record("respondent-001", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.9)}),
		record("respondent-002", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.9)}),
	}

	agg, err := NewEngine().Aggregate(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Clusters) != 1 {
		t.Fatalf("expected 1 cluster when indivisible, got %d", len(agg.Clusters))
	}
}

func TestAggregate_PatternsAndAverages(t *testing.T) {
	r1 := record("respondent-001", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.8)})
	r1.Trigger = []string{"肌の乾燥", "広告"}
	r1.Barriers = []string{"価格"}
	r2 := record("respondent-002", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.6)})
	r2.Trigger = []string{"肌の乾燥", "口コミ", "季節の変化", "プレゼント"}
	r2.Barriers = []string{"価格", "効果への疑い"}

	agg, err := NewEngine().Aggregate([]model.ExtractionRecord{r1, r2})
	if err != nil {
		t.Fatal(err)
	}
	c := agg.Clusters[0]

	if len(c.Patterns.Triggers) != 3 {
		t.Fatalf("expected top-3 triggers, got %v", c.Patterns.Triggers)
	}
	if c.Patterns.Triggers[0] != "肌の乾燥" {
		t.Errorf("expected most frequent trigger first, got %v", c.Patterns.Triggers)
	}
	if got := c.Patterns.DecisionCriteria["price"]; got < 0.69 || got > 0.71 {
		t.Errorf("expected averaged price weight 0.7, got %.2f", got)
	}
	if len(c.Patterns.Barriers) != 2 || c.Patterns.Barriers[0] != "価格" {
		t.Errorf("unexpected barriers: %v", c.Patterns.Barriers)
	}
}

func TestAggregate_RepresentativeQuotes(t *testing.T) {
	rec := record("respondent-001", "本人購入者", "本人", &model.DecisionCriteria{Price: fptr(0.8)})
	for i := 0; i < 10; i++ {
		rec.Quotes = append(rec.Quotes, model.Quote{
			ID:       fmt.Sprintf("quote-%03d", i+1),
			Text:     "きっかけについての発言",
			Category: "trigger",
		})
	}
	// Quotes outside the priority categories are ignored.
	rec.Quotes = append(rec.Quotes, model.Quote{ID: "quote-099", Text: "その他", Category: "household"})

	agg, err := NewEngine().Aggregate([]model.ExtractionRecord{rec})
	if err != nil {
		t.Fatal(err)
	}
	quotes := agg.Clusters[0].RepresentativeQuotes
	if len(quotes) != 7 {
		t.Fatalf("expected 7 representative quotes, got %d", len(quotes))
	}
	for _, q := range quotes {
		if q.Category == "household" {
			t.Errorf("non-priority category leaked into representative quotes")
		}
		if q.RespondentID != "respondent-001" {
			t.Errorf("quote lost its respondent attribution: %+v", q)
		}
	}
}
