package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/oracle"
)

// mockProvider scripts oracle answers per stage.
type mockProvider struct {
	extractions map[string][]oracle.ExtractionProposal
	extractErr  map[string]error

	aggregation    *model.Aggregation
	aggregationErr error

	axes    []model.PersonaAxis
	axesErr error

	personas    []model.Persona
	personasErr error

	overlay    *model.ComparisonOverlay
	overlayErr error
}

func (m *mockProvider) Name() string { return "mock" }
func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) ProposeExtractions(ctx context.Context, req oracle.ExtractionRequest) ([]oracle.ExtractionProposal, error) {
	if err := m.extractErr[req.SourceID]; err != nil {
		return nil, err
	}
	return m.extractions[req.SourceID], nil
}

func (m *mockProvider) ProposeAggregation(ctx context.Context, records []model.ExtractionRecord) (*model.Aggregation, error) {
	return m.aggregation, m.aggregationErr
}

func (m *mockProvider) ProposePersonaAxes(ctx context.Context, agg *model.Aggregation) ([]model.PersonaAxis, error) {
	return m.axes, m.axesErr
}

func (m *mockProvider) ProposePersonas(ctx context.Context, agg *model.Aggregation, axes []model.PersonaAxis) ([]model.Persona, error) {
	return m.personas, m.personasErr
}

func (m *mockProvider) ProposeComparisonAnalysis(ctx context.Context, personas []model.Persona) (*model.ComparisonOverlay, error) {
	return m.overlay, m.overlayErr
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 2
	cfg.Output.Verbose = false
	return cfg
}

func strPtr(s string) *string { return &s }

func sourceWith(id, text string) model.InputSource {
	return model.InputSource{ID: id, Type: "interview", Text: text, CreatedAt: time.Now()}
}

func TestExtractSource_CommitsDefaults(t *testing.T) {
	text := "肌の乾燥が気になっていました。\n広告を見て購入しました。"
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"interview_001.txt": {{
				Role:         strPtr("本人購入者"),
				Relationship: strPtr("本人"),
				Trigger:      []string{"肌の乾燥"},
				Quotes: []oracle.QuoteProposal{
					{QuoteText: "肌の乾燥が気になっていました", Category: "trigger"},
					{QuoteText: "広告を見て購入しました", Category: "", LinkedFields: []string{"job_to_be_done"}},
				},
			}},
		},
	}
	p := New(testConfig(), provider)

	records, err := p.ExtractSource(context.Background(), sourceWith("interview_001.txt", text))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]

	if rec.RespondentID != "R001" {
		t.Errorf("expected generated id R001, got %s", rec.RespondentID)
	}
	if rec.CreatedBy != model.ActorSystem || rec.UpdatedBy != model.ActorSystem {
		t.Errorf("expected system actor, got %s/%s", rec.CreatedBy, rec.UpdatedBy)
	}
	if len(rec.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(rec.Quotes))
	}
	if rec.Quotes[0].ID != "quote-001" || rec.Quotes[1].ID != "quote-002" {
		t.Errorf("unexpected quote ids: %s, %s", rec.Quotes[0].ID, rec.Quotes[1].ID)
	}
	if rec.Quotes[0].StatementID != "stmt-source-interview_001.txt" {
		t.Errorf("statement id not defaulted: %s", rec.Quotes[0].StatementID)
	}
	if rec.Quotes[0].SourceFile != "interview_001.txt" {
		t.Errorf("source file not defaulted: %s", rec.Quotes[0].SourceFile)
	}
	if got := rec.Quotes[0].LinkedFields; len(got) != 1 || got[0] != "trigger" {
		t.Errorf("linked fields should default to category: %v", got)
	}
	if rec.Quotes[1].Category != "general" {
		t.Errorf("category not defaulted: %s", rec.Quotes[1].Category)
	}

	if len(rec.FieldQuotes["trigger"]) != 1 {
		t.Errorf("trigger field quote missing: %v", rec.FieldQuotes)
	}
	if len(rec.FieldQuotes["job_to_be_done.functional"]) != 1 {
		t.Errorf("parent jtbd link should land on functional: %v", rec.FieldQuotes)
	}

	if rec.Confidence <= 0 {
		t.Errorf("confidence not scored: %v", rec.Confidence)
	}
	if p.Store().Len() != 1 {
		t.Errorf("record not committed to store")
	}
}

func TestExtractSource_FallbackQuote(t *testing.T) {
	long := strings.Repeat("あ", 300) + "\n二行目"
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"interview_001.txt": {{Role: strPtr("本人購入者")}},
		},
	}
	p := New(testConfig(), provider)

	records, err := p.ExtractSource(context.Background(), sourceWith("interview_001.txt", long))
	if err != nil {
		t.Fatal(err)
	}
	rec := records[0]

	if len(rec.Quotes) != 1 {
		t.Fatalf("expected one fallback quote, got %d", len(rec.Quotes))
	}
	q := rec.Quotes[0]
	if len([]rune(q.Text)) != 200 {
		t.Errorf("fallback quote should be capped at 200 runes, got %d", len([]rune(q.Text)))
	}
	if q.Category != "general" || q.LineNumber != 1 {
		t.Errorf("unexpected fallback quote: %+v", q)
	}
	if q.LineRange == nil || q.LineRange.Start != 1 || q.LineRange.End != 2 {
		t.Errorf("fallback line range should cover the source: %+v", q.LineRange)
	}
	if len(rec.FieldQuotes["trigger"]) != 1 || len(rec.FieldQuotes["general"]) != 1 {
		t.Errorf("fallback quote not wired into field quotes: %v", rec.FieldQuotes)
	}
}

func TestExtractSource_ListFieldsNeverNull(t *testing.T) {
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"interview_001.txt": {{Role: strPtr("本人購入者")}},
		},
	}
	p := New(testConfig(), provider)

	records, err := p.ExtractSource(context.Background(), sourceWith("interview_001.txt", "発言です。"))
	if err != nil {
		t.Fatal(err)
	}
	rec := records[0]

	if rec.Trigger == nil || rec.Barriers == nil || rec.InformationSources == nil {
		t.Errorf("list fields should default to empty, got trigger=%v barriers=%v sources=%v",
			rec.Trigger, rec.Barriers, rec.InformationSources)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"trigger":[]`, `"barriers":[]`, `"information_sources":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("serialized record missing %s: %s", want, data)
		}
	}
}

func TestExtractSource_FabricatedQuoteRaisesIssue(t *testing.T) {
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"interview_001.txt": {{
				Quotes: []oracle.QuoteProposal{
					{QuoteText: "全く関係のない捏造された発言内容である", Category: "trigger"},
				},
			}},
		},
	}
	p := New(testConfig(), provider)

	if _, err := p.ExtractSource(context.Background(), sourceWith("interview_001.txt", "肌の乾燥が気になっていました。")); err != nil {
		t.Fatal(err)
	}
	issues := p.Issues()
	if len(issues) == 0 {
		t.Fatal("expected an integrity issue for a fabricated quote")
	}
	if issues[0].QuoteID != "quote-001" {
		t.Errorf("issue should name the quote: %+v", issues[0])
	}
}

func TestGenerateExtractions_PartialFailure(t *testing.T) {
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"a.txt": {{Role: strPtr("本人購入者")}},
		},
		extractErr: map[string]error{
			"b.txt": errors.New("rate limited"),
		},
	}
	p := New(testConfig(), provider)

	summary, err := p.GenerateExtractions(context.Background(), []model.InputSource{
		sourceWith("a.txt", "発言です。"),
		sourceWith("b.txt", "発言です。"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Records != 1 {
		t.Errorf("expected 1 record, got %d", summary.Records)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].SourceID != "b.txt" {
		t.Errorf("expected b.txt to fail: %+v", summary.Failed)
	}
}

func TestGenerateExtractions_AllFailed(t *testing.T) {
	provider := &mockProvider{
		extractErr: map[string]error{"a.txt": errors.New("boom")},
	}
	p := New(testConfig(), provider)

	if _, err := p.GenerateExtractions(context.Background(), []model.InputSource{sourceWith("a.txt", "発言。")}); err == nil {
		t.Error("expected error when nothing was extracted")
	}
}

func seedRecords(t *testing.T, p *Pipeline, n int) {
	t.Helper()
	roles := []string{"本人購入者", "代理購入者"}
	for i := 0; i < n; i++ {
		price := 0.2 + 0.6*float64(i%2)
		rec := &model.ExtractionRecord{
			RespondentID:     roleID(i),
			Role:             strPtr(roles[i%2]),
			Relationship:     strPtr("本人"),
			Trigger:          []string{"肌の乾燥"},
			DecisionCriteria: &model.DecisionCriteria{Price: &price},
			Quotes: []model.Quote{{
				ID: "quote-001", Text: "発言です", Category: "trigger", StatementID: "stmt-001",
			}},
			CreatedBy: model.ActorSystem,
			UpdatedBy: model.ActorSystem,
		}
		if err := p.Store().Create(rec); err != nil {
			t.Fatal(err)
		}
	}
}

func roleID(i int) string {
	return "R" + string(rune('0'+i/10)) + string(rune('0'+i%10)) + "0"
}

func TestGenerateAggregation_RequiresFinalize(t *testing.T) {
	p := New(testConfig(), &mockProvider{})
	seedRecords(t, p, 4)

	if _, err := p.GenerateAggregation(context.Background()); err == nil {
		t.Error("expected error before finalize")
	}

	p.FinalizeExtractions()
	agg, err := p.GenerateAggregation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalRespondents != 4 {
		t.Errorf("expected 4 respondents, got %d", agg.TotalRespondents)
	}
	if len(agg.Clusters) < 2 {
		t.Errorf("expected at least 2 clusters, got %d", len(agg.Clusters))
	}
}

func TestGenerateAggregation_OracleFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Oracle.AIAggregation = true

	// Oracle drops a respondent; the partition check must reject it.
	bad := &model.Aggregation{
		Clusters: []model.Cluster{
			{ID: "cluster-1", RespondentIDs: []string{"R000", "R010"}},
			{ID: "cluster-2", RespondentIDs: []string{"R020"}},
		},
		TotalRespondents: 3,
	}
	p := New(cfg, &mockProvider{aggregation: bad})
	seedRecords(t, p, 4)
	p.FinalizeExtractions()

	agg, err := p.GenerateAggregation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, c := range agg.Clusters {
		total += len(c.RespondentIDs)
	}
	if total != 4 {
		t.Errorf("fallback aggregation should cover all 4 respondents, got %d", total)
	}
}

func TestGenerateAggregation_OracleAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.Oracle.AIAggregation = true

	good := &model.Aggregation{
		Clusters: []model.Cluster{
			{ID: "cluster-1", Name: "重視型A", RespondentIDs: []string{"R000", "R010"}},
			{ID: "cluster-2", Name: "重視型B", RespondentIDs: []string{"R020", "R030"}},
		},
		TotalRespondents: 4,
	}
	p := New(cfg, &mockProvider{aggregation: good})
	seedRecords(t, p, 4)
	p.FinalizeExtractions()

	agg, err := p.GenerateAggregation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if agg.Clusters[0].Name != "重視型A" {
		t.Errorf("valid oracle aggregation should be used as-is: %+v", agg.Clusters[0])
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestPipeline_ExtractFinalizeAggregate(t *testing.T) {
	text := "肌の乾燥が気になっていました。親に頼まれて買っています。"
	self := oracle.ExtractionProposal{
		Role:             strPtr("本人購入者"),
		Relationship:     strPtr("本人"),
		Trigger:          []string{"肌の乾燥"},
		DecisionCriteria: &model.DecisionCriteria{Price: floatPtr(0.8)},
		Quotes: []oracle.QuoteProposal{
			{QuoteText: "肌の乾燥が気になっていました", Category: "trigger"},
		},
	}
	proxy := oracle.ExtractionProposal{
		Role:             strPtr("代理購入者"),
		Relationship:     strPtr("配偶者"),
		Barriers:         []string{"価格が高い"},
		DecisionCriteria: &model.DecisionCriteria{Price: floatPtr(0.2)},
		Quotes: []oracle.QuoteProposal{
			{QuoteText: "親に頼まれて買っています", Category: "barriers"},
		},
	}
	provider := &mockProvider{
		extractions: map[string][]oracle.ExtractionProposal{
			"a.txt": {self, proxy},
			"b.txt": {self, proxy},
			"c.txt": {self, proxy},
		},
	}
	p := New(testConfig(), provider)

	summary, err := p.GenerateExtractions(context.Background(), []model.InputSource{
		sourceWith("a.txt", text),
		sourceWith("b.txt", text),
		sourceWith("c.txt", text),
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Records != 6 {
		t.Fatalf("expected 6 records across 3 sources, got %d", summary.Records)
	}
	if len(summary.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", summary.Failed)
	}

	p.FinalizeExtractions()
	agg, err := p.GenerateAggregation(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if agg.TotalRespondents != 6 {
		t.Errorf("expected 6 respondents, got %d", agg.TotalRespondents)
	}
	if len(agg.Clusters) < 2 || len(agg.Clusters) > 5 {
		t.Errorf("expected 2-5 clusters, got %d", len(agg.Clusters))
	}
	seen := make(map[string]bool)
	members := 0
	for _, c := range agg.Clusters {
		members += len(c.RespondentIDs)
		for _, id := range c.RespondentIDs {
			if seen[id] {
				t.Errorf("respondent %s appears in more than one cluster", id)
			}
			seen[id] = true
		}
	}
	if members != 6 {
		t.Errorf("cluster members should sum to 6, got %d", members)
	}
}

func TestGeneratePersonaAxes_SortedAndDefaulted(t *testing.T) {
	provider := &mockProvider{
		axes: []model.PersonaAxis{
			{Name: "軸B", Order: 2},
			{Name: "軸A", Order: 1},
		},
	}
	p := New(testConfig(), provider)
	agg := &model.Aggregation{Clusters: []model.Cluster{{ID: "cluster-1"}}}

	axes, err := p.GeneratePersonaAxes(context.Background(), agg)
	if err != nil {
		t.Fatal(err)
	}
	if axes[0].Name != "軸A" || axes[1].Name != "軸B" {
		t.Errorf("axes not sorted by order: %+v", axes)
	}
	if axes[0].ID != "axis-1" || axes[1].ID != "axis-2" {
		t.Errorf("axis ids not defaulted: %+v", axes)
	}

	if _, err := p.GeneratePersonaAxes(context.Background(), nil); err == nil {
		t.Error("expected error without aggregation")
	}
}

func TestGeneratePersonas_EvidenceBorrowedFromCluster(t *testing.T) {
	agg := &model.Aggregation{
		Clusters: []model.Cluster{{
			ID: "cluster-1",
			RepresentativeQuotes: []model.RepresentativeQuote{
				{Quote: "時短が大事", RespondentID: "R001", Category: "criteria", QuoteID: "quote-001"},
			},
		}},
	}
	provider := &mockProvider{
		personas: []model.Persona{{OneLineSummary: "時短重視層"}},
	}
	p := New(testConfig(), provider)

	personas, err := p.GeneratePersonas(context.Background(), agg, nil)
	if err != nil {
		t.Fatal(err)
	}
	persona := personas[0]
	if persona.ID != "persona-1" || persona.ClusterID != "cluster-1" {
		t.Errorf("ids not defaulted: %+v", persona)
	}
	if len(persona.Evidence.Quotes) != 1 || persona.Evidence.Count != 1 {
		t.Errorf("evidence not borrowed from cluster: %+v", persona.Evidence)
	}
	if persona.Evidence.Quotes[0].Text != "時短が大事" {
		t.Errorf("unexpected evidence quote: %+v", persona.Evidence.Quotes[0])
	}
}

func TestGeneratePersonas_RejectsEmptySummary(t *testing.T) {
	agg := &model.Aggregation{Clusters: []model.Cluster{{ID: "cluster-1"}}}
	provider := &mockProvider{personas: []model.Persona{{ID: "persona-1"}}}
	p := New(testConfig(), provider)

	if _, err := p.GeneratePersonas(context.Background(), agg, nil); err == nil {
		t.Error("expected error for persona without summary")
	}
}

func twoPersonas() []model.Persona {
	return []model.Persona{
		{ID: "p1", OneLineSummary: "時短重視層", DecisionCriteriaTop5: []model.CriterionWeight{{Key: "effort", Weight: 0.9}}},
		{ID: "p2", OneLineSummary: "価格重視層", DecisionCriteriaTop5: []model.CriterionWeight{{Key: "price", Weight: 0.9}}},
	}
}

func TestGenerateComparison_OverlayApplied(t *testing.T) {
	provider := &mockProvider{
		overlay: &model.ComparisonOverlay{
			CommonPoints: []string{"どちらも口コミを参照する"},
			Differences:  []string{"重視する基準が異なる"},
		},
	}
	p := New(testConfig(), provider)

	cmp, err := p.GenerateComparison(context.Background(), twoPersonas())
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.CommonPoints) != 1 || cmp.CommonPoints[0] != "どちらも口コミを参照する" {
		t.Errorf("overlay not applied: %+v", cmp.CommonPoints)
	}
	if cmp.Fields.OneLineSummary["p1"] != "時短重視層" {
		t.Errorf("fields should still come from the personas: %+v", cmp.Fields.OneLineSummary)
	}
}

func TestGenerateComparison_OracleFailureFallsBack(t *testing.T) {
	provider := &mockProvider{overlayErr: errors.New("timeout")}
	p := New(testConfig(), provider)

	cmp, err := p.GenerateComparison(context.Background(), twoPersonas())
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.CommonPoints) == 0 {
		t.Error("fallback analysis should fill common points")
	}
}
