package kb

import (
	"context"
	"strings"
	"testing"

	"github.com/personaforge/personaforge/internal/model"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPersona(id, summary string) model.Persona {
	return model.Persona{
		ID:              id,
		ClusterID:       "cluster-1",
		OneLineSummary:  summary,
		BackgroundStory: "共働き世帯で時間に追われている。",
		Evidence: model.Evidence{
			Quotes: []model.EvidenceQuote{{Text: "時短が一番大事です", RespondentID: "R001", Category: "criteria"}},
			Count:  1,
		},
	}
}

func TestSavePersona_AutoTitle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.SavePersona(ctx, testPersona("p1", "時短重視の共働き子育て層"), "")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Title != "KB-Persona-001_時短重視の共働き子育て層" {
		t.Errorf("unexpected auto title: %q", saved.Title)
	}
	if saved.HypothesisLabel != "仮説ペルソナ" {
		t.Errorf("unexpected hypothesis label: %q", saved.HypothesisLabel)
	}
	if !strings.HasPrefix(saved.PersonaID, "persona-") {
		t.Errorf("unexpected id: %q", saved.PersonaID)
	}

	second, err := repo.SavePersona(ctx, testPersona("p2", "価格重視の単身層"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(second.Title, "KB-Persona-002_") {
		t.Errorf("numbering did not advance: %q", second.Title)
	}
}

func TestSavePersona_TitleTruncationAndOverride(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	long := strings.Repeat("あ", 30)
	saved, err := repo.SavePersona(ctx, testPersona("p1", long), "")
	if err != nil {
		t.Fatal(err)
	}
	want := "KB-Persona-001_" + strings.Repeat("あ", 20)
	if saved.Title != want {
		t.Errorf("summary not truncated to 20 runes: %q", saved.Title)
	}

	named, err := repo.SavePersona(ctx, testPersona("p2", "要約"), "自由なタイトル")
	if err != nil {
		t.Fatal(err)
	}
	if named.Title != "自由なタイトル" {
		t.Errorf("explicit title not kept: %q", named.Title)
	}
}

func TestPersonaRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.SavePersona(ctx, testPersona("p1", "時短重視層"), "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetPersona(ctx, saved.PersonaID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "時短重視層" {
		t.Errorf("summary lost: %q", got.Summary)
	}
	if got.Story != "共働き世帯で時間に追われている。" {
		t.Errorf("story lost: %q", got.Story)
	}
	if got.Evidence.Count != 1 || len(got.Evidence.Quotes) != 1 {
		t.Errorf("evidence lost: %+v", got.Evidence)
	}

	if _, err := repo.GetPersona(ctx, "persona-missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePersona(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.SavePersona(ctx, testPersona("p1", "時短重視層"), "")
	if err != nil {
		t.Fatal(err)
	}

	saved.Title = "改題したタイトル"
	saved.Shared = true
	if err := repo.UpdatePersona(ctx, saved); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetPersona(ctx, saved.PersonaID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "改題したタイトル" || !got.Shared {
		t.Errorf("update not persisted: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("updated_at not advanced")
	}

	missing := &model.SavedPersona{PersonaID: "persona-missing"}
	if err := repo.UpdatePersona(ctx, missing); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePersona(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.SavePersona(ctx, testPersona("p1", "時短重視層"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.DeletePersona(ctx, saved.PersonaID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetPersona(ctx, saved.PersonaID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeletePersona(ctx, saved.PersonaID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestSearchPersonas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.SavePersona(ctx, testPersona("p1", "時短重視の共働き層"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.SavePersona(ctx, testPersona("p2", "価格重視の単身層"), ""); err != nil {
		t.Fatal(err)
	}

	hits, err := repo.SearchPersonas(ctx, "時短")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Summary != "時短重視の共働き層" {
		t.Errorf("unexpected search result: %+v", hits)
	}

	none, err := repo.SearchPersonas(ctx, "存在しない語")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no hits, got %d", len(none))
	}
}

func TestSaveComparison_AutoTitle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	personas := []model.Persona{
		testPersona("p1", "時短重視の共働き層"),
		testPersona("p2", "価格重視の単身層"),
	}
	cmp := model.Comparison{Personas: []string{"p1", "p2"}}

	saved, err := repo.SaveComparison(ctx, cmp, personas, "")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Title != "KB-Comparison-001_時短重視の共働き層 vs 価格重視の単身層" {
		t.Errorf("unexpected auto title: %q", saved.Title)
	}
	if saved.HypothesisLabel != "仮説比較" {
		t.Errorf("unexpected hypothesis label: %q", saved.HypothesisLabel)
	}
	if !strings.HasPrefix(saved.ComparisonID, "comparison-") {
		t.Errorf("unexpected id: %q", saved.ComparisonID)
	}
}

func TestComparisonNumberingIgnoresPersonas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Persona titles count every item; comparison titles count comparisons only.
	if _, err := repo.SavePersona(ctx, testPersona("p1", "時短重視層"), ""); err != nil {
		t.Fatal(err)
	}

	personas := []model.Persona{testPersona("p1", "時短重視層"), testPersona("p2", "価格重視層")}
	cmp := model.Comparison{Personas: []string{"p1", "p2"}}
	saved, err := repo.SaveComparison(ctx, cmp, personas, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(saved.Title, "KB-Comparison-001_") {
		t.Errorf("comparison numbering should start at 001: %q", saved.Title)
	}

	p, err := repo.SavePersona(ctx, testPersona("p3", "品質重視層"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.Title, "KB-Persona-003_") {
		t.Errorf("persona numbering should count all items: %q", p.Title)
	}
}

func TestComparisonRoundTripAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	personas := []model.Persona{testPersona("p1", "時短重視層"), testPersona("p2", "価格重視層")}
	cmp := model.Comparison{
		Personas:     []string{"p1", "p2"},
		CommonPoints: []string{"どちらも口コミを参照する"},
	}
	saved, err := repo.SaveComparison(ctx, cmp, personas, "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetComparison(ctx, saved.ComparisonID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comparison.CommonPoints) != 1 {
		t.Errorf("comparison payload lost: %+v", got.Comparison)
	}

	list, err := repo.ListComparisons(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 comparison, got %d", len(list))
	}

	if err := repo.DeleteComparison(ctx, saved.ComparisonID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetComparison(ctx, saved.ComparisonID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestActivePersona(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.ActivePersona(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("expected no active persona, got %q", id)
	}

	if err := repo.SetActivePersona(ctx, "persona-missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown persona, got %v", err)
	}

	saved, err := repo.SavePersona(ctx, testPersona("p1", "時短重視層"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SetActivePersona(ctx, saved.PersonaID); err != nil {
		t.Fatal(err)
	}
	id, err = repo.ActivePersona(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != saved.PersonaID {
		t.Errorf("active persona not persisted: %q", id)
	}

	// Deleting the active persona clears the selection.
	if err := repo.DeletePersona(ctx, saved.PersonaID); err != nil {
		t.Fatal(err)
	}
	id, err = repo.ActivePersona(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("selection should clear with the persona, got %q", id)
	}
}

func TestListPersonas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, summary := range []string{"時短重視層", "価格重視層", "品質重視層"} {
		if _, err := repo.SavePersona(ctx, testPersona(summary, summary), ""); err != nil {
			t.Fatal(err)
		}
	}

	list, err := repo.ListPersonas(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 personas, got %d", len(list))
	}
}
