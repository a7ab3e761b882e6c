package ingest

import (
	"testing"

	"github.com/personaforge/personaforge/internal/model"
)

func TestSplitStatements_SentenceSplit(t *testing.T) {
	text := "肌の乾燥が気になっていました。広告を見て購入しました！\n価格には少し迷いました？"
	statements := SplitStatements(text, "interview_001.txt", model.StatementMeta{})

	if len(statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(statements))
	}
	if statements[0].ID != "stmt-001" || statements[1].ID != "stmt-002" || statements[2].ID != "stmt-003" {
		t.Errorf("unexpected ids: %s, %s, %s", statements[0].ID, statements[1].ID, statements[2].ID)
	}
	if statements[0].Text != "肌の乾燥が気になっていました" {
		t.Errorf("terminator not stripped: %q", statements[0].Text)
	}

	// Both sentences on line 1 share the line number; line 2 follows.
	if statements[0].Metadata.LineNumber != 1 || statements[1].Metadata.LineNumber != 1 {
		t.Errorf("expected line 1 for first two statements, got %d and %d",
			statements[0].Metadata.LineNumber, statements[1].Metadata.LineNumber)
	}
	if statements[2].Metadata.LineNumber != 2 {
		t.Errorf("expected line 2 for third statement, got %d", statements[2].Metadata.LineNumber)
	}
	if lr := statements[2].Metadata.LineRange; lr == nil || lr.Start != 2 || lr.End != 2 {
		t.Errorf("unexpected line range: %+v", lr)
	}
}

func TestSplitStatements_QATurnsStayWhole(t *testing.T) {
	text := "Q: 購入のきっかけは何ですか？\nA: 肌の乾燥が気になって。広告も見ました。"
	statements := SplitStatements(text, "interview_001.txt", model.StatementMeta{})

	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}
	if statements[0].Text != "Q: 購入のきっかけは何ですか？" {
		t.Errorf("question turn was split: %q", statements[0].Text)
	}
	if statements[1].Text != "A: 肌の乾燥が気になって。広告も見ました。" {
		t.Errorf("answer turn was split: %q", statements[1].Text)
	}
}

func TestSplitStatements_SkipsBlankLinesButCountsThem(t *testing.T) {
	text := "一行目です。\n\n三行目です。"
	statements := SplitStatements(text, "interview_001.txt", model.StatementMeta{})

	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}
	if statements[1].Metadata.LineNumber != 3 {
		t.Errorf("blank line not counted: expected line 3, got %d", statements[1].Metadata.LineNumber)
	}
}

func TestSplitStatements_CarriesMetadata(t *testing.T) {
	meta := model.StatementMeta{InterviewName: "化粧品定性調査", Segment: "30代"}
	statements := SplitStatements("発言です。", "interview_001.txt", meta)

	if len(statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(statements))
	}
	if statements[0].Metadata.InterviewName != "化粧品定性調査" || statements[0].Metadata.Segment != "30代" {
		t.Errorf("metadata lost: %+v", statements[0].Metadata)
	}
	if statements[0].Source != "interview_001.txt" {
		t.Errorf("source lost: %s", statements[0].Source)
	}
}

func TestFullTextStatement(t *testing.T) {
	src := model.InputSource{
		ID:   "interview_001.txt",
		Text: "一行目\n二行目\n三行目",
	}
	stmt := FullTextStatement(src)

	if stmt.ID != "stmt-source-interview_001.txt" {
		t.Errorf("unexpected id: %s", stmt.ID)
	}
	if stmt.Text != src.Text {
		t.Error("full text not preserved")
	}
	if lr := stmt.Metadata.LineRange; lr == nil || lr.Start != 1 || lr.End != 3 {
		t.Errorf("unexpected line range: %+v", lr)
	}
}
