// Package ingest loads qualitative sources and pre-processes them into
// statements. Statements carry line provenance so quote integrity checks
// can point back at the source.
package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/personaforge/personaforge/internal/model"
)

// qaPattern matches interviewer/respondent turns ("Q: ..." / "A: ...").
// A turn is kept whole; splitting it into sentences would detach answers
// from their questions.
var qaPattern = regexp.MustCompile(`^(?i)[QA]:\s*`)

// sentenceSplitter splits on Japanese sentence terminators.
var sentenceSplitter = regexp.MustCompile(`[。！？]`)

// SplitStatements splits source text into statements. Line numbers are
// 1-based over the raw text; a line that yields several sentences gives
// each of them the same line number.
func SplitStatements(text, source string, meta model.StatementMeta) []model.Statement {
	var statements []model.Statement
	now := time.Now()
	statementID := 1

	for lineIdx, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lineNumber := lineIdx + 1

		add := func(text string) {
			m := meta
			m.LineNumber = lineNumber
			m.LineRange = &model.LineRange{Start: lineNumber, End: lineNumber}
			statements = append(statements, model.Statement{
				ID:        fmt.Sprintf("stmt-%03d", statementID),
				Text:      text,
				Source:    source,
				Timestamp: now,
				Metadata:  m,
			})
			statementID++
		}

		if qaPattern.MatchString(trimmed) {
			add(trimmed)
			continue
		}

		for _, sentence := range sentenceSplitter.Split(trimmed, -1) {
			if s := strings.TrimSpace(sentence); s != "" {
				add(s)
			}
		}
	}

	return statements
}

// FullTextStatement wraps a whole source as one statement. Quote integrity
// for oracle extractions is checked against this, since the oracle sees
// the source whole.
func FullTextStatement(source model.InputSource) model.Statement {
	meta := source.Metadata
	meta.LineRange = &model.LineRange{Start: 1, End: strings.Count(source.Text, "\n") + 1}
	return model.Statement{
		ID:        "stmt-source-" + source.ID,
		Text:      source.Text,
		Source:    source.ID,
		Timestamp: source.CreatedAt,
		Metadata:  meta,
	}
}
