package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/personaforge/personaforge/internal/ingest"
	"github.com/personaforge/personaforge/internal/integrity"
	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/oracle"
)

// fallbackQuoteLen caps the synthesized quote taken from the source head
// when the oracle returns a record without quotes.
const fallbackQuoteLen = 200

// commitLog assigns respondent numbers and collects integrity issues
// across concurrent source extractions.
type commitLog struct {
	mu     sync.Mutex
	seq    int
	issues []integrity.Issue
}

func (c *commitLog) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *commitLog) record(issues []integrity.Issue) {
	if len(issues) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, issues...)
}

func (c *commitLog) allIssues() []integrity.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]integrity.Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// ExtractSource extracts one source through the oracle and commits the
// resulting records: quote ids and provenance defaults are filled in,
// quotes are integrity-checked against the source, confidence is scored,
// and the record is stored.
func (p *Pipeline) ExtractSource(ctx context.Context, source model.InputSource) ([]model.ExtractionRecord, error) {
	full := ingest.FullTextStatement(source)

	req := oracle.ExtractionRequest{
		SourceText: source.Text,
		SourceID:   source.ID,
		Metadata: &oracle.SourceMetadata{
			InterviewName: source.Metadata.InterviewName,
			InterviewDate: source.Metadata.InterviewDate,
			Segment:       source.Metadata.Segment,
			Owner:         source.Metadata.Owner,
		},
	}
	proposals, err := p.provider.ProposeExtractions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("propose extractions: %w", err)
	}

	var records []model.ExtractionRecord
	for _, prop := range proposals {
		if emptyProposal(prop) {
			p.warnf("extraction: %s returned an empty candidate, skipped", source.ID)
			continue
		}
		rec := buildRecord(prop, source, full)

		seq := p.commits.next()
		if rec.RespondentID == "" {
			rec.RespondentID = fmt.Sprintf("R%03d", seq)
		}

		var issues []integrity.Issue
		for _, q := range rec.Quotes {
			issues = append(issues, p.validator.Validate(q, []model.Statement{full})...)
		}
		p.commits.record(issues)

		rec.Confidence, rec.ConfidenceBreakdown = p.scorer.Calculate(rec)

		if err := p.store.Create(rec); err != nil {
			// a colliding oracle-chosen id gets a generated one instead
			rec.RespondentID = fmt.Sprintf("R%03d", p.commits.next())
			if err := p.store.Create(rec); err != nil {
				return nil, fmt.Errorf("store record: %w", err)
			}
		}
		p.emit("extraction", fmt.Sprintf("%s committed %s (%d quotes, %d integrity issues)",
			source.ID, rec.RespondentID, len(rec.Quotes), len(issues)))
		records = append(records, *rec)
	}

	return records, nil
}

// emptyProposal reports whether a candidate carries no identifying
// content at all. Such candidates are skipped rather than committed as
// blank records.
func emptyProposal(prop oracle.ExtractionProposal) bool {
	if prop.Role != nil && *prop.Role != "" {
		return false
	}
	if prop.Relationship != nil && *prop.Relationship != "" {
		return false
	}
	if len(prop.Trigger) > 0 || len(prop.Barriers) > 0 || len(prop.InformationSources) > 0 {
		return false
	}
	if prop.Household != nil || prop.PurchaseContext != nil || prop.JobToBeDone != nil ||
		prop.DecisionCriteria != nil || prop.BehaviorPatterns != nil {
		return false
	}
	for _, q := range prop.Quotes {
		if strings.TrimSpace(q.QuoteText) != "" {
			return false
		}
	}
	return true
}

// buildRecord turns an untrusted proposal into a record with complete
// provenance. Every quote gets an id, a statement id, and linked fields;
// a record the oracle returned without quotes gets one synthesized from
// the source head so the quotes invariant holds.
func buildRecord(prop oracle.ExtractionProposal, source model.InputSource, full model.Statement) *model.ExtractionRecord {
	now := time.Now()

	var quotes []model.Quote
	for _, qp := range prop.Quotes {
		if strings.TrimSpace(qp.QuoteText) == "" {
			continue
		}
		q := model.Quote{
			ID:           fmt.Sprintf("quote-%03d", len(quotes)+1),
			Text:         qp.QuoteText,
			SourceFile:   qp.Source,
			LineNumber:   qp.LineNumber,
			LineRange:    qp.LineRange,
			Category:     qp.Category,
			StatementID:  qp.StatementID,
			LinkedFields: qp.LinkedFields,
		}
		if q.SourceFile == "" {
			q.SourceFile = source.ID
		}
		if q.Category == "" {
			q.Category = "general"
		}
		if q.StatementID == "" {
			q.StatementID = full.ID
		}
		if len(q.LinkedFields) == 0 {
			q.LinkedFields = []string{q.Category}
		}
		quotes = append(quotes, q)
	}

	fieldQuotes := model.FieldQuotes{}
	for _, q := range quotes {
		for _, field := range q.LinkedFields {
			fieldQuotes.Add(canonicalField(field), q)
		}
	}

	if len(quotes) == 0 {
		q := fallbackQuote(source, full)
		quotes = []model.Quote{q}
		fieldQuotes.Add("general", q)
		fieldQuotes.Add("trigger", q)
	}

	rec := &model.ExtractionRecord{
		RespondentID:       prop.RespondentID,
		Role:               prop.Role,
		Relationship:       prop.Relationship,
		Household:          prop.Household,
		PurchaseContext:    prop.PurchaseContext,
		Trigger:            orEmptyList(prop.Trigger),
		Barriers:           orEmptyList(prop.Barriers),
		DecisionCriteria:   prop.DecisionCriteria,
		InformationSources: orEmptyList(prop.InformationSources),
		BehaviorPatterns:   prop.BehaviorPatterns,
		Quotes:             quotes,
		FieldQuotes:        fieldQuotes,
		CreatedAt:          now,
		UpdatedAt:          now,
		CreatedBy:          model.ActorSystem,
		UpdatedBy:          model.ActorSystem,
	}
	if prop.JobToBeDone != nil {
		jtbd := model.JobToBeDone(*prop.JobToBeDone)
		rec.JobToBeDone = &jtbd
	}
	return rec
}

// orEmptyList keeps list fields non-null in serialized records. A list the
// oracle omitted means "none stated", which is an empty list, not null.
func orEmptyList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// canonicalField maps a linked field to its field-quotes key. Compound
// fields default to their primary sub-field when the oracle names only
// the parent.
func canonicalField(field string) string {
	switch field {
	case "job_to_be_done":
		return "job_to_be_done.functional"
	case "decision_criteria":
		return "decision_criteria.price"
	}
	return field
}

// fallbackQuote takes the head of the source text as a generic quote.
func fallbackQuote(source model.InputSource, full model.Statement) model.Quote {
	text := []rune(source.Text)
	if len(text) > fallbackQuoteLen {
		text = text[:fallbackQuoteLen]
	}
	lineCount := strings.Count(source.Text, "\n") + 1
	return model.Quote{
		ID:           "quote-001",
		Text:         string(text),
		SourceFile:   source.ID,
		LineNumber:   1,
		LineRange:    &model.LineRange{Start: 1, End: lineCount},
		Category:     "general",
		StatementID:  full.ID,
		LinkedFields: []string{"general"},
	}
}
