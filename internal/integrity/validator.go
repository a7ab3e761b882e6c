// Package integrity checks that quotes claimed by the generation oracle are
// actually traceable to source text. The oracle is allowed to paraphrase,
// truncate, or prepend field labels, so matching is staged from strict to
// lenient; outright fabrication still has to surface as an issue.
package integrity

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/personaforge/personaforge/internal/model"
)

// IssueKind classifies an integrity issue.
type IssueKind string

const (
	IssueMissingStatement  IssueKind = "missing_statement"
	IssueTextMismatch      IssueKind = "text_mismatch"
	IssueLineRangeMismatch IssueKind = "line_range_mismatch"
)

// Issue is a single integrity finding. Issues are warnings for human
// review; they never block a save or a finalize.
type Issue struct {
	QuoteID string    `json:"quoteId"`
	Kind    IssueKind `json:"type"`
	Message string    `json:"message"`
}

// fieldLabels is the vocabulary of field-name labels the oracle sometimes
// prepends to a quote ("職業 会社員" instead of "会社員").
var fieldLabels = []string{
	"職業", "年齢", "都道府県", "年齢帯", "家族構成",
	"購入タイミング", "チャネル", "トリガー", "きっかけ",
	"判断基準", "障壁", "情報源",
}

// particles are grammatical tokens stripped before keyword comparison.
var particles = []string{
	"である", "です", "ます", "など", "とか", "って",
	"から", "まで", "より", "ので", "ため",
	"が", "を", "に", "で", "と", "の", "は", "も", "か", "や", "て", "た", "だ",
}

const (
	probeLen            = 30  // normalized runes probed at each end of the quote
	keywordMatchRatio   = 0.3 // fraction of quote keywords that must appear in the statement
	importantMatchRatio = 0.5 // fraction of the top-5 longest keywords
)

// Validator checks quote traceability. It is stateless and safe for
// concurrent use.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks one quote against the known statements. It is pure and
// never panics; all findings come back as issues.
func (v *Validator) Validate(quote model.Quote, statements []model.Statement) []Issue {
	var issues []Issue

	var statement *model.Statement
	for i := range statements {
		if statements[i].ID == quote.StatementID {
			statement = &statements[i]
			break
		}
	}
	if statement == nil {
		// No statement means no further check is meaningful.
		return []Issue{{
			QuoteID: quote.ID,
			Kind:    IssueMissingStatement,
			Message: fmt.Sprintf("statement %q not found for quote", quote.StatementID),
		}}
	}

	if !v.textMatches(quote.Text, statement.Text) {
		if qr := []rune(quote.Text); len(qr) > 2 && strings.TrimSpace(quote.Text) != "" {
			issues = append(issues, Issue{
				QuoteID: quote.ID,
				Kind:    IssueTextMismatch,
				Message: mismatchMessage(quote.Text, statement.Text),
			})
		}
	}

	if quote.LineRange != nil && statement.Metadata.LineRange != nil {
		if !statement.Metadata.LineRange.Covers(*quote.LineRange) {
			issues = append(issues, Issue{
				QuoteID: quote.ID,
				Kind:    IssueLineRangeMismatch,
				Message: fmt.Sprintf("quote line range %d-%d falls outside statement range %d-%d",
					quote.LineRange.Start, quote.LineRange.End,
					statement.Metadata.LineRange.Start, statement.Metadata.LineRange.End),
			})
		}
	}

	if quote.LineNumber != 0 && quote.LineRange != nil {
		if !quote.LineRange.Contains(quote.LineNumber) {
			issues = append(issues, Issue{
				QuoteID: quote.ID,
				Kind:    IssueLineRangeMismatch,
				Message: fmt.Sprintf("line number %d outside quote line range %d-%d",
					quote.LineNumber, quote.LineRange.Start, quote.LineRange.End),
			})
		}
	}

	return issues
}

// textMatches runs the staged containment checks, cheapest first. The first
// stage that succeeds wins.
func (v *Validator) textMatches(quoteText, statementText string) bool {
	// Stage 1: exact substring.
	if strings.Contains(statementText, quoteText) {
		return true
	}

	// Stage 2: strip field-name labels and retry.
	stripped := stripFieldLabels(quoteText)
	if stripped != quoteText && stripped != "" && strings.Contains(statementText, stripped) {
		return true
	}

	// Stage 3: case-insensitive, raw and stripped.
	lowerStatement := strings.ToLower(statementText)
	if strings.Contains(lowerStatement, strings.ToLower(quoteText)) {
		return true
	}
	if stripped != quoteText && strings.Contains(lowerStatement, strings.ToLower(stripped)) {
		return true
	}

	// Stage 4: whitespace/punctuation-normalized, raw and stripped.
	normStatement := normalize(statementText)
	normQuote := normalize(quoteText)
	if normQuote != "" && strings.Contains(normStatement, normQuote) {
		return true
	}
	normStripped := normalize(stripped)
	if stripped != quoteText && normStripped != "" && strings.Contains(normStatement, normStripped) {
		return true
	}

	// Stage 5: probe the leading and trailing runes of the quote.
	checkText := stripped
	if checkText == "" {
		checkText = quoteText
	}
	runes := []rune(checkText)
	minLen := len(runes)
	if minLen > 10 {
		minLen = 10
	}
	if len(runes) >= minLen && minLen > 0 {
		head := normalize(string(runes[:min(probeLen, len(runes))]))
		if head != "" && strings.Contains(normStatement, head) {
			return true
		}
		if len(runes) > minLen {
			tail := normalize(string(runes[max(0, len(runes)-probeLen):]))
			if tail != "" && strings.Contains(normStatement, tail) {
				return true
			}
		}

		// Stage 6: keyword overlap.
		if keywordOverlap(checkText, statementText, normStatement) {
			return true
		}
	}

	return false
}

// keywordOverlap tokenizes both texts and accepts the quote when enough of
// its keywords are found in the statement.
func keywordOverlap(quoteText, statementText, normStatement string) bool {
	quoteKeywords := extractKeywords(quoteText)
	statementKeywords := extractKeywords(statementText)
	if len(quoteKeywords) == 0 {
		return false
	}

	matched := 0
	for _, k := range quoteKeywords {
		nk := normalize(k)
		if nk == "" {
			continue
		}
		for _, sk := range statementKeywords {
			nsk := normalize(sk)
			if nsk == "" {
				continue
			}
			if strings.Contains(nsk, nk) || strings.Contains(nk, nsk) {
				matched++
				break
			}
		}
	}
	if float64(matched)/float64(len(quoteKeywords)) >= keywordMatchRatio {
		return true
	}

	// Longest keywords carry the most signal; give them a second, laxer pass.
	if len(quoteKeywords) >= 2 {
		var important []string
		for _, k := range quoteKeywords {
			if len([]rune(k)) >= 2 {
				important = append(important, k)
			}
		}
		// stable sort by descending rune length
		for i := 1; i < len(important); i++ {
			for j := i; j > 0 && len([]rune(important[j])) > len([]rune(important[j-1])); j-- {
				important[j], important[j-1] = important[j-1], important[j]
			}
		}
		if len(important) > 5 {
			important = important[:5]
		}
		if len(important) > 0 {
			hit := 0
			for _, k := range important {
				if strings.Contains(normStatement, normalize(k)) {
					hit++
				}
			}
			if float64(hit)/float64(len(important)) >= importantMatchRatio {
				return true
			}
		}
	}

	return false
}

// mismatchMessage distinguishes "no overlap at all" from "partial keyword
// overlap". Partial overlap usually means the oracle summarized rather
// than fabricated, which is worth saying to the reviewer.
func mismatchMessage(quoteText, statementText string) string {
	normStatement := normalize(statementText)
	partial := false
	for _, w := range splitTokens(quoteText) {
		if len([]rune(w)) < 2 {
			continue
		}
		if nw := normalize(w); nw != "" && strings.Contains(normStatement, nw) {
			partial = true
			break
		}
	}

	preview := quoteText
	if r := []rune(preview); len(r) > 100 {
		preview = string(r[:100]) + "..."
	}
	if partial {
		return fmt.Sprintf("quote text is not an exact match of its statement, but some keywords do appear; the oracle may have summarized or restructured it. Verify against the source. quote: %q", preview)
	}
	return fmt.Sprintf("quote text does not match its statement; the oracle may have summarized or fabricated it. Verify against the source. quote: %q", preview)
}

// stripFieldLabels removes a leading field label in either "Label value" or
// "Label: value" form.
func stripFieldLabels(text string) string {
	cleaned := text
	for _, label := range fieldLabels {
		if strings.HasPrefix(cleaned, label+" ") || strings.HasPrefix(cleaned, label+"\t") {
			cleaned = strings.TrimSpace(cleaned[len(label):])
		}
		for _, colon := range []string{":", "："} {
			if strings.HasPrefix(cleaned, label+colon) {
				cleaned = strings.TrimSpace(cleaned[len(label)+len(colon):])
			}
		}
	}
	return cleaned
}

// normalize removes whitespace (including ideographic space) and common
// punctuation so excerpts survive reflowing.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune("。、，．", r) {
			return -1
		}
		return r
	}, s)
}

// splitTokens splits on whitespace and punctuation.
func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("、，．。", r)
	})
}

// extractKeywords strips grammatical particles and splits the remainder
// into keyword tokens.
func extractKeywords(text string) []string {
	cleaned := text
	for _, p := range particles {
		cleaned = strings.ReplaceAll(cleaned, p, " ")
	}
	var keywords []string
	for _, tok := range splitTokens(cleaned) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		isParticle := false
		for _, p := range particles {
			if tok == p {
				isParticle = true
				break
			}
		}
		if !isParticle {
			keywords = append(keywords, tok)
		}
	}
	return keywords
}
