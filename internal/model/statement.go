package model

import "time"

// LineRange marks the span of source lines a statement or quote covers.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Covers reports whether other lies fully inside r.
func (r LineRange) Covers(other LineRange) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// StatementMeta carries optional provenance for a statement.
type StatementMeta struct {
	InterviewName string     `json:"interview_name,omitempty"`
	InterviewDate string     `json:"interview_date,omitempty"` // YYYY-MM-DD
	Segment       string     `json:"segment,omitempty"`
	Owner         string     `json:"owner,omitempty"`
	LineNumber    int        `json:"line_number,omitempty"`
	LineRange     *LineRange `json:"line_range,omitempty"`
	RespondentID  string     `json:"respondent_id,omitempty"`
}

// Statement is one unit of pre-processed source text. Quotes claimed by the
// oracle must be traceable back to a statement.
type Statement struct {
	ID        string        `json:"id"`     // e.g. "stmt-001"
	Text      string        `json:"text"`   // statement text
	Source    string        `json:"source"` // input source id (e.g. "interview_001.txt")
	Timestamp time.Time     `json:"timestamp"`
	Metadata  StatementMeta `json:"metadata,omitempty"`
}

// InputSource is a raw qualitative input (interview transcript, free comments).
type InputSource struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"` // interview, comment, persona
	Text      string        `json:"text"`
	Metadata  StatementMeta `json:"metadata,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
