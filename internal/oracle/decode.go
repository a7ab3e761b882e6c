package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/personaforge/personaforge/internal/model"
)

// FlexStrings decodes a JSON value that should be a string list but may
// arrive as null, a bare string, or a mixed array.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = nil
	case string:
		if v == "" {
			*f = nil
		} else {
			*f = FlexStrings{v}
		}
	case []interface{}:
		var out FlexStrings
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		*f = out
	default:
		return fmt.Errorf("expected string or array, got %T", raw)
	}
	return nil
}

// FlexJTBD decodes a job-to-be-done that may arrive as the proper object
// or as a bare string, which is treated as a functional job.
type FlexJTBD model.JobToBeDone

func (f *FlexJTBD) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			f.Functional = []string{s}
		}
		return nil
	}
	var obj struct {
		Functional FlexStrings `json:"functional"`
		Emotional  FlexStrings `json:"emotional"`
		Social     FlexStrings `json:"social"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	f.Functional = obj.Functional
	f.Emotional = obj.Emotional
	f.Social = obj.Social
	return nil
}

// QuoteProposal is one claimed excerpt as the oracle reports it.
type QuoteProposal struct {
	QuoteText    string           `json:"quoteText"`
	Source       string           `json:"source"`
	Category     string           `json:"category"`
	LinkedFields FlexStrings      `json:"linked_fields"`
	StatementID  string           `json:"statement_id"`
	LineNumber   int              `json:"line_number"`
	LineRange    *model.LineRange `json:"line_range"`
}

// ExtractionProposal is one respondent's record as the oracle reports it,
// before any validation or scoring.
type ExtractionProposal struct {
	RespondentID       string                  `json:"respondent_id"`
	Role               *string                 `json:"role"`
	Relationship       *string                 `json:"relationship"`
	Household          *model.Household        `json:"household"`
	PurchaseContext    *model.PurchaseContext  `json:"purchase_context"`
	Trigger            FlexStrings             `json:"trigger"`
	JobToBeDone        *FlexJTBD               `json:"job_to_be_done"`
	Barriers           FlexStrings             `json:"barriers"`
	DecisionCriteria   *model.DecisionCriteria `json:"decision_criteria"`
	InformationSources FlexStrings             `json:"information_sources"`
	BehaviorPatterns   *model.BehaviorPatterns `json:"behavior_patterns"`
	Quotes             []QuoteProposal         `json:"quotes"`
}

// axisProposal distinguishes a missing order from an explicit zero.
type axisProposal struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
}

// isolateArray returns the first balanced top-level JSON array in text.
// The scan respects string literals and escapes, so bracket characters
// inside quoted Japanese text do not throw it off.
func isolateArray(text string) (string, bool) {
	return isolate(text, '[', ']')
}

// isolateObject returns the first balanced top-level JSON object in text.
func isolateObject(text string) (string, bool) {
	return isolate(text, '{', '}')
}

func isolate(text string, lb, rb byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case lb:
			if start < 0 {
				start = i
			}
			depth++
		case rb:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeArray isolates and parses a JSON array of T. A bare object is
// wrapped into a single-element array, matching how the oracle sometimes
// answers a one-item request.
func decodeArray[T any](response string) ([]T, error) {
	if raw, ok := isolateArray(response); ok {
		var out []T
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return out, nil
	}
	if raw, ok := isolateObject(response); ok {
		var single T
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return []T{single}, nil
	}
	return nil, fmt.Errorf("no JSON payload in response (%d bytes)", len(response))
}

// decodeObject isolates and parses a single JSON object.
func decodeObject[T any](response string) (*T, error) {
	raw, ok := isolateObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response (%d bytes)", len(response))
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return &out, nil
}
