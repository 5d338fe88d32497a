package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedDecision is returned when model output cannot be turned into a Decision.
var ErrMalformedDecision = errors.New("malformed AI decision")

// Action is the tag of a triage decision.
type Action string

const (
	ActionAskQuestion  Action = "ASK_QUESTION"
	ActionCloseReport  Action = "CLOSE_REPORT"
	ActionSubmitReport Action = "SUBMIT_REPORT"
)

// Priority is one of the four ordinal report priorities.
type Priority string

const (
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
	P4 Priority = "P4"
)

// ParsePriority normalizes a model-supplied priority. Unknown values map to P3.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case P1, P2, P3, P4:
		return p
	}
	return P3
}

// Decision is the closed set of triage outcomes: AskQuestion, CloseReport or SubmitReport.
type Decision interface {
	Action() Action
	decision()
}

// AskQuestion asks the reporter for more information.
type AskQuestion struct {
	Message string
}

// CloseReport rejects the report as spam, not a bug, or out of scope.
type CloseReport struct {
	Message string
}

// SubmitReport accepts the report for the tracker.
type SubmitReport struct {
	Title    string
	Content  string
	Priority Priority
	Message  string
}

func (AskQuestion) Action() Action  { return ActionAskQuestion }
func (CloseReport) Action() Action  { return ActionCloseReport }
func (SubmitReport) Action() Action { return ActionSubmitReport }

func (AskQuestion) decision()  {}
func (CloseReport) decision()  {}
func (SubmitReport) decision() {}

// jsonBlock spans from the first '{' to the last '}' so prose around the
// object is tolerated.
var jsonBlock = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSON returns the outermost JSON-looking block of raw, or "" if none.
func ExtractJSON(raw string) string {
	return jsonBlock.FindString(raw)
}

type rawDecision struct {
	Action   string `json:"action"`
	Message  string `json:"message"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
}

// ParseDecision decodes the model's classification reply.
// It fails with ErrMalformedDecision when no JSON block is found, the block
// does not decode, or the action is missing or unknown.
func ParseDecision(raw string) (Decision, error) {
	block := ExtractJSON(raw)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedDecision)
	}

	var rd rawDecision
	if err := json.Unmarshal([]byte(block), &rd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	switch Action(strings.ToUpper(strings.TrimSpace(rd.Action))) {
	case ActionAskQuestion:
		return AskQuestion{Message: rd.Message}, nil
	case ActionCloseReport:
		return CloseReport{Message: rd.Message}, nil
	case ActionSubmitReport:
		if strings.TrimSpace(rd.Title) == "" || strings.TrimSpace(rd.Content) == "" {
			return nil, fmt.Errorf("%w: submit decision without title or content", ErrMalformedDecision)
		}
		return SubmitReport{
			Title:    strings.TrimSpace(rd.Title),
			Content:  rd.Content,
			Priority: ParsePriority(rd.Priority),
			Message:  rd.Message,
		}, nil
	case "":
		return nil, fmt.Errorf("%w: missing action", ErrMalformedDecision)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedDecision, rd.Action)
	}
}

// ParseDuplicateIDs decodes the shortlist reply {"duplicates": [ids]}.
// Ids may be numbers or numeric strings; anything else is skipped.
func ParseDuplicateIDs(raw string) ([]int, error) {
	block := ExtractJSON(raw)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedDecision)
	}

	var out struct {
		Duplicates []json.RawMessage `json:"duplicates"`
	}
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	ids := make([]int, 0, len(out.Duplicates))
	seen := make(map[int]bool)
	for _, item := range out.Duplicates {
		var n int
		if err := json.Unmarshal(item, &n); err != nil {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			v, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "#"))
			if err != nil {
				continue
			}
			n = v
		}
		if n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		ids = append(ids, n)
	}
	return ids, nil
}

// NewInformation is the model's judgement of a duplicate report.
type NewInformation struct {
	HasNewInfo bool   `json:"hasNewInfo"`
	Comment    string `json:"comment"`
}

// ParseNewInformation decodes the {"hasNewInfo": bool, "comment": string} reply.
func ParseNewInformation(raw string) (NewInformation, error) {
	block := ExtractJSON(raw)
	if block == "" {
		return NewInformation{}, fmt.Errorf("%w: no JSON found", ErrMalformedDecision)
	}

	var out NewInformation
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return NewInformation{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	out.Comment = strings.TrimSpace(out.Comment)
	if out.Comment == "" {
		out.HasNewInfo = false
	}
	return out, nil
}
