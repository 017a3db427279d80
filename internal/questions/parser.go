package questions

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"quizroom-service/internal/domain"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// minCSVFields is text, four options and the correct index; difficulty is optional.
const minCSVFields = 6

// Result is the validation outcome of one input item: either a Question or a rejection reason.
type Result struct {
	Index    int              `json:"index"`
	Question *domain.Question `json:"question,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Valid reports whether the item produced a question.
func (r Result) Valid() bool {
	return r.Question != nil
}

// Report is the full validation outcome of one upload, in input order.
type Report struct {
	Format  string   `json:"format"`
	Results []Result `json:"results"`
}

// Questions returns the accepted questions in input order.
func (r Report) Questions() []domain.Question {
	out := make([]domain.Question, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Valid() {
			out = append(out, *res.Question)
		}
	}
	return out
}

// Rejected returns the dropped items with their reasons.
func (r Report) Rejected() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Valid() {
			out = append(out, res)
		}
	}
	return out
}

// Parse accepts a JSON array or CSV lines and returns the valid questions.
// Malformed items are dropped; an empty result is not an error.
func Parse(raw string) []domain.Question {
	return Validate(raw).Questions()
}

// Require is Parse for uploads: zero valid questions is reported as ErrInvalidQuestionSet.
func Require(raw string) ([]domain.Question, error) {
	report := Validate(raw)
	questions := report.Questions()
	if len(questions) > 0 {
		return questions, nil
	}
	rejected := report.Rejected()
	if len(rejected) == 0 {
		return nil, fmt.Errorf("%w: input is empty", domain.ErrInvalidQuestionSet)
	}
	reasons := make([]string, 0, 3)
	for i, res := range rejected {
		if i == 3 {
			reasons = append(reasons, fmt.Sprintf("and %d more", len(rejected)-3))
			break
		}
		reasons = append(reasons, fmt.Sprintf("item %d: %s", res.Index, res.Reason))
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrInvalidQuestionSet, strings.Join(reasons, "; "))
}

// Validate parses raw and reports why each dropped item was rejected.
func Validate(raw string) Report {
	batch := uuid.NewString()[:8]
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return validateJSON(items, batch)
		}
	}
	return validateCSV(raw, batch)
}

type rawQuestion struct {
	ID            any `json:"id"`
	Text          any `json:"text"`
	Options       any `json:"options"`
	CorrectOption any `json:"correctOption"`
	Difficulty    any `json:"difficulty"`
}

func validateJSON(items []json.RawMessage, batch string) Report {
	report := Report{Format: FormatJSON, Results: make([]Result, 0, len(items))}
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		q, reason := jsonQuestion(item, batch, i)
		if reason == "" {
			if _, dup := seen[q.ID]; dup {
				reason = "duplicate id " + strconv.Quote(q.ID)
			}
		}
		if reason != "" {
			report.Results = append(report.Results, Result{Index: i, Reason: reason})
			continue
		}
		seen[q.ID] = struct{}{}
		report.Results = append(report.Results, Result{Index: i, Question: &q})
	}
	return report
}

func jsonQuestion(item json.RawMessage, batch string, index int) (domain.Question, string) {
	var raw rawQuestion
	if err := json.Unmarshal(item, &raw); err != nil {
		return domain.Question{}, "not an object"
	}

	text, ok := raw.Text.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return domain.Question{}, "missing text"
	}

	list, ok := raw.Options.([]any)
	if !ok || len(list) != domain.OptionCount {
		return domain.Question{}, fmt.Sprintf("options must have exactly %d entries", domain.OptionCount)
	}
	options := make([]string, 0, domain.OptionCount)
	for _, opt := range list {
		s, ok := opt.(string)
		if !ok {
			return domain.Question{}, "options must be strings"
		}
		options = append(options, s)
	}

	n, ok := raw.CorrectOption.(float64)
	if !ok || n != math.Trunc(n) {
		return domain.Question{}, "correctOption must be an integer"
	}
	if n < 0 || n >= domain.OptionCount {
		return domain.Question{}, "correctOption out of range"
	}

	id := ""
	switch v := raw.ID.(type) {
	case string:
		id = strings.TrimSpace(v)
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if id == "" {
		id = generatedID(batch, index)
	}

	difficulty, _ := raw.Difficulty.(string)
	return domain.Question{
		ID:            id,
		Text:          text,
		Options:       options,
		CorrectOption: int(n),
		Difficulty:    ParseDifficulty(difficulty),
	}, ""
}

func validateCSV(raw, batch string) Report {
	lines := strings.Split(raw, "\n")
	report := Report{Format: FormatCSV, Results: make([]Result, 0, len(lines))}
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		q, reason := csvQuestion(line, batch, i)
		if reason != "" {
			report.Results = append(report.Results, Result{Index: i, Reason: reason})
			continue
		}
		report.Results = append(report.Results, Result{Index: i, Question: &q})
	}
	return report
}

func csvQuestion(line, batch string, index int) (domain.Question, string) {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return domain.Question{}, "malformed line: " + err.Error()
	}
	if len(fields) < minCSVFields {
		return domain.Question{}, fmt.Sprintf("expected at least %d fields, got %d", minCSVFields, len(fields))
	}
	for i := range fields {
		fields[i] = unquote(fields[i])
	}

	correct, err := strconv.Atoi(fields[5])
	if err != nil {
		return domain.Question{}, "correct index is not an integer"
	}
	if correct < 0 || correct >= domain.OptionCount {
		return domain.Question{}, "correct index out of range"
	}

	difficulty := ""
	if len(fields) > minCSVFields {
		difficulty = fields[6]
	}
	return domain.Question{
		ID:            generatedID(batch, index),
		Text:          fields[0],
		Options:       append([]string(nil), fields[1:5]...),
		CorrectOption: correct,
		Difficulty:    ParseDifficulty(difficulty),
	}, ""
}

// ParseDifficulty maps any value other than "medium" (case-insensitive) to basic.
func ParseDifficulty(s string) domain.Difficulty {
	if strings.EqualFold(strings.TrimSpace(s), string(domain.DifficultyMedium)) {
		return domain.DifficultyMedium
	}
	return domain.DifficultyBasic
}

func unquote(field string) string {
	field = strings.TrimSpace(field)
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		field = field[1 : len(field)-1]
	}
	return field
}

func generatedID(batch string, index int) string {
	return fmt.Sprintf("q_%s_%d", batch, index)
}
