package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type ValidationError struct {
	QuestionID string `json:"questionId,omitempty"`
	Message    string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.QuestionID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.QuestionID, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Check validates the structure of a survey: question types, unique question
// ids, validation patterns and conditional logic targets.
func (s Survey) Check() error {
	var errs ValidationErrors
	seen := map[string]bool{}
	for _, q := range s.Questions {
		if q.ID != "" && seen[q.ID] {
			errs = append(errs, ValidationError{QuestionID: q.ID, Message: "duplicate question id"})
		}
		seen[q.ID] = true
	}
	for _, q := range s.Questions {
		if !q.Type.Valid() {
			errs = append(errs, ValidationError{QuestionID: q.ID, Message: fmt.Sprintf("unknown question type %q", q.Type)})
		}
		if q.Validation != nil && q.Validation.Pattern != "" {
			if _, err := regexp.Compile(q.Validation.Pattern); err != nil {
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: "invalid validation pattern"})
			}
		}
		if l := q.ConditionalLogic; l != nil {
			if l.QuestionID == q.ID {
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: "conditional logic refers to itself"})
			} else if !seen[l.QuestionID] {
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: fmt.Sprintf("conditional logic refers to unknown question %q", l.QuestionID)})
			}
			if !validCondition(l.Condition) {
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: fmt.Sprintf("unknown condition %q", l.Condition)})
			}
			if !validAction(l.Action) {
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: fmt.Sprintf("unknown action %q", l.Action)})
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validCondition(c Condition) bool {
	switch c {
	case ConditionEquals, ConditionNotEquals, ConditionContains, ConditionNotContains, ConditionGreaterThan, ConditionLessThan:
		return true
	}
	return false
}

func validAction(a LogicAction) bool {
	switch a {
	case ActionShow, ActionHide, ActionRequire, ActionSkip:
		return true
	}
	return false
}

// Matches evaluates the condition against the answers collected so far.
// A missing answer never equals, contains or compares.
func (l ConditionalLogic) Matches(answers map[string]any) bool {
	value, ok := answers[l.QuestionID]
	if !ok || IsEmptyAnswer(value) {
		return l.Condition == ConditionNotEquals || l.Condition == ConditionNotContains
	}
	switch l.Condition {
	case ConditionEquals:
		return answerEquals(value, l.Value)
	case ConditionNotEquals:
		return !answerEquals(value, l.Value)
	case ConditionContains:
		return answerContains(value, l.Value)
	case ConditionNotContains:
		return !answerContains(value, l.Value)
	case ConditionGreaterThan:
		return compareAnswer(value, l.Value) > 0
	case ConditionLessThan:
		return compareAnswer(value, l.Value) < 0
	}
	return false
}

// Visibility reports whether q is asked and whether it must be answered,
// given the answers collected so far.
func (q Question) Visibility(answers map[string]any) (visible, required bool) {
	if q.ConditionalLogic == nil {
		return true, q.Required
	}
	matched := q.ConditionalLogic.Matches(answers)
	switch q.ConditionalLogic.Action {
	case ActionShow:
		return matched, q.Required && matched
	case ActionHide, ActionSkip:
		return !matched, q.Required && !matched
	case ActionRequire:
		return true, q.Required || matched
	}
	return true, q.Required
}

// ValidateAnswer checks a non-empty answer against the question type, its
// options and its validation rules. Requiredness is decided by the caller.
func (q Question) ValidateAnswer(value any) []string {
	if IsEmptyAnswer(value) {
		return nil
	}
	var problems []string
	fail := func(msg string) {
		if q.Validation != nil && q.Validation.CustomMessage != "" {
			msg = q.Validation.CustomMessage
		}
		problems = append(problems, msg)
	}

	switch {
	case q.Type.IsNumeric():
		n, ok := toNumber(value)
		if !ok {
			fail("must be a number")
			break
		}
		if v := q.Validation; v != nil {
			if v.MinValue != nil && n < *v.MinValue {
				fail(fmt.Sprintf("must be at least %s", formatNumber(*v.MinValue)))
			}
			if v.MaxValue != nil && n > *v.MaxValue {
				fail(fmt.Sprintf("must be at most %s", formatNumber(*v.MaxValue)))
			}
		}
	case q.Type.IsMulti():
		selected, ok := selectedOptions(value)
		if !ok {
			fail("must be a list of options")
			break
		}
		for _, s := range selected {
			if !q.hasOption(s) {
				fail(fmt.Sprintf("%q is not an option", s))
			}
		}
	case q.Type.IsChoice():
		s, ok := value.(string)
		if !ok {
			fail("must be a single option")
			break
		}
		if !q.hasOption(s) {
			fail(fmt.Sprintf("%q is not an option", s))
		}
	default:
		s, ok := value.(string)
		if !ok {
			if q.Type == QuestionFile || q.Type == QuestionLocation || q.Type == QuestionSignature {
				return problems
			}
			fail("must be text")
			break
		}
		switch q.Type {
		case QuestionEmail:
			if !emailPattern.MatchString(s) {
				fail("must be a valid email address")
			}
		case QuestionDate:
			if _, err := time.Parse("2006-01-02", s); err != nil {
				fail("must be a date (YYYY-MM-DD)")
			}
		case QuestionTime:
			if _, err := time.Parse("15:04", s); err != nil {
				fail("must be a time (HH:MM)")
			}
		case QuestionDatetime:
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				if _, err := time.Parse("2006-01-02T15:04", s); err != nil {
					fail("must be a date and time")
				}
			}
		}
		if v := q.Validation; v != nil {
			n := utf8.RuneCountInString(s)
			if v.MinLength != nil && n < *v.MinLength {
				fail(fmt.Sprintf("must be at least %d characters", *v.MinLength))
			}
			if v.MaxLength != nil && n > *v.MaxLength {
				fail(fmt.Sprintf("must be at most %d characters", *v.MaxLength))
			}
			if v.Pattern != "" {
				re, err := regexp.Compile(v.Pattern)
				if err == nil && !re.MatchString(s) {
					fail("does not match the required format")
				}
			}
		}
	}
	return problems
}

func (q Question) hasOption(value string) bool {
	if len(q.Options) == 0 {
		return true
	}
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// ValidateAnswers checks a full answer set against the survey. Hidden
// questions are not validated; answers to unknown questions are rejected.
func (s Survey) ValidateAnswers(answers map[string]any) error {
	var errs ValidationErrors
	for _, q := range s.OrderedQuestions() {
		visible, required := q.Visibility(answers)
		if !visible {
			continue
		}
		value := answers[q.ID]
		if IsEmptyAnswer(value) {
			if required {
				msg := "answer is required"
				if q.Validation != nil && q.Validation.CustomMessage != "" {
					msg = q.Validation.CustomMessage
				}
				errs = append(errs, ValidationError{QuestionID: q.ID, Message: msg})
			}
			continue
		}
		for _, p := range q.ValidateAnswer(value) {
			errs = append(errs, ValidationError{QuestionID: q.ID, Message: p})
		}
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := s.Question(id); !ok {
			errs = append(errs, ValidationError{QuestionID: id, Message: "unknown question"})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsEmptyAnswer treats nil, blank strings, empty lists and checkbox groups
// with nothing ticked as unanswered.
func IsEmptyAnswer(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		sel, _ := selectedOptions(t)
		return len(sel) == 0
	case map[string]bool:
		for _, on := range t {
			if on {
				return false
			}
		}
		return true
	}
	return false
}

// selectedOptions accepts either a list of option values or a checkbox
// group map of value to ticked flag.
func selectedOptions(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case map[string]bool:
		out := []string{}
		for k, on := range t {
			if on {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out, true
	case map[string]any:
		out := []string{}
		for k, raw := range t {
			on, ok := raw.(bool)
			if !ok {
				return nil, false
			}
			if on {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out, true
	case string:
		return []string{t}, true
	}
	return nil, false
}

// Selected returns the option values picked in a choice answer.
func Selected(v any) []string {
	sel, _ := selectedOptions(v)
	return sel
}

// Number reads a numeric answer given as a number or numeric string.
func Number(v any) (float64, bool) { return toNumber(v) }

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func scalarString(v any) string {
	if n, ok := toNumber(v); ok {
		if _, isString := v.(string); !isString {
			return formatNumber(n)
		}
	}
	return fmt.Sprint(v)
}

func answerEquals(answer, want any) bool {
	if a, ok := toNumber(answer); ok {
		if b, ok := toNumber(want); ok {
			return a == b
		}
	}
	if ab, ok := answer.(bool); ok {
		if wb, ok := want.(bool); ok {
			return ab == wb
		}
	}
	if sel, ok := selectedOptions(answer); ok {
		if _, single := answer.(string); !single {
			wantSel, ok := selectedOptions(want)
			if !ok || len(wantSel) != len(sel) {
				return false
			}
			a := append([]string{}, sel...)
			b := append([]string{}, wantSel...)
			sort.Strings(a)
			sort.Strings(b)
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		}
	}
	return scalarString(answer) == scalarString(want)
}

func answerContains(answer, want any) bool {
	needle := scalarString(want)
	if s, ok := answer.(string); ok {
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	}
	if sel, ok := selectedOptions(answer); ok {
		for _, s := range sel {
			if s == needle {
				return true
			}
		}
		return false
	}
	return strings.Contains(scalarString(answer), needle)
}

// compareAnswer orders numerically when both sides are numbers and falls back
// to string order, which also sorts ISO dates correctly.
func compareAnswer(answer, want any) int {
	if a, ok := toNumber(answer); ok {
		if b, ok := toNumber(want); ok {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(scalarString(answer), scalarString(want))
}
