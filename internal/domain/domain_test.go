package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"surveydesk/internal/domain"
)

func TestDraftApplyKeepsUnsuppliedFields(t *testing.T) {
	base := domain.Survey{
		ID:        "s1",
		Title:     "Old",
		Settings:  domain.DefaultSettings(),
		Questions: []domain.Question{{ID: "q1", Type: domain.QuestionText, Title: "Name"}},
		Tags:      []string{"a"},
		Version:   3,
	}
	got := domain.SurveyDraft{
		Title:    domain.Ptr("New"),
		Settings: &domain.SettingsDraft{RequireEmail: domain.Ptr(true)},
	}.ApplyTo(base)
	if got.Title != "New" || got.ID != "s1" || got.Version != 3 {
		t.Fatalf("unexpected survey %+v", got)
	}
	if !got.Settings.RequireEmail || !got.Settings.AllowAnonymous || got.Settings.Theme != domain.DefaultTheme() {
		t.Fatalf("settings not merged: %+v", got.Settings)
	}
	if len(got.Questions) != 1 || len(got.Tags) != 1 {
		t.Fatalf("questions/tags dropped: %+v", got)
	}

	cleared := domain.SurveyDraft{Questions: []domain.Question{}}.ApplyTo(base)
	if len(cleared.Questions) != 0 {
		t.Fatalf("empty questions should clear, got %d", len(cleared.Questions))
	}
}

func TestDraftMergeOverridesWin(t *testing.T) {
	base := domain.SurveyDraft{
		Title:    domain.Ptr("Template"),
		Tags:     []string{"x"},
		Settings: &domain.SettingsDraft{AllowAnonymous: domain.Ptr(false), AutoSave: domain.Ptr(false)},
	}
	merged := base.Merge(domain.SurveyDraft{
		Title:    domain.Ptr("Mine"),
		Settings: &domain.SettingsDraft{AutoSave: domain.Ptr(true)},
	})
	if *merged.Title != "Mine" || merged.Tags[0] != "x" {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if *merged.Settings.AllowAnonymous || !*merged.Settings.AutoSave {
		t.Fatalf("settings merge wrong: %+v", merged.Settings)
	}
}

func TestDraftJSONOmitsAbsentFields(t *testing.T) {
	b, err := json.Marshal(domain.SurveyDraft{Title: domain.Ptr("x")})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"title":"x"}` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestOrderedQuestions(t *testing.T) {
	s := domain.Survey{Questions: []domain.Question{{ID: "c", Order: 3}, {ID: "a", Order: 1}, {ID: "b", Order: 2}}}
	got := s.OrderedQuestions()
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
	if s.Questions[0].ID != "c" {
		t.Fatalf("original slice reordered")
	}
}

func TestConditionalLogic(t *testing.T) {
	cases := []struct {
		name    string
		logic   domain.ConditionalLogic
		answers map[string]any
		want    bool
	}{
		{"equals string", domain.ConditionalLogic{Condition: domain.ConditionEquals, QuestionID: "q1", Value: "yes"}, map[string]any{"q1": "yes"}, true},
		{"equals number", domain.ConditionalLogic{Condition: domain.ConditionEquals, QuestionID: "q1", Value: 5}, map[string]any{"q1": float64(5)}, true},
		{"not equals missing", domain.ConditionalLogic{Condition: domain.ConditionNotEquals, QuestionID: "q1", Value: "yes"}, map[string]any{}, true},
		{"contains text", domain.ConditionalLogic{Condition: domain.ConditionContains, QuestionID: "q1", Value: "bad"}, map[string]any{"q1": "Really BAD service"}, true},
		{"contains option", domain.ConditionalLogic{Condition: domain.ConditionContains, QuestionID: "q1", Value: "b"}, map[string]any{"q1": []any{"a", "b"}}, true},
		{"not contains", domain.ConditionalLogic{Condition: domain.ConditionNotContains, QuestionID: "q1", Value: "c"}, map[string]any{"q1": []any{"a", "b"}}, true},
		{"greater", domain.ConditionalLogic{Condition: domain.ConditionGreaterThan, QuestionID: "q1", Value: 3}, map[string]any{"q1": "4"}, true},
		{"less", domain.ConditionalLogic{Condition: domain.ConditionLessThan, QuestionID: "q1", Value: 3}, map[string]any{"q1": float64(4)}, false},
		{"greater missing", domain.ConditionalLogic{Condition: domain.ConditionGreaterThan, QuestionID: "q1", Value: 3}, map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.logic.Matches(tc.answers); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func feedbackSurvey() domain.Survey {
	minLen := 3
	maxRating := 5.0
	return domain.Survey{
		ID: "s1",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionRating, Title: "Rate us", Required: true, Order: 1, Validation: &domain.QuestionValidation{MaxValue: &maxRating}},
			{ID: "q2", Type: domain.QuestionTextarea, Title: "What went wrong?", Order: 2,
				Validation:       &domain.QuestionValidation{MinLength: &minLen},
				ConditionalLogic: &domain.ConditionalLogic{Condition: domain.ConditionLessThan, QuestionID: "q1", Value: 3, Action: domain.ActionRequire}},
			{ID: "q3", Type: domain.QuestionEmail, Title: "Email", Order: 3,
				ConditionalLogic: &domain.ConditionalLogic{Condition: domain.ConditionEquals, QuestionID: "q4", Value: "yes", Action: domain.ActionShow}},
			{ID: "q4", Type: domain.QuestionRadio, Title: "Contact me?", Order: 4, Options: []domain.QuestionOption{
				{ID: "o1", Label: "Yes", Value: "yes"}, {ID: "o2", Label: "No", Value: "no"},
			}},
			{ID: "q5", Type: domain.QuestionCheckbox, Title: "Channels", Order: 5, Options: []domain.QuestionOption{
				{ID: "o1", Label: "Mail", Value: "mail"}, {ID: "o2", Label: "Phone", Value: "phone"},
			}},
		},
	}
}

func TestValidateAnswers(t *testing.T) {
	s := feedbackSurvey()
	if err := s.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := s.ValidateAnswers(map[string]any{"q1": float64(4), "q4": "no"}); err != nil {
		t.Fatalf("valid answers rejected: %v", err)
	}

	err := s.ValidateAnswers(map[string]any{"q1": float64(2)})
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 1 || verrs[0].QuestionID != "q2" {
		t.Fatalf("expected q2 required by logic, got %v", err)
	}

	err = s.ValidateAnswers(map[string]any{
		"q1": float64(9),
		"q2": "no",
		"q3": "not-an-email",
		"q4": "maybe",
		"q5": map[string]any{"mail": true, "fax": true},
		"zz": "x",
	})
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	got := map[string]bool{}
	for _, v := range verrs {
		got[v.QuestionID] = true
	}
	for _, id := range []string{"q1", "q2", "q4", "q5", "zz"} {
		if !got[id] {
			t.Fatalf("missing error for %s in %v", id, verrs)
		}
	}
	if got["q3"] {
		t.Fatalf("hidden question q3 should not be validated: %v", verrs)
	}
}

func TestCustomMessage(t *testing.T) {
	q := domain.Question{ID: "q", Type: domain.QuestionText, Validation: &domain.QuestionValidation{Pattern: `^\d+$`, CustomMessage: "digits only"}}
	problems := q.ValidateAnswer("abc")
	if len(problems) != 1 || problems[0] != "digits only" {
		t.Fatalf("unexpected problems %v", problems)
	}
}

func TestCheckRejectsBrokenStructure(t *testing.T) {
	s := domain.Survey{Questions: []domain.Question{
		{ID: "q1", Type: "slider"},
		{ID: "q2", Type: domain.QuestionText, ConditionalLogic: &domain.ConditionalLogic{Condition: domain.ConditionEquals, QuestionID: "nope", Action: domain.ActionShow}},
	}}
	err := s.Check()
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("expected two problems, got %v", err)
	}
}

func TestIsEmptyAnswer(t *testing.T) {
	for _, v := range []any{nil, "", "  ", []any{}, map[string]any{"a": false}} {
		if !domain.IsEmptyAnswer(v) {
			t.Fatalf("%#v should be empty", v)
		}
	}
	for _, v := range []any{"x", float64(0), false, []any{"a"}, map[string]any{"a": true}} {
		if domain.IsEmptyAnswer(v) {
			t.Fatalf("%#v should not be empty", v)
		}
	}
}
