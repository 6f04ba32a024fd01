package survey_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"surveydesk/internal/domain"
	"surveydesk/internal/survey"
)

func publishedSurvey(t *testing.T, env testEnv, settings *domain.SettingsDraft) domain.Survey {
	t.Helper()
	s, err := env.Svc.Create(env.Ctx, domain.SurveyDraft{
		Title:       domain.Ptr("Pets"),
		IsPublished: domain.Ptr(true),
		Settings:    settings,
		Questions: []domain.Question{
			{ID: "pet", Type: domain.QuestionRadio, Title: "Pet?", Required: true, Options: []domain.QuestionOption{
				{ID: "o1", Label: "Dog", Value: "dog"},
				{ID: "o2", Label: "Cat", Value: "cat"},
			}},
			{ID: "name", Type: domain.QuestionText, Title: "Dog name", Order: 1,
				ConditionalLogic: &domain.ConditionalLogic{Condition: domain.ConditionEquals, QuestionID: "pet", Value: "dog", Action: domain.ActionRequire}},
			{ID: "score", Type: domain.QuestionRating, Title: "Happy?", Order: 2},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return s
}

func TestSubmitStoresVisibleAnswersInOrder(t *testing.T) {
	env := newTestEnv(t, false)
	s := publishedSurvey(t, env, nil)
	started := time.Date(2024, 3, 1, 8, 59, 0, 0, time.UTC)
	r, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{
		RespondentID: "u1",
		StartedAt:    started,
		Answers:      map[string]any{"score": 4.0, "pet": "dog", "name": "Rex"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !r.IsComplete || r.CompletedAt == nil || r.CompletedAt.Before(r.StartedAt) {
		t.Fatalf("completion not stamped: %+v", r)
	}
	if len(r.Answers) != 3 || r.Answers[0].QuestionID != "pet" || r.Answers[2].QuestionID != "score" {
		t.Fatalf("answers out of order: %+v", r.Answers)
	}
	if r.Metadata == nil || r.Metadata.SessionID == "" || r.Metadata.TimeSpent != r.Duration().Milliseconds() {
		t.Fatalf("metadata: %+v", r.Metadata)
	}
	stored, err := env.Svc.Responses(env.Ctx, s.ID)
	if err != nil || len(stored) != 1 || stored[0].ID != r.ID {
		t.Fatalf("stored responses: %v %v", stored, err)
	}
}

func TestSubmitRules(t *testing.T) {
	env := newTestEnv(t, false)
	s := publishedSurvey(t, env, &domain.SettingsDraft{MaxResponses: domain.Ptr(2)})

	var verrs survey.ValidationErrors
	_, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Answers: map[string]any{"pet": "dog"}})
	if !errors.As(err, &verrs) || verrs[0].QuestionID != "name" {
		t.Fatalf("conditional require not enforced: %v", err)
	}
	_, err = env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Answers: map[string]any{"pet": "bird"}})
	if !errors.As(err, &verrs) {
		t.Fatalf("unknown option accepted: %v", err)
	}
	_, err = env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Email: "nope", Answers: map[string]any{"pet": "cat"}})
	if !errors.As(err, &verrs) || verrs[0].QuestionID != "email" {
		t.Fatalf("bad email accepted: %v", err)
	}

	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{RespondentID: "u1", Answers: map[string]any{"pet": "cat"}}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{RespondentID: "u1", Answers: map[string]any{"pet": "cat"}}); !errors.Is(err, survey.ErrAlreadyAnswered) {
		t.Fatalf("repeat respondent: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Answers: map[string]any{"pet": "cat"}}); err != nil {
		t.Fatalf("anonymous submit: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Answers: map[string]any{"pet": "cat"}}); !errors.Is(err, survey.ErrResponseLimit) {
		t.Fatalf("limit not enforced: %v", err)
	}
}

func TestSubmitRequiresPublishedSurvey(t *testing.T) {
	env := newTestEnv(t, false)
	draft, _ := env.Svc.Create(env.Ctx, domain.SurveyDraft{})
	if _, err := env.Svc.Submit(env.Ctx, draft.ID, survey.Submission{}); !errors.Is(err, survey.ErrNotPublished) {
		t.Fatalf("unpublished: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, "missing", survey.Submission{}); !errors.Is(err, survey.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestSubmitWithoutAnonymousAccess(t *testing.T) {
	env := newTestEnv(t, false)
	s := publishedSurvey(t, env, &domain.SettingsDraft{AllowAnonymous: domain.Ptr(false), RequireEmail: domain.Ptr(true)})
	var verrs survey.ValidationErrors
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Answers: map[string]any{"pet": "cat"}}); !errors.As(err, &verrs) {
		t.Fatalf("anonymous accepted: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Email: "a@b.io", Answers: map[string]any{"pet": "cat"}}); err != nil {
		t.Fatalf("submit with email: %v", err)
	}
	if _, err := env.Svc.Submit(env.Ctx, s.ID, survey.Submission{Email: "A@B.io", Answers: map[string]any{"pet": "cat"}}); !errors.Is(err, survey.ErrAlreadyAnswered) {
		t.Fatalf("same email twice: %v", err)
	}
}

func TestSaveResponseCompletionInvariant(t *testing.T) {
	env := newTestEnv(t, false)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	_, err := env.Svc.SaveResponse(env.Ctx, domain.SurveyResponse{SurveyID: "1", StartedAt: start, IsComplete: true, CompletedAt: &before})
	if err == nil {
		t.Fatalf("completion before start accepted")
	}
	if _, err := env.Svc.SaveResponse(env.Ctx, domain.SurveyResponse{SurveyID: "1", IsComplete: true}); err == nil {
		t.Fatalf("complete response without completion time accepted")
	}
	if _, err := env.Svc.SaveResponse(env.Ctx, domain.SurveyResponse{}); err == nil {
		t.Fatalf("response without survey accepted")
	}
	r, err := env.Svc.SaveResponse(env.Ctx, domain.SurveyResponse{SurveyID: "1", RespondentID: "r"})
	if err != nil || r.ID == "" || r.StartedAt.IsZero() {
		t.Fatalf("partial response: %+v %v", r, err)
	}
	mine, _ := env.Svc.RespondentResponses(env.Ctx, "r")
	if len(mine) != 1 {
		t.Fatalf("by respondent: %d", len(mine))
	}
	if err := env.Svc.DeleteResponse(env.Ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Svc.DeleteResponse(env.Ctx, r.ID); !errors.Is(err, survey.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestAnalyticsWithoutResponses(t *testing.T) {
	env := newTestEnv(t, false)
	s := publishedSurvey(t, env, nil)
	a, err := env.Svc.Analytics(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.TotalResponses != 0 || a.CompletedResponses != 0 || a.CompletionRate != 0 || a.AvgTimeToComplete != 0 {
		t.Fatalf("expected zeros, got %+v", a)
	}
	if len(a.ResponsesByDate) != 0 || len(a.Questions) != 3 {
		t.Fatalf("unexpected breakdown %+v", a)
	}
}

func TestAnalyticsHalfCompleted(t *testing.T) {
	start := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	done := start.Add(time.Second)
	sv := domain.Survey{ID: "s", Questions: []domain.Question{
		{ID: "pet", Type: domain.QuestionRadio, Options: []domain.QuestionOption{{Value: "dog"}, {Value: "cat"}}},
		{ID: "score", Type: domain.QuestionRating, Order: 1},
	}}
	responses := []domain.SurveyResponse{
		{ID: "a", SurveyID: "s", StartedAt: start, CompletedAt: &done, IsComplete: true, Answers: []domain.Answer{
			{QuestionID: "pet", Value: "dog"}, {QuestionID: "score", Value: 4.0},
		}},
		{ID: "b", SurveyID: "s", StartedAt: start.Add(24 * time.Hour), Answers: []domain.Answer{
			{QuestionID: "score", Value: 2.0},
		}},
	}
	a := survey.ComputeAnalytics(&sv, responses)
	if a.TotalResponses != 2 || a.CompletedResponses != 1 {
		t.Fatalf("counts: %+v", a)
	}
	if math.Abs(a.CompletionRate-50) > 1e-9 || math.Abs(a.AvgTimeToComplete-1000) > 1e-9 {
		t.Fatalf("rate %v avg %v", a.CompletionRate, a.AvgTimeToComplete)
	}
	if a.ResponsesByDate["2024-02-10"] != 1 || a.ResponsesByDate["2024-02-11"] != 1 {
		t.Fatalf("by date: %v", a.ResponsesByDate)
	}
	pet, score := a.Questions[0], a.Questions[1]
	if pet.Options["dog"] != 1 || pet.Options["cat"] != 0 || pet.Answered != 1 {
		t.Fatalf("pet summary: %+v", pet)
	}
	if score.Average == nil || *score.Average != 3 || score.Answered != 2 {
		t.Fatalf("score summary: %+v", score)
	}
}
