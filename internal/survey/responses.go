package survey

import (
	"context"
	"errors"
	"strings"
	"time"

	"surveydesk/internal/domain"
)

// SaveResponse stores a response as given, stamping a missing id or start
// time. A complete response must carry a completion time not before its start.
func (s *Service) SaveResponse(ctx context.Context, r domain.SurveyResponse) (domain.SurveyResponse, error) {
	if strings.TrimSpace(r.SurveyID) == "" {
		return domain.SurveyResponse{}, invalid("surveyId", "survey id is required")
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	if r.IsComplete {
		if r.CompletedAt == nil {
			return domain.SurveyResponse{}, invalid("completedAt", "complete responses need a completion time")
		}
		if r.CompletedAt.Before(r.StartedAt) {
			return domain.SurveyResponse{}, invalid("completedAt", "completion time is before start time")
		}
	}
	if r.Answers == nil {
		r.Answers = []domain.Answer{}
	}
	if err := s.Store.SaveResponse(ctx, r); err != nil {
		return domain.SurveyResponse{}, s.failed(ctx, "saveResponse", "response", r.ID, err)
	}
	s.succeeded(ctx, "saveResponse", "response", r.ID, "Response saved successfully!")
	return r, nil
}

func (s *Service) Responses(ctx context.Context, surveyID string) ([]domain.SurveyResponse, error) {
	return s.Store.GetResponsesBySurveyID(ctx, surveyID)
}

// Response returns nil when no response has the id.
func (s *Service) Response(ctx context.Context, id string) (*domain.SurveyResponse, error) {
	return s.Store.GetResponse(ctx, id)
}

func (s *Service) RespondentResponses(ctx context.Context, respondentID string) ([]domain.SurveyResponse, error) {
	return s.Store.GetResponsesByRespondent(ctx, respondentID)
}

func (s *Service) DeleteResponse(ctx context.Context, id string) error {
	cur, err := s.Store.GetResponse(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return notFound("response", id)
	}
	if err := s.Store.DeleteResponse(ctx, id); err != nil {
		return s.failed(ctx, "deleteResponse", "response", id, err)
	}
	s.succeeded(ctx, "deleteResponse", "response", id, "Response deleted successfully!")
	return nil
}

// Submission is a respondent's answer set keyed by question id.
type Submission struct {
	RespondentID string                   `json:"respondentId,omitempty"`
	Email        string                   `json:"email,omitempty"`
	Answers      map[string]any           `json:"answers"`
	StartedAt    time.Time                `json:"startedAt,omitempty"`
	Metadata     *domain.ResponseMetadata `json:"metadata,omitempty"`
}

// Submit validates a completed answer set against the survey rules and
// settings, then stores it as a complete response.
func (s *Service) Submit(ctx context.Context, surveyID string, sub Submission) (domain.SurveyResponse, error) {
	unlock := s.locks.Lock("responses:" + surveyID)
	defer unlock()

	sv, err := s.Store.GetSurvey(ctx, surveyID)
	if err != nil {
		return domain.SurveyResponse{}, err
	}
	if sv == nil {
		return domain.SurveyResponse{}, notFound("survey", surveyID)
	}
	if !sv.IsPublished {
		return domain.SurveyResponse{}, ErrNotPublished
	}

	var problems ValidationErrors
	email := strings.TrimSpace(sub.Email)
	switch {
	case email == "" && sv.Settings.RequireEmail:
		problems = append(problems, domain.ValidationError{QuestionID: "email", Message: "email is required"})
	case email != "" && !validEmail(email):
		problems = append(problems, domain.ValidationError{QuestionID: "email", Message: "must be a valid email address"})
	}
	if !sv.Settings.AllowAnonymous && sub.RespondentID == "" && email == "" {
		problems = append(problems, domain.ValidationError{QuestionID: "respondentId", Message: "anonymous responses are not allowed"})
	}
	answers := sub.Answers
	if answers == nil {
		answers = map[string]any{}
	}
	var answerErrs ValidationErrors
	if err := sv.ValidateAnswers(answers); errors.As(err, &answerErrs) {
		problems = append(problems, answerErrs...)
	}
	if len(problems) > 0 {
		return domain.SurveyResponse{}, problems
	}

	existing, err := s.Store.GetResponsesBySurveyID(ctx, surveyID)
	if err != nil {
		return domain.SurveyResponse{}, err
	}
	if max := sv.Settings.MaxResponses; max != nil && len(existing) >= *max {
		return domain.SurveyResponse{}, ErrResponseLimit
	}
	if !sv.Settings.AllowMultipleResponses && (sub.RespondentID != "" || email != "") {
		for _, r := range existing {
			if (sub.RespondentID != "" && r.RespondentID == sub.RespondentID) ||
				(email != "" && strings.EqualFold(r.Email, email)) {
				return domain.SurveyResponse{}, ErrAlreadyAnswered
			}
		}
	}

	now := s.now()
	started := sub.StartedAt.UTC()
	if started.IsZero() || started.After(now) {
		started = now
	}
	resp := domain.SurveyResponse{
		ID:           s.newID(),
		SurveyID:     surveyID,
		RespondentID: sub.RespondentID,
		Email:        email,
		Answers:      []domain.Answer{},
		StartedAt:    started,
		CompletedAt:  &now,
		IsComplete:   true,
	}
	for _, q := range sv.OrderedQuestions() {
		if visible, _ := q.Visibility(answers); !visible {
			continue
		}
		v, ok := answers[q.ID]
		if !ok || domain.IsEmptyAnswer(v) {
			continue
		}
		resp.Answers = append(resp.Answers, domain.Answer{QuestionID: q.ID, Value: v, AnsweredAt: now})
	}
	meta := domain.ResponseMetadata{}
	if sub.Metadata != nil {
		meta = *sub.Metadata
	}
	if meta.SessionID == "" {
		meta.SessionID = s.newID()
	}
	meta.TimeSpent = now.Sub(started).Milliseconds()
	resp.Metadata = &meta
	return s.SaveResponse(ctx, resp)
}

func validEmail(v string) bool {
	q := domain.Question{Type: domain.QuestionEmail}
	return len(q.ValidateAnswer(v)) == 0
}
