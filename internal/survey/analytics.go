package survey

import (
	"context"

	"surveydesk/internal/domain"
)

// Analytics summarizes a survey's responses. CompletionRate is a percentage
// in [0,100] and AvgTimeToComplete is in milliseconds.
type Analytics struct {
	SurveyID           string            `json:"surveyId"`
	TotalResponses     int               `json:"totalResponses"`
	CompletedResponses int               `json:"completedResponses"`
	CompletionRate     float64           `json:"completionRate"`
	AvgTimeToComplete  float64           `json:"avgTimeToComplete"`
	ResponsesByDate    map[string]int    `json:"responsesByDate"`
	Questions          []QuestionSummary `json:"questions,omitempty"`
}

// QuestionSummary aggregates the answers given to one question.
type QuestionSummary struct {
	QuestionID string              `json:"questionId"`
	Title      string              `json:"title"`
	Type       domain.QuestionType `json:"type"`
	Answered   int                 `json:"answered"`
	// Options counts picks per option value for choice questions.
	Options map[string]int `json:"options,omitempty"`
	// Average is set for numeric questions with at least one answer.
	Average *float64 `json:"average,omitempty"`
}

// Analytics summarizes the responses of a survey. Question summaries are
// only included when the survey still exists.
func (s *Service) Analytics(ctx context.Context, surveyID string) (Analytics, error) {
	responses, err := s.Store.GetResponsesBySurveyID(ctx, surveyID)
	if err != nil {
		return Analytics{}, err
	}
	sv, err := s.Store.GetSurvey(ctx, surveyID)
	if err != nil {
		return Analytics{}, err
	}
	a := ComputeAnalytics(sv, responses)
	a.SurveyID = surveyID
	return a, nil
}

// ComputeAnalytics is the pure aggregation behind Analytics.
func ComputeAnalytics(sv *domain.Survey, responses []domain.SurveyResponse) Analytics {
	a := Analytics{TotalResponses: len(responses), ResponsesByDate: map[string]int{}}
	if sv != nil {
		a.SurveyID = sv.ID
	}
	var (
		timed   int
		totalMS int64
	)
	for _, r := range responses {
		if r.IsComplete {
			a.CompletedResponses++
			if r.CompletedAt != nil && !r.StartedAt.IsZero() {
				timed++
				totalMS += r.CompletedAt.Sub(r.StartedAt).Milliseconds()
			}
		}
		if !r.StartedAt.IsZero() {
			a.ResponsesByDate[r.StartedAt.UTC().Format("2006-01-02")]++
		}
	}
	if a.TotalResponses > 0 {
		a.CompletionRate = float64(a.CompletedResponses) / float64(a.TotalResponses) * 100
	}
	if timed > 0 {
		a.AvgTimeToComplete = float64(totalMS) / float64(timed)
	}
	if sv != nil {
		a.Questions = summarize(*sv, responses)
	}
	return a
}

func summarize(sv domain.Survey, responses []domain.SurveyResponse) []QuestionSummary {
	questions := sv.OrderedQuestions()
	out := make([]QuestionSummary, 0, len(questions))
	for _, q := range questions {
		sum := QuestionSummary{QuestionID: q.ID, Title: q.Title, Type: q.Type}
		if q.Type.IsChoice() {
			sum.Options = map[string]int{}
			for _, o := range q.Options {
				sum.Options[o.Value] = 0
			}
		}
		var (
			numbers int
			total   float64
		)
		for _, r := range responses {
			v, ok := r.AnswerMap()[q.ID]
			if !ok || domain.IsEmptyAnswer(v) {
				continue
			}
			sum.Answered++
			if q.Type.IsChoice() {
				for _, pick := range domain.Selected(v) {
					sum.Options[pick]++
				}
			}
			if q.Type.IsNumeric() {
				if n, ok := domain.Number(v); ok {
					numbers++
					total += n
				}
			}
		}
		if numbers > 0 {
			avg := total / float64(numbers)
			sum.Average = &avg
		}
		out = append(out, sum)
	}
	return out
}
