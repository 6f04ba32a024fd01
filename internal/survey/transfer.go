package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"surveydesk/internal/domain"
)

// Export renders the stored survey as indented JSON.
func (s *Service) Export(ctx context.Context, id string) (string, error) {
	sv, err := s.Store.GetSurvey(ctx, id)
	if err != nil {
		return "", err
	}
	if sv == nil {
		return "", notFound("survey", id)
	}
	b, err := json.MarshalIndent(sv, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Import creates a new survey from an exported document. The document id,
// version and timestamps are not kept.
func (s *Service) Import(ctx context.Context, data []byte) (domain.Survey, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Survey{}, &FormatError{Err: errors.New("expected a JSON object")}
	}
	var d domain.SurveyDraft
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return domain.Survey{}, &FormatError{Err: err}
	}
	return s.Create(ctx, d)
}
