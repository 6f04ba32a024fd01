package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"surveydesk/internal/domain"
	"surveydesk/internal/storage"
	"surveydesk/internal/survey"
)

// Request payloads

type SetCurrentRequest struct {
	ID string `json:"id"`
}

// TemplateFromSurveyRequest names a template captured from a survey. Name
// defaults to the survey title.
type TemplateFromSurveyRequest struct {
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

// Response payloads

type CurrentResponse struct {
	Survey *domain.Survey `json:"survey"`
}

type StorageResponse struct {
	Availability storage.Availability `json:"availability"`
	Stats        storage.Stats        `json:"stats"`
}

type ValidationErrorResponse struct {
	QuestionID string `json:"questionId"`
	Message    string `json:"message"`
}

func validationDetails(errs survey.ValidationErrors) map[string]any {
	out := make([]ValidationErrorResponse, len(errs))
	for i, e := range errs {
		out[i] = ValidationErrorResponse{QuestionID: e.QuestionID, Message: e.Message}
	}
	return map[string]any{"errors": out}
}

// decodeBody unmarshals a JSON object body into dst. Empty bodies are
// accepted when optional is set.
func decodeBody(raw []byte, dst any, optional bool) huma.StatusError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if optional {
			return nil
		}
		return newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	if trimmed[0] != '{' {
		return newAPIError(http.StatusBadRequest, "bad_request", "body must be a JSON object", nil)
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON body: %v", err), nil)
	}
	return nil
}

func nonNilSurveys(items []domain.Survey) []domain.Survey {
	if items == nil {
		return []domain.Survey{}
	}
	return items
}

func nonNilResponses(items []domain.SurveyResponse) []domain.SurveyResponse {
	if items == nil {
		return []domain.SurveyResponse{}
	}
	return items
}
