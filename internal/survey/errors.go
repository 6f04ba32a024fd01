package survey

import (
	"errors"
	"fmt"

	"surveydesk/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrResponseLimit   = errors.New("response limit reached")
	ErrAlreadyAnswered = errors.New("respondent already answered this survey")
	ErrNotPublished    = errors.New("survey is not published")
)

// ValidationErrors lists every rule an input broke.
type ValidationErrors = domain.ValidationErrors

// FormatError reports an import payload that is not a survey document.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid JSON format: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func invalid(field, msg string) error {
	return ValidationErrors{{QuestionID: field, Message: msg}}
}
