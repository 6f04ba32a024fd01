package survey

import (
	"context"
	"fmt"
	"time"

	"surveydesk/internal/domain"
	"surveydesk/internal/events"
	"surveydesk/internal/storage"
)

// Load fills the surveys cell from storage. An empty collection is seeded
// with the sample surveys when seeding is enabled. While the structured store
// is still opening its contents are unknown, so nothing is seeded.
func (s *Service) Load(ctx context.Context) ([]domain.Survey, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 || !s.seed {
		return list, nil
	}
	if st := s.Store.IsStorageAvailable(ctx).StructuredState; st == storage.StateOpening {
		s.Log.Info("structured store still opening, sample data not seeded")
		return list, nil
	}
	if err := s.writeSamples(ctx); err != nil {
		return nil, err
	}
	return s.List(ctx)
}

// ResetToSampleData wipes every survey, response and template and writes
// the sample surveys again.
func (s *Service) ResetToSampleData(ctx context.Context) ([]domain.Survey, error) {
	if err := s.Store.ClearAll(ctx); err != nil {
		s.Events.Append(ctx, events.LevelError, "reset", "", "", "Failed to reset data")
		return nil, err
	}
	if err := s.writeSamples(ctx); err != nil {
		s.Events.Append(ctx, events.LevelError, "reset", "", "", "Failed to reset data")
		return nil, err
	}
	s.ClearCurrent()
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	s.succeeded(ctx, "reset", "", "", "Data reset successfully!")
	return list, nil
}

// ClearAll wipes every entity without reseeding.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.Store.ClearAll(ctx); err != nil {
		return s.failed(ctx, "clear", "", "", err)
	}
	s.surveys.Set([]domain.Survey{})
	s.ClearCurrent()
	s.succeeded(ctx, "clear", "", "", "All data cleared")
	return nil
}

func (s *Service) writeSamples(ctx context.Context) error {
	for _, sv := range SampleSurveys() {
		if err := s.Store.SaveSurvey(ctx, sv); err != nil {
			return fmt.Errorf("seed survey %s: %w", sv.ID, err)
		}
	}
	return nil
}

// CheckStorage probes both backends.
func (s *Service) CheckStorage(ctx context.Context) storage.Availability {
	return s.Store.IsStorageAvailable(ctx)
}

func (s *Service) StorageStats(ctx context.Context) (storage.Stats, error) {
	return s.Store.Stats(ctx)
}

// SampleSurveys returns the two surveys a fresh workspace starts with.
func SampleSurveys() []domain.Survey {
	day := func(d string) time.Time {
		t, _ := time.Parse("2006-01-02", d)
		return t.UTC()
	}
	minRating, maxRating := 1.0, 5.0

	customer := domain.Survey{
		ID:          "1",
		Title:       "Customer Feedback Survey",
		Description: "Help us improve our services by providing your valuable feedback",
		IsPublic:    true,
		IsPublished: true,
		CreatedAt:   day("2024-01-15"),
		UpdatedAt:   day("2024-01-20"),
		Settings:    domain.DefaultSettings(),
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionText, Title: "What is your name?", Description: "Please enter your full name", Required: true, Order: 0},
			{ID: "q2", Type: domain.QuestionRating, Title: "How satisfied are you with our service?", Description: "Rate your satisfaction from 1 to 5", Required: true, Order: 1,
				Validation: &domain.QuestionValidation{MinValue: &minRating, MaxValue: &maxRating}},
			{ID: "q3", Type: domain.QuestionTextarea, Title: "Additional comments", Description: "Please share any additional feedback", Required: false, Order: 2},
		},
		Version:  1,
		AuthorID: "admin",
		Tags:     []string{"customer", "feedback", "service"},
	}

	employeeSettings := domain.DefaultSettings()
	employeeSettings.AllowAnonymous = false
	employeeSettings.RequireEmail = true
	employeeSettings.Theme.PrimaryColor = "#4caf50"
	employeeSettings.Theme.SecondaryColor = "#ff9800"
	employee := domain.Survey{
		ID:          "2",
		Title:       "Employee Satisfaction Survey",
		Description: "Annual employee satisfaction and engagement survey",
		CreatedAt:   day("2024-01-10"),
		UpdatedAt:   day("2024-01-12"),
		Settings:    employeeSettings,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionRadio, Title: "How would you rate your work-life balance?", Description: "Select the option that best describes your situation", Required: true, Order: 0,
				Options: []domain.QuestionOption{
					{ID: "opt1", Label: "Excellent", Value: "excellent", Order: 0},
					{ID: "opt2", Label: "Good", Value: "good", Order: 1},
					{ID: "opt3", Label: "Fair", Value: "fair", Order: 2},
					{ID: "opt4", Label: "Poor", Value: "poor", Order: 3},
				}},
		},
		Version:  1,
		AuthorID: "admin",
		Tags:     []string{"employee", "satisfaction", "hr"},
	}
	return []domain.Survey{customer, employee}
}
