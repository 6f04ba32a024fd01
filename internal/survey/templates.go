package survey

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"surveydesk/internal/domain"
)

// SaveTemplate inserts or replaces a template, stamping id and timestamps.
func (s *Service) SaveTemplate(ctx context.Context, t domain.SurveyTemplate) (domain.SurveyTemplate, error) {
	if strings.TrimSpace(t.Name) == "" {
		return domain.SurveyTemplate{}, invalid("name", "template name is required")
	}
	now := s.now()
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if err := s.Store.SaveTemplate(ctx, t); err != nil {
		return domain.SurveyTemplate{}, s.failed(ctx, "saveTemplate", "template", t.ID, err)
	}
	s.succeeded(ctx, "saveTemplate", "template", t.ID, "Template saved successfully!")
	return t, nil
}

// TemplateFromSurvey captures a survey's content as a reusable template.
func (s *Service) TemplateFromSurvey(ctx context.Context, surveyID, name, category string) (domain.SurveyTemplate, error) {
	sv, err := s.Store.GetSurvey(ctx, surveyID)
	if err != nil {
		return domain.SurveyTemplate{}, err
	}
	if sv == nil {
		return domain.SurveyTemplate{}, notFound("survey", surveyID)
	}
	d := domain.DraftOf(*sv)
	d.ID, d.Version, d.CreatedAt, d.UpdatedAt, d.IsPublished = nil, nil, nil, nil, nil
	if name == "" {
		name = sv.Title
	}
	return s.SaveTemplate(ctx, domain.SurveyTemplate{
		Name:        name,
		Description: sv.Description,
		Category:    category,
		Survey:      d,
		IsPublic:    sv.IsPublic,
	})
}

// Template returns nil when no template has the id.
func (s *Service) Template(ctx context.Context, id string) (*domain.SurveyTemplate, error) {
	return s.Store.GetTemplate(ctx, id)
}

func (s *Service) Templates(ctx context.Context) ([]domain.SurveyTemplate, error) {
	return s.Store.GetAllTemplates(ctx)
}

func (s *Service) TemplatesByCategory(ctx context.Context, category string) ([]domain.SurveyTemplate, error) {
	return s.Store.GetTemplatesByCategory(ctx, category)
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	cur, err := s.Store.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return notFound("template", id)
	}
	if err := s.Store.DeleteTemplate(ctx, id); err != nil {
		return s.failed(ctx, "deleteTemplate", "template", id, err)
	}
	s.succeeded(ctx, "deleteTemplate", "template", id, "Template deleted successfully!")
	return nil
}

// CreateFromTemplate creates an unpublished survey from the template content
// with overrides applied on top, then counts the use on the template.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID string, overrides domain.SurveyDraft) (domain.Survey, error) {
	unlock := s.locks.Lock("template:" + templateID)
	defer unlock()

	tpl, err := s.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Survey{}, err
	}
	if tpl == nil {
		return domain.Survey{}, notFound("template", templateID)
	}
	d := tpl.Survey.Merge(overrides)
	d.IsPublished = domain.Ptr(false)
	d.Questions = domain.CloneQuestions(d.Questions)
	sv, err := s.Create(ctx, d)
	if err != nil {
		return domain.Survey{}, err
	}
	tpl.UsageCount++
	tpl.UpdatedAt = s.now()
	if err := s.Store.SaveTemplate(ctx, *tpl); err != nil {
		s.Log.Warn("template usage not recorded", zap.String("template", templateID), zap.Error(err))
	}
	return sv, nil
}
