package domain

import "time"

// SurveyDraft is a partial survey. A nil field was not supplied; a nil
// Questions or Tags slice means the same, while an empty non-nil slice clears.
type SurveyDraft struct {
	ID          *string        `json:"id,omitempty"`
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	IsPublic    *bool          `json:"isPublic,omitempty"`
	IsPublished *bool          `json:"isPublished,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
	Settings    *SettingsDraft `json:"settings,omitempty"`
	Questions   []Question     `json:"questions,omitempty"`
	Version     *int           `json:"version,omitempty"`
	AuthorID    *string        `json:"authorId,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

type SettingsDraft struct {
	AllowAnonymous         *bool        `json:"allowAnonymous,omitempty"`
	RequireEmail           *bool        `json:"requireEmail,omitempty"`
	MaxResponses           *int         `json:"maxResponses,omitempty"`
	AllowMultipleResponses *bool        `json:"allowMultipleResponses,omitempty"`
	ShowProgressBar        *bool        `json:"showProgressBar,omitempty"`
	ShowQuestionNumbers    *bool        `json:"showQuestionNumbers,omitempty"`
	EnableBackButton       *bool        `json:"enableBackButton,omitempty"`
	AutoSave               *bool        `json:"autoSave,omitempty"`
	Theme                  *SurveyTheme `json:"theme,omitempty"`
}

// DraftOf returns a draft carrying every field of s.
func DraftOf(s Survey) SurveyDraft {
	settings := SettingsOf(s.Settings)
	d := SurveyDraft{
		ID:          Ptr(s.ID),
		Title:       Ptr(s.Title),
		Description: Ptr(s.Description),
		IsPublic:    Ptr(s.IsPublic),
		IsPublished: Ptr(s.IsPublished),
		CreatedAt:   Ptr(s.CreatedAt),
		UpdatedAt:   Ptr(s.UpdatedAt),
		Settings:    &settings,
		Questions:   CloneQuestions(s.Questions),
		Version:     Ptr(s.Version),
		AuthorID:    Ptr(s.AuthorID),
		Tags:        append([]string{}, s.Tags...),
	}
	if d.Questions == nil {
		d.Questions = []Question{}
	}
	return d
}

// SettingsOf returns a settings draft carrying every field of s.
func SettingsOf(s SurveySettings) SettingsDraft {
	theme := s.Theme
	d := SettingsDraft{
		AllowAnonymous:         Ptr(s.AllowAnonymous),
		RequireEmail:           Ptr(s.RequireEmail),
		AllowMultipleResponses: Ptr(s.AllowMultipleResponses),
		ShowProgressBar:        Ptr(s.ShowProgressBar),
		ShowQuestionNumbers:    Ptr(s.ShowQuestionNumbers),
		EnableBackButton:       Ptr(s.EnableBackButton),
		AutoSave:               Ptr(s.AutoSave),
		Theme:                  &theme,
	}
	if s.MaxResponses != nil {
		d.MaxResponses = Ptr(*s.MaxResponses)
	}
	return d
}

// ApplyTo overlays the supplied fields of d onto s. Settings are replaced as
// a whole group, field by field within it.
func (d SurveyDraft) ApplyTo(s Survey) Survey {
	if d.ID != nil {
		s.ID = *d.ID
	}
	if d.Title != nil {
		s.Title = *d.Title
	}
	if d.Description != nil {
		s.Description = *d.Description
	}
	if d.IsPublic != nil {
		s.IsPublic = *d.IsPublic
	}
	if d.IsPublished != nil {
		s.IsPublished = *d.IsPublished
	}
	if d.CreatedAt != nil {
		s.CreatedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		s.UpdatedAt = *d.UpdatedAt
	}
	if d.Settings != nil {
		s.Settings = d.Settings.ApplyTo(s.Settings)
	}
	if d.Questions != nil {
		s.Questions = CloneQuestions(d.Questions)
	}
	if d.Version != nil {
		s.Version = *d.Version
	}
	if d.AuthorID != nil {
		s.AuthorID = *d.AuthorID
	}
	if d.Tags != nil {
		s.Tags = append([]string{}, d.Tags...)
	}
	return s
}

// Merge returns d with every field supplied by over replacing its own.
func (d SurveyDraft) Merge(over SurveyDraft) SurveyDraft {
	out := d
	if over.ID != nil {
		out.ID = over.ID
	}
	if over.Title != nil {
		out.Title = over.Title
	}
	if over.Description != nil {
		out.Description = over.Description
	}
	if over.IsPublic != nil {
		out.IsPublic = over.IsPublic
	}
	if over.IsPublished != nil {
		out.IsPublished = over.IsPublished
	}
	if over.CreatedAt != nil {
		out.CreatedAt = over.CreatedAt
	}
	if over.UpdatedAt != nil {
		out.UpdatedAt = over.UpdatedAt
	}
	if over.Settings != nil {
		if out.Settings == nil {
			out.Settings = over.Settings
		} else {
			merged := out.Settings.Merge(*over.Settings)
			out.Settings = &merged
		}
	}
	if over.Questions != nil {
		out.Questions = over.Questions
	}
	if over.Version != nil {
		out.Version = over.Version
	}
	if over.AuthorID != nil {
		out.AuthorID = over.AuthorID
	}
	if over.Tags != nil {
		out.Tags = over.Tags
	}
	return out
}

func (d SettingsDraft) ApplyTo(s SurveySettings) SurveySettings {
	if d.AllowAnonymous != nil {
		s.AllowAnonymous = *d.AllowAnonymous
	}
	if d.RequireEmail != nil {
		s.RequireEmail = *d.RequireEmail
	}
	if d.MaxResponses != nil {
		s.MaxResponses = Ptr(*d.MaxResponses)
	}
	if d.AllowMultipleResponses != nil {
		s.AllowMultipleResponses = *d.AllowMultipleResponses
	}
	if d.ShowProgressBar != nil {
		s.ShowProgressBar = *d.ShowProgressBar
	}
	if d.ShowQuestionNumbers != nil {
		s.ShowQuestionNumbers = *d.ShowQuestionNumbers
	}
	if d.EnableBackButton != nil {
		s.EnableBackButton = *d.EnableBackButton
	}
	if d.AutoSave != nil {
		s.AutoSave = *d.AutoSave
	}
	if d.Theme != nil {
		s.Theme = *d.Theme
	}
	return s
}

func (d SettingsDraft) Merge(over SettingsDraft) SettingsDraft {
	out := d
	if over.AllowAnonymous != nil {
		out.AllowAnonymous = over.AllowAnonymous
	}
	if over.RequireEmail != nil {
		out.RequireEmail = over.RequireEmail
	}
	if over.MaxResponses != nil {
		out.MaxResponses = over.MaxResponses
	}
	if over.AllowMultipleResponses != nil {
		out.AllowMultipleResponses = over.AllowMultipleResponses
	}
	if over.ShowProgressBar != nil {
		out.ShowProgressBar = over.ShowProgressBar
	}
	if over.ShowQuestionNumbers != nil {
		out.ShowQuestionNumbers = over.ShowQuestionNumbers
	}
	if over.EnableBackButton != nil {
		out.EnableBackButton = over.EnableBackButton
	}
	if over.AutoSave != nil {
		out.AutoSave = over.AutoSave
	}
	if over.Theme != nil {
		out.Theme = over.Theme
	}
	return out
}

// CloneQuestions deep-copies questions so drafts never alias stored slices.
func CloneQuestions(in []Question) []Question {
	if in == nil {
		return nil
	}
	out := make([]Question, len(in))
	for i, q := range in {
		if q.Options != nil {
			q.Options = append([]QuestionOption{}, q.Options...)
		}
		if q.Validation != nil {
			v := *q.Validation
			q.Validation = &v
		}
		if q.ConditionalLogic != nil {
			c := *q.ConditionalLogic
			q.ConditionalLogic = &c
		}
		out[i] = q
	}
	return out
}
