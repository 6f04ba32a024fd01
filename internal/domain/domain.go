package domain

import (
	"sort"
	"time"
)

type QuestionType string

const (
	QuestionText        QuestionType = "text"
	QuestionTextarea    QuestionType = "textarea"
	QuestionNumber      QuestionType = "number"
	QuestionEmail       QuestionType = "email"
	QuestionPhone       QuestionType = "phone"
	QuestionDate        QuestionType = "date"
	QuestionTime        QuestionType = "time"
	QuestionDatetime    QuestionType = "datetime"
	QuestionSelect      QuestionType = "select"
	QuestionMultiselect QuestionType = "multiselect"
	QuestionRadio       QuestionType = "radio"
	QuestionCheckbox    QuestionType = "checkbox"
	QuestionRating      QuestionType = "rating"
	QuestionScale       QuestionType = "scale"
	QuestionFile        QuestionType = "file"
	QuestionLocation    QuestionType = "location"
	QuestionSignature   QuestionType = "signature"
)

var questionTypes = map[QuestionType]struct{}{
	QuestionText: {}, QuestionTextarea: {}, QuestionNumber: {}, QuestionEmail: {},
	QuestionPhone: {}, QuestionDate: {}, QuestionTime: {}, QuestionDatetime: {},
	QuestionSelect: {}, QuestionMultiselect: {}, QuestionRadio: {}, QuestionCheckbox: {},
	QuestionRating: {}, QuestionScale: {}, QuestionFile: {}, QuestionLocation: {},
	QuestionSignature: {},
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	_, ok := questionTypes[t]
	return ok
}

// IsChoice reports whether answers must come from the question options.
func (t QuestionType) IsChoice() bool {
	switch t {
	case QuestionSelect, QuestionMultiselect, QuestionRadio, QuestionCheckbox:
		return true
	}
	return false
}

// IsMulti reports whether the question accepts several options at once.
func (t QuestionType) IsMulti() bool {
	return t == QuestionMultiselect || t == QuestionCheckbox
}

// IsNumeric reports whether answers are numbers.
func (t QuestionType) IsNumeric() bool {
	return t == QuestionNumber || t == QuestionRating || t == QuestionScale
}

type Condition string

const (
	ConditionEquals      Condition = "equals"
	ConditionNotEquals   Condition = "not_equals"
	ConditionContains    Condition = "contains"
	ConditionNotContains Condition = "not_contains"
	ConditionGreaterThan Condition = "greater_than"
	ConditionLessThan    Condition = "less_than"
)

type LogicAction string

const (
	ActionShow    LogicAction = "show"
	ActionHide    LogicAction = "hide"
	ActionRequire LogicAction = "require"
	ActionSkip    LogicAction = "skip"
)

type Survey struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	IsPublic    bool             `json:"isPublic"`
	IsPublished bool             `json:"isPublished"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Settings    SurveySettings   `json:"settings"`
	Questions   []Question       `json:"questions"`
	Responses   []SurveyResponse `json:"responses,omitempty"`
	Version     int              `json:"version"`
	AuthorID    string           `json:"authorId,omitempty"`
	Tags        []string         `json:"tags"`
}

func (s Survey) PrimaryKey() string { return s.ID }

// OrderedQuestions returns the questions in display order.
func (s Survey) OrderedQuestions() []Question {
	out := make([]Question, len(s.Questions))
	copy(out, s.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Question returns the question with the given id.
func (s Survey) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type SurveySettings struct {
	AllowAnonymous         bool        `json:"allowAnonymous"`
	RequireEmail           bool        `json:"requireEmail"`
	MaxResponses           *int        `json:"maxResponses,omitempty"`
	AllowMultipleResponses bool        `json:"allowMultipleResponses"`
	ShowProgressBar        bool        `json:"showProgressBar"`
	ShowQuestionNumbers    bool        `json:"showQuestionNumbers"`
	EnableBackButton       bool        `json:"enableBackButton"`
	AutoSave               bool        `json:"autoSave"`
	Theme                  SurveyTheme `json:"theme"`
}

type SurveyTheme struct {
	PrimaryColor    string `json:"primaryColor"`
	SecondaryColor  string `json:"secondaryColor"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	BorderRadius    int    `json:"borderRadius"`
	FontFamily      string `json:"fontFamily"`
}

// DefaultTheme is applied to surveys created without a theme.
func DefaultTheme() SurveyTheme {
	return SurveyTheme{
		PrimaryColor:    "#1976d2",
		SecondaryColor:  "#dc004e",
		BackgroundColor: "#ffffff",
		TextColor:       "#000000",
		BorderRadius:    8,
		FontFamily:      "Roboto, sans-serif",
	}
}

// DefaultSettings are the anonymous-friendly settings of a new survey.
func DefaultSettings() SurveySettings {
	return SurveySettings{
		AllowAnonymous:         true,
		RequireEmail:           false,
		AllowMultipleResponses: false,
		ShowProgressBar:        true,
		ShowQuestionNumbers:    true,
		EnableBackButton:       true,
		AutoSave:               true,
		Theme:                  DefaultTheme(),
	}
}

type Question struct {
	ID               string              `json:"id"`
	Type             QuestionType        `json:"type"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Required         bool                `json:"required"`
	Order            int                 `json:"order"`
	Options          []QuestionOption    `json:"options,omitempty"`
	Validation       *QuestionValidation `json:"validation,omitempty"`
	ConditionalLogic *ConditionalLogic   `json:"conditionalLogic,omitempty"`
}

type QuestionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
	Order int    `json:"order"`
}

type QuestionValidation struct {
	MinLength     *int     `json:"minLength,omitempty"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	MinValue      *float64 `json:"minValue,omitempty"`
	MaxValue      *float64 `json:"maxValue,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	CustomMessage string   `json:"customMessage,omitempty"`
}

type ConditionalLogic struct {
	Condition  Condition   `json:"condition"`
	QuestionID string      `json:"questionId"`
	Value      any         `json:"value"`
	Action     LogicAction `json:"action"`
}

type SurveyResponse struct {
	ID           string            `json:"id"`
	SurveyID     string            `json:"surveyId"`
	RespondentID string            `json:"respondentId,omitempty"`
	Email        string            `json:"email,omitempty"`
	Answers      []Answer          `json:"answers"`
	StartedAt    time.Time         `json:"startedAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	IsComplete   bool              `json:"isComplete"`
	Metadata     *ResponseMetadata `json:"metadata,omitempty"`
}

func (r SurveyResponse) PrimaryKey() string { return r.ID }

// Duration is the time between start and completion, zero when incomplete.
func (r SurveyResponse) Duration() time.Duration {
	if !r.IsComplete || r.CompletedAt == nil || r.StartedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// AnswerMap indexes answer values by question id; later answers win.
func (r SurveyResponse) AnswerMap() map[string]any {
	out := make(map[string]any, len(r.Answers))
	for _, a := range r.Answers {
		out[a.QuestionID] = a.Value
	}
	return out
}

type Answer struct {
	QuestionID string    `json:"questionId"`
	Value      any       `json:"value"`
	AnsweredAt time.Time `json:"answeredAt"`
}

type ResponseMetadata struct {
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	SessionID string `json:"sessionId"`
	// TimeSpent is in milliseconds.
	TimeSpent int64 `json:"timeSpent"`
}

type SurveyTemplate struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Survey      SurveyDraft `json:"survey"`
	IsPublic    bool        `json:"isPublic"`
	UsageCount  int         `json:"usageCount"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (t SurveyTemplate) PrimaryKey() string { return t.ID }

// Ptr returns a pointer to v, handy for building drafts.
func Ptr[T any](v T) *T { return &v }
