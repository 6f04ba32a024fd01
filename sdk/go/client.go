package surveydesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal surveydesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Survey represents the API survey model (partial settings).
type Survey struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	IsPublic    bool           `json:"isPublic"`
	IsPublished bool           `json:"isPublished"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Settings    map[string]any `json:"settings"`
	Questions   []Question     `json:"questions"`
	Version     int            `json:"version"`
	AuthorID    string         `json:"authorId,omitempty"`
	Tags        []string       `json:"tags"`
}

type Question struct {
	ID               string         `json:"id,omitempty"`
	Type             string         `json:"type"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Required         bool           `json:"required"`
	Order            int            `json:"order"`
	Options          []Option       `json:"options,omitempty"`
	Validation       map[string]any `json:"validation,omitempty"`
	ConditionalLogic map[string]any `json:"conditionalLogic,omitempty"`
}

type Option struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Value string `json:"value"`
	Order int    `json:"order"`
}

// SurveyInput carries the fields to set on create or update; nil fields are
// left untouched.
type SurveyInput struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	IsPublic    *bool          `json:"isPublic,omitempty"`
	IsPublished *bool          `json:"isPublished,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Questions   []Question     `json:"questions,omitempty"`
	AuthorID    *string        `json:"authorId,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

type Answer struct {
	QuestionID string    `json:"questionId"`
	Value      any       `json:"value"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Response is a stored survey response.
type Response struct {
	ID           string         `json:"id"`
	SurveyID     string         `json:"surveyId"`
	RespondentID string         `json:"respondentId,omitempty"`
	Email        string         `json:"email,omitempty"`
	Answers      []Answer       `json:"answers"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	IsComplete   bool           `json:"isComplete"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Submission is the answer set sent to SubmitResponse.
type Submission struct {
	RespondentID string         `json:"respondentId,omitempty"`
	Email        string         `json:"email,omitempty"`
	Answers      map[string]any `json:"answers"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
}

type QuestionSummary struct {
	QuestionID string         `json:"questionId"`
	Title      string         `json:"title"`
	Type       string         `json:"type"`
	Answered   int            `json:"answered"`
	Options    map[string]int `json:"options,omitempty"`
	Average    *float64       `json:"average,omitempty"`
}

type Analytics struct {
	SurveyID           string            `json:"surveyId"`
	TotalResponses     int               `json:"totalResponses"`
	CompletedResponses int               `json:"completedResponses"`
	CompletionRate     float64           `json:"completionRate"`
	AvgTimeToComplete  float64           `json:"avgTimeToComplete"`
	ResponsesByDate    map[string]int    `json:"responsesByDate"`
	Questions          []QuestionSummary `json:"questions,omitempty"`
}

type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Survey      map[string]any `json:"survey"`
	IsPublic    bool           `json:"isPublic"`
	UsageCount  int            `json:"usageCount"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StatusOf returns the HTTP status of an *APIError, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// ListFilter narrows ListSurveys.
type ListFilter struct {
	Query     string
	Author    string
	Published bool
}

func (c *Client) CreateSurvey(ctx context.Context, in SurveyInput) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, "surveys", in, &resp)
	return resp, err
}

func (c *Client) GetSurvey(ctx context.Context, id string) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodGet, "surveys/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListSurveys(ctx context.Context, f ListFilter) ([]Survey, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Author != "" {
		q.Set("author", f.Author)
	}
	if f.Published {
		q.Set("published", "true")
	}
	endpoint := "surveys"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Survey
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateSurvey applies in to the survey. A positive expectedVersion makes
// the update conditional on the stored version.
func (c *Client) UpdateSurvey(ctx context.Context, id string, in SurveyInput, expectedVersion int) (Survey, error) {
	endpoint := "surveys/" + url.PathEscape(id)
	if expectedVersion > 0 {
		endpoint = fmt.Sprintf("%s?expectedVersion=%d", endpoint, expectedVersion)
	}
	var resp Survey
	err := c.do(ctx, http.MethodPatch, endpoint, in, &resp)
	return resp, err
}

func (c *Client) DeleteSurvey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "surveys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) PublishSurvey(ctx context.Context, id string) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, "surveys/"+url.PathEscape(id)+"/publish", nil, &resp)
	return resp, err
}

func (c *Client) DuplicateSurvey(ctx context.Context, id string) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, "surveys/"+url.PathEscape(id)+"/duplicate", nil, &resp)
	return resp, err
}

// ExportSurvey returns the exported JSON document.
func (c *Client) ExportSurvey(ctx context.Context, id string) ([]byte, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "surveys/"+url.PathEscape(id)+"/export", nil, &raw)
	return raw, err
}

func (c *Client) ImportSurvey(ctx context.Context, doc []byte) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, "surveys/import", json.RawMessage(doc), &resp)
	return resp, err
}

func (c *Client) SubmitResponse(ctx context.Context, surveyID string, sub Submission) (Response, error) {
	var resp Response
	err := c.do(ctx, http.MethodPost, "surveys/"+url.PathEscape(surveyID)+"/responses", sub, &resp)
	return resp, err
}

func (c *Client) ListResponses(ctx context.Context, surveyID string) ([]Response, error) {
	var resp []Response
	err := c.do(ctx, http.MethodGet, "surveys/"+url.PathEscape(surveyID)+"/responses", nil, &resp)
	return resp, err
}

func (c *Client) Analytics(ctx context.Context, surveyID string) (Analytics, error) {
	var resp Analytics
	err := c.do(ctx, http.MethodGet, "surveys/"+url.PathEscape(surveyID)+"/analytics", nil, &resp)
	return resp, err
}

// CreateTemplate captures an existing survey as a template.
func (c *Client) CreateTemplate(ctx context.Context, surveyID, name, category string) (Template, error) {
	body := map[string]any{"name": name, "category": category}
	var resp Template
	err := c.do(ctx, http.MethodPost, "templates?fromSurvey="+url.QueryEscape(surveyID), body, &resp)
	return resp, err
}

func (c *Client) UseTemplate(ctx context.Context, templateID string, overrides SurveyInput) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, "templates/"+url.PathEscape(templateID)+"/surveys", overrides, &resp)
	return resp, err
}

func (c *Client) GetTemplate(ctx context.Context, id string) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodGet, "templates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	} else if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		buf.WriteString("{}")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
