package survey

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"surveydesk/internal/domain"
	"surveydesk/internal/events"
	"surveydesk/internal/state"
	"surveydesk/internal/storage"
)

const (
	defaultTitle = "Untitled Survey"
	copySuffix   = " (Copy)"

	msgNetworkError = "Network error. Please check your connection and try again."
)

// Store is the persistence the service needs; storage.Gateway satisfies it.
type Store interface {
	SaveSurvey(ctx context.Context, s domain.Survey) error
	GetSurvey(ctx context.Context, id string) (*domain.Survey, error)
	GetAllSurveys(ctx context.Context) ([]domain.Survey, error)
	GetSurveysByAuthor(ctx context.Context, authorID string) ([]domain.Survey, error)
	GetPublishedSurveys(ctx context.Context) ([]domain.Survey, error)
	DeleteSurvey(ctx context.Context, id string) error

	SaveResponse(ctx context.Context, r domain.SurveyResponse) error
	GetResponse(ctx context.Context, id string) (*domain.SurveyResponse, error)
	GetResponsesBySurveyID(ctx context.Context, surveyID string) ([]domain.SurveyResponse, error)
	GetResponsesByRespondent(ctx context.Context, respondentID string) ([]domain.SurveyResponse, error)
	DeleteResponse(ctx context.Context, id string) error

	SaveTemplate(ctx context.Context, t domain.SurveyTemplate) error
	GetTemplate(ctx context.Context, id string) (*domain.SurveyTemplate, error)
	GetAllTemplates(ctx context.Context) ([]domain.SurveyTemplate, error)
	GetTemplatesByCategory(ctx context.Context, category string) ([]domain.SurveyTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error

	IsStorageAvailable(ctx context.Context) storage.Availability
	Stats(ctx context.Context) (storage.Stats, error)
	ClearAll(ctx context.Context) error
}

type Options struct {
	Log *zap.Logger
	// Sinks receive success and failure notices for write operations.
	Sinks []events.Sink
	// SeedSampleData writes the sample surveys when Load finds none.
	SeedSampleData bool
}

// Service is the survey repository. It is safe for concurrent use.
type Service struct {
	Store  Store
	Events *events.Writer
	Log    *zap.Logger
	Now    func() time.Time
	NewID  func() string

	seed    bool
	surveys *state.Cell[[]domain.Survey]
	current *state.Cell[*domain.Survey]
	locks   keyedMutex
}

func New(store Store, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("survey")
	sinks := append([]events.Sink{events.LogSink{Log: log}}, opts.Sinks...)
	return &Service{
		Store:   store,
		Events:  events.NewWriter(sinks...),
		Log:     log,
		Now:     time.Now,
		NewID:   uuid.NewString,
		seed:    opts.SeedSampleData,
		surveys: state.NewCell([]domain.Survey{}),
		current: state.NewCell[*domain.Survey](nil),
		locks:   keyedMutex{locks: map[string]*lockEntry{}},
	}
}

// now is UTC with millisecond precision, the resolution timestamps are
// exchanged at.
func (s *Service) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Truncate(time.Millisecond)
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// AddSink registers another notice receiver until remove is called.
func (s *Service) AddSink(sink events.Sink) (remove func()) {
	return s.Events.Add(sink)
}

// Surveys is the cell holding the last known survey collection.
func (s *Service) Surveys() *state.Cell[[]domain.Survey] { return s.surveys }

// Current is the cell holding the survey being edited or taken, if any.
func (s *Service) Current() *state.Cell[*domain.Survey] { return s.current }

func (s *Service) SetCurrent(sv *domain.Survey) {
	if sv != nil {
		c := *sv
		sv = &c
	}
	s.current.Set(sv)
}

func (s *Service) CurrentSurvey() *domain.Survey { return s.current.Get() }

func (s *Service) ClearCurrent() { s.current.Set(nil) }

func (s *Service) succeeded(ctx context.Context, op, kind, id, msg string) {
	s.Events.Append(ctx, events.LevelSuccess, op, kind, id, msg)
}

func (s *Service) failed(ctx context.Context, op, kind, id string, err error) error {
	s.Log.Debug("write failed", zap.String("op", op), zap.Error(err))
	s.Events.Append(ctx, events.LevelError, op, kind, id, msgNetworkError)
	return err
}

// Create stores a new survey built from the draft over the defaults. Any id,
// version or timestamps in the draft are replaced.
func (s *Service) Create(ctx context.Context, draft domain.SurveyDraft) (domain.Survey, error) {
	draft.ID, draft.Version, draft.CreatedAt, draft.UpdatedAt = nil, nil, nil, nil
	sv := draft.ApplyTo(domain.Survey{
		Title:     defaultTitle,
		Settings:  domain.DefaultSettings(),
		Questions: []domain.Question{},
		Tags:      []string{},
	})
	if strings.TrimSpace(sv.Title) == "" {
		sv.Title = defaultTitle
	}
	now := s.now()
	sv.ID = s.newID()
	sv.CreatedAt = now
	sv.UpdatedAt = now
	sv.Version = 1
	sv.Responses = nil
	s.fillIDs(&sv)
	if err := sv.Check(); err != nil {
		return domain.Survey{}, err
	}
	if err := s.Store.SaveSurvey(ctx, sv); err != nil {
		return domain.Survey{}, s.failed(ctx, "create", "survey", sv.ID, err)
	}
	s.surveys.Update(func(list []domain.Survey) []domain.Survey {
		return appendSurvey(list, sv)
	})
	s.succeeded(ctx, "create", "survey", sv.ID, "Survey saved successfully!")
	return sv, nil
}

type UpdateOptions struct {
	// ExpectedVersion rejects the update with ErrVersionConflict when the
	// stored version differs.
	ExpectedVersion *int
}

// Update merges the supplied draft fields into the stored survey. Updates of
// the same id are serialized within the process.
func (s *Service) Update(ctx context.Context, id string, draft domain.SurveyDraft, opts UpdateOptions) (domain.Survey, error) {
	unlock := s.locks.Lock("survey:" + id)
	defer unlock()

	cur, err := s.Store.GetSurvey(ctx, id)
	if err != nil {
		return domain.Survey{}, err
	}
	if cur == nil {
		return domain.Survey{}, notFound("survey", id)
	}
	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != cur.Version {
		return domain.Survey{}, ErrVersionConflict
	}
	draft.ID, draft.Version, draft.CreatedAt, draft.UpdatedAt = nil, nil, nil, nil
	next := draft.ApplyTo(*cur)
	now := s.now()
	if now.Before(cur.UpdatedAt) {
		now = cur.UpdatedAt
	}
	next.UpdatedAt = now
	next.Version = cur.Version + 1
	s.fillIDs(&next)
	if err := next.Check(); err != nil {
		return domain.Survey{}, err
	}
	if err := s.Store.SaveSurvey(ctx, next); err != nil {
		return domain.Survey{}, s.failed(ctx, "update", "survey", id, err)
	}
	s.surveys.Update(func(list []domain.Survey) []domain.Survey {
		return appendSurvey(list, next)
	})
	if c := s.current.Get(); c != nil && c.ID == id {
		s.SetCurrent(&next)
	}
	s.succeeded(ctx, "update", "survey", id, "Survey updated successfully!")
	return next, nil
}

// Delete removes a survey. Its responses are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock("survey:" + id)
	defer unlock()

	cur, err := s.Store.GetSurvey(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return notFound("survey", id)
	}
	if err := s.Store.DeleteSurvey(ctx, id); err != nil {
		return s.failed(ctx, "delete", "survey", id, err)
	}
	s.surveys.Update(func(list []domain.Survey) []domain.Survey {
		out := make([]domain.Survey, 0, len(list))
		for _, sv := range list {
			if sv.ID != id {
				out = append(out, sv)
			}
		}
		return out
	})
	if c := s.current.Get(); c != nil && c.ID == id {
		s.ClearCurrent()
	}
	s.succeeded(ctx, "delete", "survey", id, "Survey deleted successfully!")
	return nil
}

// Get returns nil when the survey does not exist.
func (s *Service) Get(ctx context.Context, id string) (*domain.Survey, error) {
	return s.Store.GetSurvey(ctx, id)
}

// List reads every survey and refreshes the surveys cell.
func (s *Service) List(ctx context.Context) ([]domain.Survey, error) {
	list, err := s.Store.GetAllSurveys(ctx)
	if err != nil {
		return nil, err
	}
	s.surveys.Set(list)
	return append([]domain.Survey(nil), list...), nil
}

func (s *Service) Publish(ctx context.Context, id string) (domain.Survey, error) {
	return s.Update(ctx, id, domain.SurveyDraft{IsPublished: domain.Ptr(true)}, UpdateOptions{})
}

func (s *Service) Unpublish(ctx context.Context, id string) (domain.Survey, error) {
	return s.Update(ctx, id, domain.SurveyDraft{IsPublished: domain.Ptr(false)}, UpdateOptions{})
}

// Duplicate creates an unpublished copy titled "<title> (Copy)".
func (s *Service) Duplicate(ctx context.Context, id string) (domain.Survey, error) {
	src, err := s.Store.GetSurvey(ctx, id)
	if err != nil {
		return domain.Survey{}, err
	}
	if src == nil {
		return domain.Survey{}, notFound("survey", id)
	}
	d := domain.DraftOf(*src)
	d.Title = domain.Ptr(src.Title + copySuffix)
	d.IsPublished = domain.Ptr(false)
	return s.Create(ctx, d)
}

// Search matches query case-insensitively against title, description and
// tags. An empty query returns every survey.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Survey, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list, nil
	}
	var out []domain.Survey
	for _, sv := range list {
		if matches(sv, q) {
			out = append(out, sv)
		}
	}
	return out, nil
}

func matches(sv domain.Survey, q string) bool {
	if strings.Contains(strings.ToLower(sv.Title), q) || strings.Contains(strings.ToLower(sv.Description), q) {
		return true
	}
	for _, tag := range sv.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *Service) ByAuthor(ctx context.Context, authorID string) ([]domain.Survey, error) {
	return s.Store.GetSurveysByAuthor(ctx, authorID)
}

func (s *Service) Published(ctx context.Context) ([]domain.Survey, error) {
	return s.Store.GetPublishedSurveys(ctx)
}

// fillIDs gives blank questions and options an id.
func (s *Service) fillIDs(sv *domain.Survey) {
	for i := range sv.Questions {
		q := &sv.Questions[i]
		if strings.TrimSpace(q.ID) == "" {
			q.ID = s.newID()
		}
		for j := range q.Options {
			if strings.TrimSpace(q.Options[j].ID) == "" {
				q.Options[j].ID = s.newID()
			}
		}
	}
}

// appendSurvey replaces the survey with the same id or appends it, always
// returning a fresh slice.
func appendSurvey(list []domain.Survey, sv domain.Survey) []domain.Survey {
	out := make([]domain.Survey, 0, len(list)+1)
	replaced := false
	for _, cur := range list {
		if cur.ID == sv.ID {
			out = append(out, sv)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, sv)
	}
	return out
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
