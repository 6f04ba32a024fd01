package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"surveydesk/internal/domain"
)

// Gateway routes every entity operation to the structured store when it is
// ready and to the flat store otherwise or on failure. Callers only see an
// error when both backends failed.
type Gateway struct {
	structured DocumentStore
	flat       DocumentStore
	log        *zap.Logger
	fallbacks  atomic.Int64
}

// NewGateway builds a gateway. structured may be nil to run flat-only.
func NewGateway(structured, flat DocumentStore, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{structured: structured, flat: flat, log: log.Named("storage")}
}

func (g *Gateway) structuredReady() bool {
	return g.structured != nil && g.structured.State() == StateReady
}

// StructuredState reports the structured store state, uninitialized when
// there is none.
func (g *Gateway) StructuredState() State {
	if g.structured == nil {
		return StateUninitialized
	}
	return g.structured.State()
}

func (g *Gateway) fellBack(op string, kind Kind, id string, err error) {
	g.fallbacks.Add(1)
	g.log.Warn("structured store failed, using flat store",
		zap.String("op", op), zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
}

func (g *Gateway) put(ctx context.Context, op string, kind Kind, id string, doc []byte) error {
	primaryErr := ErrUnavailable
	if g.structuredReady() {
		err := g.structured.Put(ctx, kind, id, doc)
		if err == nil {
			g.dropFlatCopy(ctx, kind, id)
			return nil
		}
		primaryErr = err
		g.fellBack(op, kind, id, err)
	}
	if err := g.flat.Put(ctx, kind, id, doc); err != nil {
		return &OperationError{Op: op, Kind: kind, ID: id, Err: primaryErr, Fallback: err}
	}
	return nil
}

// dropFlatCopy removes a copy written while the structured store was
// unavailable, so it cannot resurface in merged reads.
func (g *Gateway) dropFlatCopy(ctx context.Context, kind Kind, id string) {
	if err := g.flat.Delete(ctx, kind, id); err != nil && !errors.Is(err, ErrNotFound) {
		g.log.Warn("flat copy not removed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
}

func (g *Gateway) get(ctx context.Context, op string, kind Kind, id string) ([]byte, error) {
	primaryErr := ErrUnavailable
	if g.structuredReady() {
		doc, err := g.structured.Get(ctx, kind, id)
		switch {
		case err == nil:
			return doc, nil
		case errors.Is(err, ErrNotFound):
			primaryErr = err
		default:
			primaryErr = err
			g.fellBack(op, kind, id, err)
		}
	}
	doc, err := g.flat.Get(ctx, kind, id)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	}
	return nil, &OperationError{Op: op, Kind: kind, ID: id, Err: primaryErr, Fallback: err}
}

// collect returns the union of both backends, structured documents first and
// winning on id collisions. When stored is set, flat documents are also
// dropped if the structured store holds their id outside the fetched set.
func (g *Gateway) collect(ctx context.Context, op string, kind Kind, fetch func(DocumentStore) ([][]byte, error), stored func(id string) bool) ([][]byte, error) {
	var (
		primary    [][]byte
		primaryOK  bool
		primaryErr = ErrUnavailable
	)
	if g.structuredReady() {
		docs, err := fetch(g.structured)
		if err == nil {
			primary, primaryOK = docs, true
		} else {
			primaryErr = err
			g.fellBack(op, kind, "", err)
		}
	}
	flat, err := fetch(g.flat)
	if err != nil {
		if primaryOK {
			g.log.Warn("flat store failed during merge", zap.String("op", op), zap.String("kind", string(kind)), zap.Error(err))
			return primary, nil
		}
		return nil, &OperationError{Op: op, Kind: kind, Err: primaryErr, Fallback: err}
	}
	if !primaryOK {
		return flat, nil
	}
	seen := make(map[string]bool, len(primary))
	out := make([][]byte, 0, len(primary)+len(flat))
	for _, d := range primary {
		seen[idOf(d)] = true
		out = append(out, d)
	}
	for _, d := range flat {
		id := idOf(d)
		if seen[id] || (stored != nil && stored(id)) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// inStructured reports whether the structured store holds id. Lookup errors
// count as absent so the flat document is still served.
func (g *Gateway) inStructured(ctx context.Context, kind Kind) func(id string) bool {
	return func(id string) bool {
		if id == "" {
			return false
		}
		_, err := g.structured.Get(ctx, kind, id)
		return err == nil
	}
}

func (g *Gateway) remove(ctx context.Context, op string, kind Kind, id string) error {
	primaryErr := ErrUnavailable
	primaryOK := false
	if g.structuredReady() {
		if err := g.structured.Delete(ctx, kind, id); err != nil {
			primaryErr = err
			g.fellBack(op, kind, id, err)
		} else {
			primaryOK = true
		}
	}
	if err := g.flat.Delete(ctx, kind, id); err != nil {
		if primaryOK {
			g.log.Warn("flat store delete failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
			return nil
		}
		return &OperationError{Op: op, Kind: kind, ID: id, Err: primaryErr, Fallback: err}
	}
	return nil
}

func save[T Entity](ctx context.Context, g *Gateway, op string, kind Kind, v T) error {
	id := v.PrimaryKey()
	if id == "" {
		return fmt.Errorf("%s: missing %s id", op, kind)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	return g.put(ctx, op, kind, id, doc)
}

func load[T any](ctx context.Context, g *Gateway, op string, kind Kind, id string) (*T, error) {
	doc, err := g.get(ctx, op, kind, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", op, id, err)
	}
	return &v, nil
}

func loadAll[T any](ctx context.Context, g *Gateway, op string, kind Kind) ([]T, error) {
	docs, err := g.collect(ctx, op, kind, func(s DocumentStore) ([][]byte, error) {
		return s.List(ctx, kind)
	}, nil)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[T](docs)
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return out, nil
}

func find[T any](ctx context.Context, g *Gateway, op string, kind Kind, field string, value any) ([]T, error) {
	if !Indexed(kind, field) {
		return nil, fmt.Errorf("%s: %s is not indexed on %s", op, field, kind)
	}
	docs, err := g.collect(ctx, op, kind, func(s DocumentStore) ([][]byte, error) {
		return s.FindBy(ctx, kind, field, value)
	}, g.inStructured(ctx, kind))
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[T](docs)
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return out, nil
}

func (g *Gateway) SaveSurvey(ctx context.Context, s domain.Survey) error {
	return save(ctx, g, "saveSurvey", KindSurvey, s)
}

// GetSurvey returns nil when no survey has the id.
func (g *Gateway) GetSurvey(ctx context.Context, id string) (*domain.Survey, error) {
	return load[domain.Survey](ctx, g, "getSurvey", KindSurvey, id)
}

func (g *Gateway) GetAllSurveys(ctx context.Context) ([]domain.Survey, error) {
	return loadAll[domain.Survey](ctx, g, "getAllSurveys", KindSurvey)
}

func (g *Gateway) GetSurveysByAuthor(ctx context.Context, authorID string) ([]domain.Survey, error) {
	return find[domain.Survey](ctx, g, "getSurveysByAuthor", KindSurvey, "authorId", authorID)
}

func (g *Gateway) GetPublishedSurveys(ctx context.Context) ([]domain.Survey, error) {
	return find[domain.Survey](ctx, g, "getPublishedSurveys", KindSurvey, "isPublished", true)
}

// DeleteSurvey is a no-op for unknown ids.
func (g *Gateway) DeleteSurvey(ctx context.Context, id string) error {
	return g.remove(ctx, "deleteSurvey", KindSurvey, id)
}

func (g *Gateway) SaveResponse(ctx context.Context, r domain.SurveyResponse) error {
	return save(ctx, g, "saveResponse", KindResponse, r)
}

func (g *Gateway) GetResponse(ctx context.Context, id string) (*domain.SurveyResponse, error) {
	return load[domain.SurveyResponse](ctx, g, "getResponse", KindResponse, id)
}

func (g *Gateway) GetAllResponses(ctx context.Context) ([]domain.SurveyResponse, error) {
	return loadAll[domain.SurveyResponse](ctx, g, "getAllResponses", KindResponse)
}

func (g *Gateway) GetResponsesBySurveyID(ctx context.Context, surveyID string) ([]domain.SurveyResponse, error) {
	return find[domain.SurveyResponse](ctx, g, "getResponsesBySurveyId", KindResponse, "surveyId", surveyID)
}

func (g *Gateway) GetResponsesByRespondent(ctx context.Context, respondentID string) ([]domain.SurveyResponse, error) {
	return find[domain.SurveyResponse](ctx, g, "getResponsesByRespondent", KindResponse, "respondentId", respondentID)
}

func (g *Gateway) DeleteResponse(ctx context.Context, id string) error {
	return g.remove(ctx, "deleteResponse", KindResponse, id)
}

func (g *Gateway) SaveTemplate(ctx context.Context, t domain.SurveyTemplate) error {
	return save(ctx, g, "saveTemplate", KindTemplate, t)
}

func (g *Gateway) GetTemplate(ctx context.Context, id string) (*domain.SurveyTemplate, error) {
	return load[domain.SurveyTemplate](ctx, g, "getTemplate", KindTemplate, id)
}

func (g *Gateway) GetAllTemplates(ctx context.Context) ([]domain.SurveyTemplate, error) {
	return loadAll[domain.SurveyTemplate](ctx, g, "getAllTemplates", KindTemplate)
}

func (g *Gateway) GetTemplatesByCategory(ctx context.Context, category string) ([]domain.SurveyTemplate, error) {
	return find[domain.SurveyTemplate](ctx, g, "getTemplatesByCategory", KindTemplate, "category", category)
}

func (g *Gateway) GetPublicTemplates(ctx context.Context) ([]domain.SurveyTemplate, error) {
	return find[domain.SurveyTemplate](ctx, g, "getPublicTemplates", KindTemplate, "isPublic", true)
}

func (g *Gateway) DeleteTemplate(ctx context.Context, id string) error {
	return g.remove(ctx, "deleteTemplate", KindTemplate, id)
}

type Availability struct {
	Structured      bool   `json:"structured"`
	Flat            bool   `json:"flat"`
	StructuredState State  `json:"structuredState"`
	StructuredError string `json:"structuredError,omitempty"`
	FlatError       string `json:"flatError,omitempty"`
}

// Err is ErrUnavailable when neither backend can be used.
func (a Availability) Err() error {
	if !a.Structured && !a.Flat {
		return ErrUnavailable
	}
	return nil
}

// IsStorageAvailable probes each backend with a throwaway write/delete.
func (g *Gateway) IsStorageAvailable(ctx context.Context) Availability {
	a := Availability{StructuredState: g.StructuredState()}
	if g.structuredReady() {
		if err := g.structured.Probe(ctx); err != nil {
			a.StructuredError = err.Error()
		} else {
			a.Structured = true
		}
	} else {
		a.StructuredError = ErrUnavailable.Error()
	}
	if err := g.flat.Probe(ctx); err != nil {
		a.FlatError = err.Error()
	} else {
		a.Flat = true
	}
	return a
}

type Stats struct {
	StructuredState State        `json:"structuredState"`
	FlatBytes       int64        `json:"flatBytes"`
	Counts          map[Kind]int `json:"counts"`
	Fallbacks       int64        `json:"fallbacks"`
}

type sizer interface {
	Size(ctx context.Context) (int64, error)
}

// Stats reports merged entity counts, flat store size and how many
// operations fell back since startup.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	st := Stats{StructuredState: g.StructuredState(), Counts: map[Kind]int{}, Fallbacks: g.fallbacks.Load()}
	for _, kind := range Kinds {
		docs, err := g.collect(ctx, "stats", kind, func(s DocumentStore) ([][]byte, error) {
			return s.List(ctx, kind)
		}, nil)
		if err != nil {
			return Stats{}, err
		}
		st.Counts[kind] = len(docs)
	}
	if s, ok := g.flat.(sizer); ok {
		n, err := s.Size(ctx)
		if err != nil {
			return Stats{}, err
		}
		st.FlatBytes = n
	}
	return st, nil
}

// ClearAll wipes every entity from both backends. Unlike other operations it
// fails when any reachable backend could not be cleared.
func (g *Gateway) ClearAll(ctx context.Context) error {
	var errs []error
	if g.structuredReady() {
		if err := g.structured.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear structured store: %w", err))
		}
	}
	if err := g.flat.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear flat store: %w", err))
	}
	return errors.Join(errs...)
}
