package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"surveydesk/internal/domain"
	"surveydesk/internal/report"
	"surveydesk/internal/storage"
	"surveydesk/internal/survey"
)

// Config for the HTTP API handler.
type Config struct {
	Service  *survey.Service
	BasePath string
	Auth     AuthConfig
	Log      *zap.Logger
	// Hub receives live updates; one is created when nil.
	Hub *Hub
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"survey 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *output[T] { return &output[T]{Body: v} }

// New returns an HTTP handler exposing the survey API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: service is required")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(log)
	}
	hub.Attach(cfg.Service)

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, log))
	hcfg := huma.DefaultConfig("Surveydesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	svc := cfg.Service
	registerDocs(router, basePath)
	registerHealth(group)
	registerStorage(group, svc)
	registerSurveys(group, svc)
	registerResponses(group, svc)
	registerTemplates(group, svc)
	registerCurrent(group, svc)
	router.Get(path.Join(basePath, "ws"), feedHandler(hub, svc))
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("listening", zap.String("addr", ln.Addr().String()))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var verrs survey.ValidationErrors
	if errors.As(err, &verrs) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), validationDetails(verrs))
	}
	var fe *survey.FormatError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusBadRequest, "invalid_format", err.Error(), nil)
	}
	var oe *storage.OperationError
	if errors.As(err, &oe) {
		return newAPIError(http.StatusServiceUnavailable, "storage_unavailable", err.Error(), map[string]any{"kind": oe.Kind, "op": oe.Op})
	}
	switch {
	case errors.Is(err, survey.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, survey.ErrVersionConflict):
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), nil)
	case errors.Is(err, survey.ErrResponseLimit):
		return newAPIError(http.StatusConflict, "response_limit", err.Error(), nil)
	case errors.Is(err, survey.ErrAlreadyAnswered):
		return newAPIError(http.StatusConflict, "already_answered", err.Error(), nil)
	case errors.Is(err, survey.ErrNotPublished):
		return newAPIError(http.StatusConflict, "not_published", err.Error(), nil)
	case errors.Is(err, storage.ErrUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "storage_unavailable", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks write operations as needing a bearer token.
func applyAuthSecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Put, item.Post, item.Delete, item.Patch} {
			if op != nil {
				op.Security = security
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Surveydesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Write operations need Authorization: Bearer &lt;token&gt; when the server has a JWT secret.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerStorage(api huma.API, svc *survey.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "storage-status",
		Method:      http.MethodGet,
		Path:        "/storage",
		Summary:     "Storage availability and statistics",
	}, func(ctx context.Context, _ *struct{}) (*output[StorageResponse], error) {
		stats, err := svc.StorageStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(StorageResponse{Availability: svc.CheckStorage(ctx), Stats: stats}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "storage-clear",
		Method:        http.MethodDelete,
		Path:          "/storage",
		Summary:       "Delete every survey, response and template",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := svc.ClearAll(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "storage-reset",
		Method:      http.MethodPost,
		Path:        "/storage/reset",
		Summary:     "Replace all data with the sample surveys",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Survey], error) {
		list, err := svc.ResetToSampleData(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSurveys(list)), nil
	})
}

type surveyPath struct {
	ID string `path:"id"`
}

func registerSurveys(api huma.API, svc *survey.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-survey",
		Method:        http.MethodPost,
		Path:          "/surveys",
		Summary:       "Create survey",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*output[domain.Survey], error) {
		var draft domain.SurveyDraft
		if err := decodeBody(input.RawBody, &draft, true); err != nil {
			return nil, err
		}
		if sub := subjectFromContext(ctx); sub != "" && draft.AuthorID == nil {
			draft.AuthorID = domain.Ptr(sub)
		}
		s, err := svc.Create(ctx, draft)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-surveys",
		Method:      http.MethodGet,
		Path:        "/surveys",
		Summary:     "List surveys",
	}, func(ctx context.Context, input *struct {
		Query     string `query:"q" doc:"Case-insensitive match on title, description and tags"`
		Author    string `query:"author"`
		Published bool   `query:"published"`
	}) (*output[[]domain.Survey], error) {
		list, err := svc.Search(ctx, input.Query)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]domain.Survey, 0, len(list))
		for _, s := range list {
			if input.Author != "" && s.AuthorID != input.Author {
				continue
			}
			if input.Published && !s.IsPublished {
				continue
			}
			out = append(out, s)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-survey",
		Method:      http.MethodGet,
		Path:        "/surveys/{id}",
		Summary:     "Get survey",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *surveyPath) (*output[domain.Survey], error) {
		s, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey "+input.ID+": not found", nil)
		}
		return respond(*s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-survey",
		Method:      http.MethodPatch,
		Path:        "/surveys/{id}",
		Summary:     "Update survey fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID              string `path:"id"`
		ExpectedVersion int    `query:"expectedVersion" minimum:"0" doc:"Reject the update unless the stored version matches"`
		RawBody         []byte `contentType:"application/json"`
	}) (*output[domain.Survey], error) {
		var draft domain.SurveyDraft
		if err := decodeBody(input.RawBody, &draft, false); err != nil {
			return nil, err
		}
		opts := survey.UpdateOptions{}
		if input.ExpectedVersion > 0 {
			opts.ExpectedVersion = domain.Ptr(input.ExpectedVersion)
		}
		s, err := svc.Update(ctx, input.ID, draft, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-survey",
		Method:        http.MethodDelete,
		Path:          "/surveys/{id}",
		Summary:       "Delete survey",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *surveyPath) (*struct{}, error) {
		if err := svc.Delete(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	surveyAction := func(id, route, summary string, status int, fn func(context.Context, string) (domain.Survey, error)) {
		huma.Register(api, huma.Operation{
			OperationID:   id,
			Method:        http.MethodPost,
			Path:          "/surveys/{id}/" + route,
			Summary:       summary,
			DefaultStatus: status,
			Errors:        []int{http.StatusNotFound},
		}, func(ctx context.Context, input *surveyPath) (*output[domain.Survey], error) {
			s, err := fn(ctx, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return respond(s), nil
		})
	}
	surveyAction("publish-survey", "publish", "Publish survey", http.StatusOK, svc.Publish)
	surveyAction("unpublish-survey", "unpublish", "Unpublish survey", http.StatusOK, svc.Unpublish)
	surveyAction("duplicate-survey", "duplicate", "Duplicate survey", http.StatusCreated, svc.Duplicate)

	huma.Register(api, huma.Operation{
		OperationID: "export-survey",
		Method:      http.MethodGet,
		Path:        "/surveys/{id}/export",
		Summary:     "Export survey as JSON",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *surveyPath) (*fileOutput, error) {
		doc, err := svc.Export(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{
			ContentType: "application/json",
			Disposition: attachment("survey-" + input.ID + ".json"),
			Body:        []byte(doc),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-survey",
		Method:        http.MethodPost,
		Path:          "/surveys/import",
		Summary:       "Import an exported survey as a new survey",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*output[domain.Survey], error) {
		s, err := svc.Import(ctx, input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "survey-analytics",
		Method:      http.MethodGet,
		Path:        "/surveys/{id}/analytics",
		Summary:     "Survey analytics",
	}, func(ctx context.Context, input *surveyPath) (*output[survey.Analytics], error) {
		a, err := svc.Analytics(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})
}

type fileOutput struct {
	ContentType string `header:"Content-Type"`
	Disposition string `header:"Content-Disposition"`
	Body        []byte
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func registerResponses(api huma.API, svc *survey.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-responses",
		Method:      http.MethodGet,
		Path:        "/surveys/{id}/responses",
		Summary:     "List survey responses",
	}, func(ctx context.Context, input *surveyPath) (*output[[]domain.SurveyResponse], error) {
		list, err := svc.Responses(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilResponses(list)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-response",
		Method:        http.MethodPost,
		Path:          "/surveys/{id}/responses",
		Summary:       "Submit a completed response",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		UserAgent string `header:"User-Agent"`
		Forwarded string `header:"X-Forwarded-For"`
		Referer   string `header:"Referer"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[domain.SurveyResponse], error) {
		var sub survey.Submission
		if err := decodeBody(input.RawBody, &sub, false); err != nil {
			return nil, err
		}
		if sub.RespondentID == "" {
			sub.RespondentID = subjectFromContext(ctx)
		}
		if sub.Metadata == nil {
			sub.Metadata = &domain.ResponseMetadata{
				UserAgent: input.UserAgent,
				IPAddress: strings.TrimSpace(strings.Split(input.Forwarded, ",")[0]),
				Referrer:  input.Referer,
			}
		}
		r, err := svc.Submit(ctx, input.ID, sub)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-responses",
		Method:      http.MethodGet,
		Path:        "/surveys/{id}/responses.xlsx",
		Summary:     "Download responses and analytics as a spreadsheet",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *surveyPath) (*fileOutput, error) {
		s, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey "+input.ID+": not found", nil)
		}
		list, err := svc.Responses(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := report.Write(&buf, *s, list); err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{
			ContentType: report.ContentType,
			Disposition: attachment("responses-" + input.ID + ".xlsx"),
			Body:        buf.Bytes(),
		}, nil
	})
}

type templatePath struct {
	ID string `path:"id"`
}

func registerTemplates(api huma.API, svc *survey.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Save a template, or capture one from a survey with fromSurvey",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		FromSurvey string `query:"fromSurvey"`
		RawBody    []byte `contentType:"application/json"`
	}) (*output[domain.SurveyTemplate], error) {
		if input.FromSurvey != "" {
			var req TemplateFromSurveyRequest
			if err := decodeBody(input.RawBody, &req, true); err != nil {
				return nil, err
			}
			t, err := svc.TemplateFromSurvey(ctx, input.FromSurvey, req.Name, req.Category)
			if err != nil {
				return nil, handleError(err)
			}
			return respond(t), nil
		}
		var tpl domain.SurveyTemplate
		if err := decodeBody(input.RawBody, &tpl, false); err != nil {
			return nil, err
		}
		t, err := svc.SaveTemplate(ctx, tpl)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List templates",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
		Public   bool   `query:"public"`
	}) (*output[[]domain.SurveyTemplate], error) {
		var (
			list []domain.SurveyTemplate
			err  error
		)
		if input.Category != "" {
			list, err = svc.TemplatesByCategory(ctx, input.Category)
		} else {
			list, err = svc.Templates(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]domain.SurveyTemplate, 0, len(list))
		for _, t := range list {
			if input.Public && !t.IsPublic {
				continue
			}
			out = append(out, t)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *templatePath) (*output[domain.SurveyTemplate], error) {
		t, err := svc.Template(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "template "+input.ID+": not found", nil)
		}
		return respond(*t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}",
		Summary:       "Delete template",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *templatePath) (*struct{}, error) {
		if err := svc.DeleteTemplate(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "use-template",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/surveys",
		Summary:       "Create a survey from a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody []byte `contentType:"application/json"`
	}) (*output[domain.Survey], error) {
		var overrides domain.SurveyDraft
		if err := decodeBody(input.RawBody, &overrides, true); err != nil {
			return nil, err
		}
		if sub := subjectFromContext(ctx); sub != "" && overrides.AuthorID == nil {
			overrides.AuthorID = domain.Ptr(sub)
		}
		s, err := svc.CreateFromTemplate(ctx, input.ID, overrides)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})
}

func registerCurrent(api huma.API, svc *survey.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-current",
		Method:      http.MethodGet,
		Path:        "/current",
		Summary:     "Survey currently being edited or taken",
	}, func(ctx context.Context, _ *struct{}) (*output[CurrentResponse], error) {
		return respond(CurrentResponse{Survey: svc.CurrentSurvey()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-current",
		Method:      http.MethodPut,
		Path:        "/current",
		Summary:     "Select the current survey",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*output[CurrentResponse], error) {
		var req SetCurrentRequest
		if err := decodeBody(input.RawBody, &req, false); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.ID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		s, err := svc.Get(ctx, req.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey "+req.ID+": not found", nil)
		}
		svc.SetCurrent(s)
		return respond(CurrentResponse{Survey: svc.CurrentSurvey()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-current",
		Method:        http.MethodDelete,
		Path:          "/current",
		Summary:       "Clear the current survey",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		svc.ClearCurrent()
		return &struct{}{}, nil
	})
}
