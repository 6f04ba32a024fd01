package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"surveydesk/internal/app"
	"surveydesk/internal/config"
	"surveydesk/internal/report"
	surveydesksdk "surveydesk/sdk/go"
)

type testServer struct {
	URL    string
	client *http.Client
	rt     *app.Runtime
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) SDK(token string) *surveydesksdk.Client {
	c := surveydesksdk.New(s.URL)
	c.BearerToken = token
	return c
}

func newTestServer(t *testing.T, secret string) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Flat = config.FlatMemory
	cfg.Seed.SampleData = false
	log := zaptest.NewLogger(t)
	rt, err := app.Open(context.Background(), t.TempDir(), cfg, app.Options{Log: log, WaitStructured: true})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	handler, err := New(Config{Service: rt.Service, BasePath: "/v0", Auth: AuthConfig{JWTSecret: secret}, Log: log})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		rt:     rt,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			rt.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", data, err)
	}
	return env.Error.Code
}

func TestSurveyLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK("")

	created, err := c.CreateSurvey(ctx, surveydesksdk.SurveyInput{Title: ptr("Test")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("unexpected created survey %+v", created)
	}
	updated, err := c.UpdateSurvey(ctx, created.ID, surveydesksdk.SurveyInput{Title: ptr("Test2")}, 0)
	if err != nil || updated.Version != 2 || updated.Title != "Test2" {
		t.Fatalf("update: %+v %v", updated, err)
	}
	dup, err := c.DuplicateSurvey(ctx, created.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Title != "Test2 (Copy)" || dup.ID == created.ID || dup.Version != 1 {
		t.Fatalf("unexpected duplicate %+v", dup)
	}

	list, err := c.ListSurveys(ctx, surveydesksdk.ListFilter{Query: "copy"})
	if err != nil || len(list) != 1 || list[0].ID != dup.ID {
		t.Fatalf("search: %v %v", list, err)
	}

	if _, err := c.UpdateSurvey(ctx, created.ID, surveydesksdk.SurveyInput{Title: ptr("stale")}, 1); surveydesksdk.StatusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409 on stale version, got %v", err)
	}

	if err := c.DeleteSurvey(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = c.DeleteSurvey(ctx, created.ID)
	if surveydesksdk.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := c.GetSurvey(ctx, created.ID); surveydesksdk.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestExportImport(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK("")

	orig, err := c.CreateSurvey(ctx, surveydesksdk.SurveyInput{
		Title: ptr("Exported"),
		Tags:  []string{"a"},
		Questions: []surveydesksdk.Question{
			{Type: "radio", Title: "Pick", Required: true, Options: []surveydesksdk.Option{{Label: "A", Value: "a"}}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := c.ExportSurvey(ctx, orig.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	imported, err := c.ImportSurvey(ctx, doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.ID == orig.ID || imported.Version != 1 || imported.Title != "Exported" || len(imported.Questions) != 1 {
		t.Fatalf("unexpected import %+v", imported)
	}
	if imported.Questions[0].ID != orig.Questions[0].ID {
		t.Fatalf("question ids should survive import")
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/surveys/import", "[1,2]", nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_format" {
		t.Fatalf("bad import status %d: %s", res.StatusCode, data)
	}
}

func TestResponsesAndAnalytics(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK("")

	s, err := c.CreateSurvey(ctx, surveydesksdk.SurveyInput{
		Title:       ptr("Poll"),
		IsPublished: ptr(true),
		Questions: []surveydesksdk.Question{
			{ID: "color", Type: "select", Title: "Color", Required: true, Options: []surveydesksdk.Option{
				{Label: "Red", Value: "red"}, {Label: "Blue", Value: "blue"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/surveys/"+s.ID+"/responses", map[string]any{
		"answers": map[string]any{},
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "validation_failed" {
		t.Fatalf("missing answer status %d: %s", res.StatusCode, data)
	}

	r, err := c.SubmitResponse(ctx, s.ID, surveydesksdk.Submission{RespondentID: "u1", Answers: map[string]any{"color": "red"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !r.IsComplete || len(r.Answers) != 1 || r.Metadata["userAgent"] == "" {
		t.Fatalf("unexpected response %+v", r)
	}
	if _, err := c.SubmitResponse(ctx, s.ID, surveydesksdk.Submission{RespondentID: "u1", Answers: map[string]any{"color": "blue"}}); surveydesksdk.StatusOf(err) != http.StatusConflict {
		t.Fatalf("repeat respondent: %v", err)
	}

	list, err := c.ListResponses(ctx, s.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list responses: %v %v", list, err)
	}
	a, err := c.Analytics(ctx, s.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.TotalResponses != 1 || a.CompletionRate != 100 || a.Questions[0].Options["red"] != 1 {
		t.Fatalf("unexpected analytics %+v", a)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/surveys/"+s.ID+"/responses.xlsx", nil, nil)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != report.ContentType {
		t.Fatalf("xlsx status %d type %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("xlsx body is not a zip archive")
	}
}

func TestTemplatesAndCurrent(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK("")

	s, err := c.CreateSurvey(ctx, surveydesksdk.SurveyInput{Title: ptr("Base"), Tags: []string{"t"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tpl, err := c.CreateTemplate(ctx, s.ID, "Starter", "general")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	fromTpl, err := c.UseTemplate(ctx, tpl.ID, surveydesksdk.SurveyInput{Title: ptr("From template")})
	if err != nil || fromTpl.Title != "From template" || fromTpl.Tags[0] != "t" {
		t.Fatalf("use template: %+v %v", fromTpl, err)
	}
	got, err := c.GetTemplate(ctx, tpl.ID)
	if err != nil || got.UsageCount != 1 {
		t.Fatalf("usage count: %+v %v", got, err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/current", map[string]string{"id": s.ID}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set current %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/current", nil, nil)
	var cur CurrentResponse
	if err := json.Unmarshal(data, &cur); err != nil || cur.Survey == nil || cur.Survey.ID != s.ID {
		t.Fatalf("get current %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/current", map[string]string{"id": "missing"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("set missing current: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/current", nil, nil)
	if res.StatusCode != http.StatusNoContent || srv.rt.Service.CurrentSurvey() != nil {
		t.Fatalf("clear current: %d", res.StatusCode)
	}
}

func TestStorageEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/storage/reset", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/storage", nil, nil)
	var status StorageResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode storage %d: %s", res.StatusCode, data)
	}
	if !status.Availability.Structured || !status.Availability.Flat || status.Stats.Counts["survey"] != 2 {
		t.Fatalf("unexpected storage status %+v", status)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/storage", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("clear %d", res.StatusCode)
	}
	list, err := srv.SDK("").ListSurveys(context.Background(), surveydesksdk.ListFilter{})
	if err != nil || len(list) != 0 {
		t.Fatalf("after clear: %v %v", list, err)
	}
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, secret)
	defer cleanup()
	ctx := context.Background()

	if _, err := srv.SDK("").CreateSurvey(ctx, surveydesksdk.SurveyInput{}); surveydesksdk.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous write: %v", err)
	}
	if _, err := srv.SDK("garbage").CreateSurvey(ctx, surveydesksdk.SurveyInput{}); surveydesksdk.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("bad token write: %v", err)
	}
	token, err := SignToken(secret, "ann", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s, err := srv.SDK(token).CreateSurvey(ctx, surveydesksdk.SurveyInput{Title: ptr("mine")})
	if err != nil {
		t.Fatalf("authorized create: %v", err)
	}
	if s.AuthorID != "ann" {
		t.Fatalf("authorId %q", s.AuthorID)
	}
	list, err := srv.SDK("").ListSurveys(ctx, surveydesksdk.ListFilter{Author: "ann"})
	if err != nil || len(list) != 1 {
		t.Fatalf("anonymous read: %v %v", list, err)
	}
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health %d", res.StatusCode)
	}
}

func TestLiveFeed(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v0/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first FeedMessage
	if err := conn.ReadJSON(&first); err != nil || first.Type != MessageSurveys {
		t.Fatalf("initial frame %+v %v", first, err)
	}

	if _, err := srv.SDK("").CreateSurvey(context.Background(), surveydesksdk.SurveyInput{Title: ptr("live")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != MessageNotice {
			continue
		}
		var n struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			t.Fatalf("notice: %v", err)
		}
		if n.Type != "success" || n.Message != "Survey saved successfully!" {
			t.Fatalf("unexpected notice %+v", n)
		}
		return
	}
}

func TestSlowFeedClientDoesNotStallBroadcast(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()

	hub := NewHub(zaptest.NewLogger(t))
	ws := httptest.NewServer(feedHandler(hub, srv.rt.Service))
	defer ws.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The client never reads, so its queue and socket buffers fill up.
	payload := strings.Repeat("x", 64<<10)
	start := time.Now()
	for i := 0; i < 400; i++ {
		hub.Broadcast(FeedMessage{Type: MessageNotice, Data: payload})
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("broadcast blocked for %v", elapsed)
	}
	if hub.Len() != 0 {
		t.Fatalf("slow client still registered")
	}
}

func TestHubDetachRemovesSink(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	svc := srv.rt.Service

	before := svc.Events.Len()
	hub := NewHub(zaptest.NewLogger(t))
	detach := hub.Attach(svc)
	if svc.Events.Len() != before+1 {
		t.Fatalf("sink not registered: %d", svc.Events.Len())
	}
	detach()
	if svc.Events.Len() != before {
		t.Fatalf("sink still registered after detach: %d", svc.Events.Len())
	}
}

func TestMessageFilter(t *testing.T) {
	all := newMessageFilter([]string{""})
	if !all.match(MessageNotice) {
		t.Fatalf("empty filter should match everything")
	}
	some := newMessageFilter([]string{"notice", " current "})
	if !some.match(MessageCurrent) || some.match(MessageSurveys) {
		t.Fatalf("filter mismatch")
	}
}

func ptr[T any](v T) *T { return &v }
