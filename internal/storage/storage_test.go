package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"surveydesk/internal/domain"
	"surveydesk/internal/storage"
	"surveydesk/internal/storage/kv"
)

var errDisk = errors.New("disk on fire")

// brokenStore reports ready but fails every call, or stays unready.
type brokenStore struct {
	state storage.State
}

func (b brokenStore) Put(context.Context, storage.Kind, string, []byte) error { return errDisk }
func (b brokenStore) Get(context.Context, storage.Kind, string) ([]byte, error) {
	return nil, errDisk
}
func (b brokenStore) List(context.Context, storage.Kind) ([][]byte, error) { return nil, errDisk }
func (b brokenStore) FindBy(context.Context, storage.Kind, string, any) ([][]byte, error) {
	return nil, errDisk
}
func (b brokenStore) Delete(context.Context, storage.Kind, string) error { return errDisk }
func (b brokenStore) Clear(context.Context) error                        { return errDisk }
func (b brokenStore) Count(context.Context, storage.Kind) (int, error)   { return 0, errDisk }
func (b brokenStore) Probe(context.Context) error                        { return errDisk }
func (b brokenStore) State() storage.State                               { return b.state }

// switchable wraps a working store whose readiness can be toggled.
type switchable struct {
	storage.DocumentStore
	mu    sync.Mutex
	ready bool
}

func (s *switchable) State() storage.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return storage.StateReady
	}
	return storage.StateOpening
}

func (s *switchable) setReady(v bool) {
	s.mu.Lock()
	s.ready = v
	s.mu.Unlock()
}

func newFlat() *storage.FlatStore {
	return storage.NewFlatStore(storage.NewNamespace(kv.NewMemory(), ""))
}

func TestNamespaceEnvelopeAndExpiry(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	ns := storage.NewNamespace(backend, "app_")
	now := time.UnixMilli(1_700_000_000_000)
	ns.Now = func() time.Time { return now }

	if err := ns.SetItem(ctx, "k", map[string]int{"a": 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, _ := backend.Get(ctx, "app_k")
	if !ok || raw != `{"key":"k","value":{"a":1},"timestamp":1700000000000}` {
		t.Fatalf("unexpected envelope %q", raw)
	}
	var got map[string]int
	if err := ns.GetItem(ctx, "k", &got); err != nil || got["a"] != 1 {
		t.Fatalf("get: %v %v", got, err)
	}

	if err := ns.SetItemTTL(ctx, "short", "x", time.Second); err != nil {
		t.Fatalf("set ttl: %v", err)
	}
	var s string
	if err := ns.GetItem(ctx, "short", &s); err != nil || s != "x" {
		t.Fatalf("fresh ttl item: %q %v", s, err)
	}
	now = now.Add(time.Second)
	if err := ns.GetItem(ctx, "short", &s); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expiry at boundary, got %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "app_short"); ok {
		t.Fatalf("expired entry not removed")
	}

	if err := ns.SetItemTTL(ctx, "zero", "x", 0); err != nil {
		t.Fatalf("set zero ttl: %v", err)
	}
	if err := ns.GetItem(ctx, "zero", &s); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("zero ttl should expire immediately, got %v", err)
	}
}

func TestNamespaceClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	_ = backend.Set(ctx, "foreign", "1", 0)
	ns := storage.NewNamespace(backend, "")
	_ = ns.SetItem(ctx, "a", 1)
	_ = ns.SetItem(ctx, "b", 2)
	keys, err := ns.Keys(ctx, "")
	if err != nil || len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("keys: %v %v", keys, err)
	}
	size, err := ns.Size(ctx)
	if err != nil || size == 0 {
		t.Fatalf("size: %d %v", size, err)
	}
	if err := ns.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "foreign"); !ok {
		t.Fatalf("clear removed a key outside the namespace")
	}
	if keys, _ := ns.Keys(ctx, ""); len(keys) != 0 {
		t.Fatalf("namespace not cleared: %v", keys)
	}
	if err := ns.Probe(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestFlatStoreFindBy(t *testing.T) {
	ctx := context.Background()
	g := storage.NewGateway(nil, newFlat(), zaptest.NewLogger(t))
	for _, r := range []domain.SurveyResponse{
		{ID: "r1", SurveyID: "s1", RespondentID: "u1"},
		{ID: "r2", SurveyID: "s1"},
		{ID: "r3", SurveyID: "s2", RespondentID: "u1"},
	} {
		if err := g.SaveResponse(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}
	bySurvey, err := g.GetResponsesBySurveyID(ctx, "s1")
	if err != nil || len(bySurvey) != 2 {
		t.Fatalf("by survey: %v %v", bySurvey, err)
	}
	byUser, err := g.GetResponsesByRespondent(ctx, "u1")
	if err != nil || len(byUser) != 2 {
		t.Fatalf("by respondent: %v %v", byUser, err)
	}

	_ = g.SaveSurvey(ctx, domain.Survey{ID: "s1", IsPublished: true})
	_ = g.SaveSurvey(ctx, domain.Survey{ID: "s2"})
	pub, err := g.GetPublishedSurveys(ctx)
	if err != nil || len(pub) != 1 || pub[0].ID != "s1" {
		t.Fatalf("published: %v %v", pub, err)
	}
}

func exerciseGateway(t *testing.T, g *storage.Gateway) {
	t.Helper()
	ctx := context.Background()
	s := domain.Survey{ID: "s1", Title: "Hello", Version: 1}
	if err := g.SaveSurvey(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := g.GetSurvey(ctx, "s1")
	if err != nil || got == nil || got.Title != "Hello" {
		t.Fatalf("get: %+v %v", got, err)
	}
	all, err := g.GetAllSurveys(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("all: %v %v", all, err)
	}
	if err := g.DeleteSurvey(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := g.DeleteSurvey(ctx, "s1"); err != nil {
		t.Fatalf("delete unknown should be a no-op: %v", err)
	}
	got, err = g.GetSurvey(ctx, "s1")
	if err != nil || got != nil {
		t.Fatalf("expected absent, got %+v %v", got, err)
	}
}

func TestGatewayFallsBackOnFailure(t *testing.T) {
	g := storage.NewGateway(brokenStore{state: storage.StateReady}, newFlat(), zaptest.NewLogger(t))
	exerciseGateway(t, g)
	st, err := g.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Fallbacks == 0 {
		t.Fatalf("fallbacks not counted")
	}
}

func TestGatewayUnreadyStructuredUsesFlat(t *testing.T) {
	g := storage.NewGateway(brokenStore{state: storage.StateOpening}, newFlat(), zaptest.NewLogger(t))
	exerciseGateway(t, g)
	st, _ := g.Stats(context.Background())
	if st.Fallbacks != 0 {
		t.Fatalf("unready store should be skipped silently, got %d fallbacks", st.Fallbacks)
	}
}

func TestGatewayBothFail(t *testing.T) {
	g := storage.NewGateway(brokenStore{state: storage.StateReady}, brokenStore{state: storage.StateReady}, zaptest.NewLogger(t))
	err := g.SaveSurvey(context.Background(), domain.Survey{ID: "s1"})
	var opErr *storage.OperationError
	if !errors.As(err, &opErr) || !errors.Is(err, errDisk) || opErr.Kind != storage.KindSurvey {
		t.Fatalf("expected operation error wrapping the structured failure, got %v", err)
	}
	a := g.IsStorageAvailable(context.Background())
	if a.Structured || a.Flat || !errors.Is(a.Err(), storage.ErrUnavailable) {
		t.Fatalf("unexpected availability %+v", a)
	}
}

func TestGatewayMergesDegradedWrites(t *testing.T) {
	ctx := context.Background()
	primary := &switchable{DocumentStore: newFlat()}
	g := storage.NewGateway(primary, newFlat(), zaptest.NewLogger(t))

	if err := g.SaveSurvey(ctx, domain.Survey{ID: "early", Title: "written while opening"}); err != nil {
		t.Fatal(err)
	}
	primary.setReady(true)
	if err := g.SaveSurvey(ctx, domain.Survey{ID: "late", Title: "written when ready"}); err != nil {
		t.Fatal(err)
	}
	if err := g.SaveSurvey(ctx, domain.Survey{ID: "early", Title: "rewritten"}); err != nil {
		t.Fatal(err)
	}

	all, err := g.GetAllSurveys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	titles := map[string]string{}
	for _, s := range all {
		titles[s.ID] = s.Title
	}
	if len(all) != 2 || titles["early"] != "rewritten" || titles["late"] != "written when ready" {
		t.Fatalf("unexpected merge %v", titles)
	}

	if err := g.DeleteSurvey(ctx, "early"); err != nil {
		t.Fatal(err)
	}
	if got, _ := g.GetSurvey(ctx, "early"); got != nil {
		t.Fatalf("delete must reach both backends, still found %+v", got)
	}

	a := g.IsStorageAvailable(ctx)
	if !a.Structured || !a.Flat || a.Err() != nil {
		t.Fatalf("unexpected availability %+v", a)
	}
	if err := g.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if all, _ := g.GetAllSurveys(ctx); len(all) != 0 {
		t.Fatalf("clear left %d surveys", len(all))
	}
}

func TestGatewayIndexedReadsAfterHandover(t *testing.T) {
	ctx := context.Background()
	primary := &switchable{DocumentStore: newFlat()}
	flat := newFlat()
	g := storage.NewGateway(primary, flat, zaptest.NewLogger(t))

	early := domain.Survey{ID: "s1", Title: "v1", IsPublished: true, AuthorID: "alice", Version: 1}
	if err := g.SaveSurvey(ctx, early); err != nil {
		t.Fatal(err)
	}
	primary.setReady(true)
	late := domain.Survey{ID: "s1", Title: "v2", AuthorID: "bob", Version: 2}
	if err := g.SaveSurvey(ctx, late); err != nil {
		t.Fatal(err)
	}
	if _, err := flat.Get(ctx, storage.KindSurvey, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("flat copy should be removed once stored structured, got %v", err)
	}

	pub, err := g.GetPublishedSurveys(ctx)
	if err != nil || len(pub) != 0 {
		t.Fatalf("published: %+v %v", pub, err)
	}
	byAlice, err := g.GetSurveysByAuthor(ctx, "alice")
	if err != nil || len(byAlice) != 0 {
		t.Fatalf("by alice: %+v %v", byAlice, err)
	}
	byBob, err := g.GetSurveysByAuthor(ctx, "bob")
	if err != nil || len(byBob) != 1 || byBob[0].Title != "v2" {
		t.Fatalf("by bob: %+v %v", byBob, err)
	}

	// A leftover flat copy must not match where the structured version does not.
	if err := g.SaveSurvey(ctx, domain.Survey{ID: "s2", Title: "current"}); err != nil {
		t.Fatal(err)
	}
	if err := flat.Put(ctx, storage.KindSurvey, "s2", []byte(`{"id":"s2","title":"stale","isPublished":true}`)); err != nil {
		t.Fatal(err)
	}
	pub, err = g.GetPublishedSurveys(ctx)
	if err != nil || len(pub) != 0 {
		t.Fatalf("stale flat copy leaked into published: %+v %v", pub, err)
	}

	primary.setReady(false)
	if got, err := g.GetSurvey(ctx, "s1"); err != nil || got != nil {
		t.Fatalf("old flat copy resurfaced: %+v %v", got, err)
	}
}

func TestFlatStoreCountSkipsExpired(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	flat := storage.NewFlatStore(storage.NewNamespace(backend, ""))
	if err := flat.Put(ctx, storage.KindSurvey, "live", []byte(`{"id":"live"}`)); err != nil {
		t.Fatal(err)
	}
	expired := `{"key":"survey_old","value":{"id":"old"},"timestamp":1,"expiresAt":2}`
	if err := backend.Set(ctx, "survey_old", expired, 0); err != nil {
		t.Fatal(err)
	}
	n, err := flat.Count(ctx, storage.KindSurvey)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
	docs, _ := flat.List(ctx, storage.KindSurvey)
	if len(docs) != n {
		t.Fatalf("count %d disagrees with list %d", n, len(docs))
	}
}
