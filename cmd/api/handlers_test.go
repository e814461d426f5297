package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LoomworksAI/apiloom/engine/embed"
	"github.com/LoomworksAI/apiloom/engine/graph"
	"github.com/LoomworksAI/apiloom/engine/orchestrate"
	"github.com/LoomworksAI/apiloom/engine/semantic"
	"github.com/LoomworksAI/apiloom/pkg/metrics"
)

type fakeGraphStore struct {
	saved *graph.SemanticGraph
}

func (f *fakeGraphStore) SaveGraph(_ context.Context, sg *graph.SemanticGraph) error {
	f.saved = sg
	return nil
}

type fakeVectorStore struct {
	upserted []semantic.VectorRecord
	results  []semantic.SearchResult
}

func (f *fakeVectorStore) EnsureCollection(context.Context, int) error { return nil }

func (f *fakeVectorStore) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	f.upserted = append(f.upserted, records...)
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]semantic.SearchResult, error) {
	return f.results, nil
}

func newTestServer(t *testing.T) (*server, *fakeGraphStore, *fakeVectorStore) {
	t.Helper()
	logger := slog.Default()

	d := orchestrate.NewDispatcher()
	for _, a := range []orchestrate.Action{
		orchestrate.ActionAuthenticate, orchestrate.ActionQuery,
		orchestrate.ActionTransform, orchestrate.ActionForward,
	} {
		d.Register(a, func(_ context.Context, apiID string, _ map[string]any) (map[string]any, error) {
			return map[string]any{"api_id": apiID}, nil
		})
	}
	engine := orchestrate.NewEngine(orchestrate.NewRegistry(), d, nil, logger)

	gs := &fakeGraphStore{}
	vs := &fakeVectorStore{}
	srv := newServer(
		engine,
		embed.NewGenerator(embed.NewSignatureProvider(0), 2, logger),
		graph.NewBuilder(),
		gs, vs,
		metrics.New(),
		logger,
	)
	return srv, gs, vs
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.routes(), "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleBuildGraph(t *testing.T) {
	srv, gs, vs := newTestServer(t)

	body := `[
		{"id": "a", "name": "OpenAI", "type": "ai", "capabilities": ["text-generation", "embeddings"]},
		{"id": "b", "name": "Claude", "type": "ai", "capabilities": ["text-generation", "classification"]}
	]`
	rec := doJSON(t, srv.routes(), "POST", "/api/graph", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var sg graph.SemanticGraph
	if err := json.Unmarshal(rec.Body.Bytes(), &sg); err != nil {
		t.Fatal(err)
	}
	if sg.NodeCount != 2 {
		t.Fatalf("expected 2 nodes, got %d", sg.NodeCount)
	}
	if gs.saved == nil {
		t.Fatal("graph was not persisted")
	}
	if len(vs.upserted) != 2 {
		t.Fatalf("expected 2 vector records, got %d", len(vs.upserted))
	}
}

func TestHandleBuildGraphRejectsInvalid(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.routes(), "POST", "/api/graph", `[{"id": "", "name": "X", "type": "ai", "capabilities": ["c"]}]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSimilarRequiresBuiltVector(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.routes(), "GET", "/api/graph/similar?id=ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSimilar(t *testing.T) {
	srv, _, vs := newTestServer(t)
	vs.results = []semantic.SearchResult{{DescriptorID: "b", Score: 0.9, Name: "B"}}

	doJSON(t, srv.routes(), "POST", "/api/graph",
		`[{"id": "a", "name": "A", "type": "ai", "capabilities": ["x"]}, {"id": "b", "name": "B", "type": "ai", "capabilities": ["x"]}]`)

	rec := doJSON(t, srv.routes(), "GET", "/api/graph/similar?id=a&top_k=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var results []semantic.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DescriptorID != "b" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestFlowLifecycleOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	routes := srv.routes()

	rec := doJSON(t, routes, "POST", "/api/flows", `{"name": "sync", "api_ids": ["a"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}
	var flow orchestrate.Flow
	json.Unmarshal(rec.Body.Bytes(), &flow)

	rec = doJSON(t, routes, "POST", "/api/flows/"+flow.ID+"/steps", `{"action": "query", "api_id": "a", "order": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add step: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, routes, "POST", "/api/flows/"+flow.ID+"/execute", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &flow)
	if flow.Status != orchestrate.StatusCompleted {
		t.Fatalf("expected completed, got %s", flow.Status)
	}

	rec = doJSON(t, routes, "DELETE", "/api/flows/"+flow.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, routes, "GET", "/api/flows/"+flow.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestHandleAddStepRejectsUnknownAction(t *testing.T) {
	srv, _, _ := newTestServer(t)
	routes := srv.routes()

	rec := doJSON(t, routes, "POST", "/api/flows", `{"name": "f"}`)
	var flow orchestrate.Flow
	json.Unmarshal(rec.Body.Bytes(), &flow)

	rec = doJSON(t, routes, "POST", "/api/flows/"+flow.ID+"/steps", `{"action": "detonate", "order": 1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSuggest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	doJSON(t, srv.routes(), "POST", "/api/graph",
		`[{"id": "gh", "name": "GitHub", "type": "version-control", "capabilities": ["repository-management"]}]`)

	rec := doJSON(t, srv.routes(), "POST", "/api/orchestrate/suggest", `{"requirement": "please store the summary"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var flow orchestrate.Flow
	json.Unmarshal(rec.Body.Bytes(), &flow)
	if len(flow.Steps) != 1 || flow.Steps[0].Action != orchestrate.ActionForward || flow.Steps[0].Order != 2 {
		t.Fatalf("unexpected suggested flow: %+v", flow)
	}
}

func TestHandleRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	doJSON(t, srv.routes(), "POST", "/api/graph", `[
		{"id": "a", "name": "A", "type": "ai", "capabilities": ["x"]},
		{"id": "bridge", "name": "Bridge", "type": "data", "capabilities": ["translation"]},
		{"id": "b", "name": "B", "type": "communication", "capabilities": ["y"]}
	]`)

	rec := doJSON(t, srv.routes(), "GET", "/api/orchestrate/route?source=a&target=b&capability=translation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Route []string `json:"route"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Route) != 3 || resp.Route[1] != "bridge" {
		t.Fatalf("unexpected route: %v", resp.Route)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("APILOOM_TEST_KEY", "set")
	if envOr("APILOOM_TEST_KEY", "fallback") != "set" {
		t.Fatal("expected env value")
	}
	if envOr("APILOOM_TEST_MISSING", "fallback") != "fallback" {
		t.Fatal("expected fallback")
	}
	t.Setenv("APILOOM_TEST_INT", "42")
	if envIntOr("APILOOM_TEST_INT", 1) != 42 {
		t.Fatal("expected parsed int")
	}
	if envIntOr("APILOOM_TEST_MISSING", 7) != 7 {
		t.Fatal("expected int fallback")
	}
}
