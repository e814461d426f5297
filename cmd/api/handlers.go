package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LoomworksAI/apiloom/engine/domain"
	"github.com/LoomworksAI/apiloom/engine/embed"
	"github.com/LoomworksAI/apiloom/engine/graph"
	"github.com/LoomworksAI/apiloom/engine/orchestrate"
	"github.com/LoomworksAI/apiloom/engine/semantic"
	"github.com/LoomworksAI/apiloom/pkg/metrics"
)

// graphPersister is what the graph build handler needs from Neo4j.
type graphPersister interface {
	SaveGraph(ctx context.Context, sg *graph.SemanticGraph) error
}

// vectorSearcher is what the similarity handler needs from Qdrant.
type vectorSearcher interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

type server struct {
	engine      *orchestrate.Engine
	generator   *embed.Generator
	builder     *graph.Builder
	graphStore  graphPersister
	vectorStore vectorSearcher
	reg         *metrics.Registry
	logger      *slog.Logger
}

func newServer(engine *orchestrate.Engine, generator *embed.Generator, builder *graph.Builder,
	graphStore graphPersister, vectorStore vectorSearcher, reg *metrics.Registry, logger *slog.Logger) *server {
	return &server{
		engine:      engine,
		generator:   generator,
		builder:     builder,
		graphStore:  graphStore,
		vectorStore: vectorStore,
		reg:         reg,
		logger:      logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/graph", s.handleBuildGraph)
	mux.HandleFunc("GET /api/graph/similar", s.handleSimilar)
	mux.HandleFunc("POST /api/flows", s.handleCreateFlow)
	mux.HandleFunc("GET /api/flows", s.handleListFlows)
	mux.HandleFunc("GET /api/flows/{id}", s.handleGetFlow)
	mux.HandleFunc("DELETE /api/flows/{id}", s.handleDeleteFlow)
	mux.HandleFunc("POST /api/flows/{id}/steps", s.handleAddStep)
	mux.HandleFunc("POST /api/flows/{id}/execute", s.handleExecuteFlow)
	mux.HandleFunc("POST /api/orchestrate/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/orchestrate/route", s.handleRoute)
	mux.Handle("GET /metrics", s.reg.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBuildGraph embeds the posted descriptors, builds the semantic
// graph, persists it, and returns the graph document. Persistence failures
// are logged but do not fail the response: the document is the contract.
func (s *server) handleBuildGraph(w http.ResponseWriter, r *http.Request) {
	var descriptors []domain.ServiceDescriptor
	if err := json.NewDecoder(r.Body).Decode(&descriptors); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateBatch(descriptors); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vectors := s.generator.Generate(r.Context(), descriptors)
	sg, err := s.builder.Build(vectors)
	if err != nil {
		s.logger.Error("graph build failed", "err", err)
		writeError(w, http.StatusInternalServerError, "graph build failed")
		return
	}

	if err := s.graphStore.SaveGraph(r.Context(), sg); err != nil {
		s.logger.Error("graph persist failed", "err", err)
	}
	if err := s.upsertVectors(r.Context(), vectors); err != nil {
		s.logger.Error("vector persist failed", "err", err)
	}

	s.engine.UseDescriptors(descriptors)
	s.reg.Counter("apiloom_graph_builds_total", "Graphs built over the API.").Inc()
	writeJSON(w, http.StatusOK, sg)
}

func (s *server) upsertVectors(ctx context.Context, vectors []embed.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := s.vectorStore.EnsureCollection(ctx, len(vectors[0].Values)); err != nil {
		return err
	}
	return s.vectorStore.Upsert(ctx, semantic.RecordsFromVectors(vectors))
}

// handleSimilar searches the vector store for descriptors near the given
// one. The query vector must already be cached from a previous build.
func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	topK := 5
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	vec, ok := s.generator.Cached(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no vector for descriptor, build the graph first")
		return
	}

	results, err := s.vectorStore.Search(r.Context(), vec.Values, topK)
	if err != nil {
		s.logger.Error("vector search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type createFlowRequest struct {
	Name   string   `json:"name"`
	APIIDs []string `json:"api_ids"`
}

func (s *server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	flow := s.engine.CreateFlow(r.Context(), req.Name, req.APIIDs)
	writeJSON(w, http.StatusCreated, flow)
}

func (s *server) handleListFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Flows())
}

func (s *server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.engine.Flow(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	s.engine.DeleteFlow(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	var step orchestrate.Step
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !step.Action.Valid() {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err := s.engine.AddStep(r.PathValue("id"), step); err != nil {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	flow, err := s.engine.Flow(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *server) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.engine.ExecuteFlow(r.Context(), id)

	flow, getErr := s.engine.Flow(id)
	switch {
	case errors.Is(err, orchestrate.ErrFlowNotFound) || getErr != nil:
		writeError(w, http.StatusNotFound, "flow not found")
	case err != nil:
		s.reg.Counter(metrics.WithLabels("apiloom_flows_total", "status", "failed"), "Flow executions by outcome.").Inc()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"flow": flow, "error": err.Error()})
	default:
		s.reg.Counter(metrics.WithLabels("apiloom_flows_total", "status", "completed"), "Flow executions by outcome.").Inc()
		writeJSON(w, http.StatusOK, flow)
	}
}

type suggestRequest struct {
	Requirement string `json:"requirement"`
}

func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Requirement == "" {
		writeError(w, http.StatusBadRequest, "requirement is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.engine.SuggestOrchestration(r.Context(), req.Requirement))
}

func (s *server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}
	route := s.engine.FindOptimalRoute(source, target, q.Get("capability"))
	writeJSON(w, http.StatusOK, map[string]any{"route": route})
}
