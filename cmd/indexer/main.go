// Command indexer loads service descriptor manifests, embeds them, builds
// the semantic graph, and persists it into Neo4j and Qdrant. It runs once
// per invocation; schedule it externally for periodic re-indexing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/LoomworksAI/apiloom/engine/discovery"
	"github.com/LoomworksAI/apiloom/engine/domain"
	"github.com/LoomworksAI/apiloom/engine/embed"
	"github.com/LoomworksAI/apiloom/engine/graph"
	"github.com/LoomworksAI/apiloom/engine/semantic"
	"github.com/LoomworksAI/apiloom/pkg/fn"
	"github.com/LoomworksAI/apiloom/pkg/metrics"
	"github.com/LoomworksAI/apiloom/pkg/natsutil"
	"github.com/LoomworksAI/apiloom/pkg/ollama"
)

var met = metrics.New()

var (
	mDescriptors = met.Counter("apiloom_index_descriptors_total", "Descriptors indexed")
	mVectors     = met.Counter("apiloom_index_vectors_total", "Vectors generated")
	mEdges       = met.Counter("apiloom_index_edges_total", "Graph edges produced")
	mRuns        = func(outcome string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("apiloom_index_runs_total", "outcome", outcome), "Index runs by outcome")
	}
	mPipelineDur = met.Histogram("apiloom_index_pipeline_seconds", "Full pipeline duration", nil)
)

func main() {
	var (
		manifestDir = flag.String("manifests", "./manifests", "directory of descriptor manifest JSON files")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "apiloom", "Qdrant collection name")
		natsURL     = flag.String("nats", "", "NATS URL for index events (empty disables)")
		ollamaURL   = flag.String("ollama", "", "Ollama base URL (empty uses the signature provider)")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		dims        = flag.Int("dims", embed.DefaultDimensions, "embedding vector dimensions")
		workers     = flag.Int("workers", 4, "embedding concurrency")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	met.CollectRuntime("apiloom_index", 15*time.Second)
	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, runConfig{
		manifestDir: *manifestDir,
		neo4jURL:    *neo4jURL,
		neo4jUser:   *neo4jUser,
		neo4jPass:   *neo4jPass,
		qdrantAddr:  *qdrantAddr,
		collection:  *collection,
		natsURL:     *natsURL,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		dims:        *dims,
		workers:     *workers,
	}, logger); err != nil {
		mRuns("failed").Inc()
		logger.Error("index run failed", "error", err)
		os.Exit(1)
	}
	mRuns("completed").Inc()
}

// indexed pairs the generated vectors with the graph built from them, so
// the persist stage can write both stores.
type indexed struct {
	vectors []embed.Vector
	graph   *graph.SemanticGraph
}

type runConfig struct {
	manifestDir string
	neo4jURL    string
	neo4jUser   string
	neo4jPass   string
	qdrantAddr  string
	collection  string
	natsURL     string
	ollamaURL   string
	ollamaModel string
	dims        int
	workers     int
}

func run(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	start := time.Now()
	defer mPipelineDur.Since(start)

	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}

	vectorStore, err := semantic.New(cfg.qdrantAddr, cfg.collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.dims); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	graphStore := graph.NewStore(driver)

	var provider embed.Provider = embed.NewSignatureProvider(cfg.dims)
	if cfg.ollamaURL != "" {
		client := ollama.NewClient(cfg.ollamaURL, cfg.ollamaModel, cfg.dims, 10)
		provider = embed.NewGuardedProvider(embed.NewTextProvider(client), nil)
		logger.Info("using ollama embeddings", "model", cfg.ollamaModel)
	}
	generator := embed.NewGenerator(provider, cfg.workers, logger)
	builder := graph.NewBuilder()

	// Each stage consumes the previous stage's output; the pipeline fails
	// on the first error.
	load := fn.TracedStage("indexer/load", func(_ context.Context, dir string) fn.Result[[]domain.ServiceDescriptor] {
		descriptors, err := discovery.NewLoader(logger).LoadDir(dir)
		if err != nil {
			return fn.Err[[]domain.ServiceDescriptor](err)
		}
		mDescriptors.Add(int64(len(descriptors)))
		return fn.Ok(descriptors)
	})

	embedStage := fn.TracedStage("indexer/embed", func(ctx context.Context, descriptors []domain.ServiceDescriptor) fn.Result[[]embed.Vector] {
		vectors := generator.Generate(ctx, descriptors)
		if len(vectors) == 0 && len(descriptors) > 0 {
			return fn.Errf[[]embed.Vector]("all %d descriptors failed to embed", len(descriptors))
		}
		mVectors.Add(int64(len(vectors)))
		return fn.Ok(vectors)
	})

	build := fn.TracedStage("indexer/build", func(_ context.Context, vectors []embed.Vector) fn.Result[indexed] {
		sg, err := builder.Build(vectors)
		if err != nil {
			return fn.Err[indexed](err)
		}
		mEdges.Add(int64(sg.EdgeCount))
		return fn.Ok(indexed{vectors: vectors, graph: sg})
	})

	// Store writes are the only stages worth retrying: load and build are
	// deterministic, but Neo4j and Qdrant can drop a connection mid-run.
	persist := fn.RetryStage(fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 10 * time.Second},
		fn.TracedStage("indexer/persist", func(ctx context.Context, in indexed) fn.Result[*graph.SemanticGraph] {
			if err := graphStore.SaveGraph(ctx, in.graph); err != nil {
				return fn.Err[*graph.SemanticGraph](fmt.Errorf("graph persist: %w", err))
			}
			if err := vectorStore.Upsert(ctx, semantic.RecordsFromVectors(in.vectors)); err != nil {
				return fn.Err[*graph.SemanticGraph](fmt.Errorf("vector persist: %w", err))
			}
			return fn.Ok(in.graph)
		}))

	descriptors := load(ctx, cfg.manifestDir)
	vectors := chain(ctx, descriptors, embedStage)
	built := chain(ctx, vectors, build)
	stored := chain(ctx, built, persist)

	sg, err := stored.Unwrap()
	if err != nil {
		return err
	}
	logger.Info("index run complete",
		"nodes", sg.NodeCount,
		"edges", sg.EdgeCount,
		"clusters", len(sg.Clusters),
		"recommendations", len(sg.Recommendations),
	)

	if cfg.natsURL != "" {
		nc, err := natsutil.Connect(cfg.natsURL, "apiloom-indexer")
		if err != nil {
			logger.Warn("nats unavailable, skipping index event", "error", err)
			return nil
		}
		defer nc.Close()
		ev := graph.IndexedEvent{Nodes: sg.NodeCount, Edges: sg.EdgeCount, At: time.Now().UTC()}
		if err := natsutil.Publish(ctx, nc, graph.SubjectIndexed, ev); err != nil {
			logger.Warn("index event publish failed", "error", err)
		}
	}
	return nil
}

// chain feeds an Ok result into the next stage and short-circuits errors.
func chain[In, Out any](ctx context.Context, r fn.Result[In], stage fn.Stage[In, Out]) fn.Result[Out] {
	v, err := r.Unwrap()
	if err != nil {
		return fn.Err[Out](err)
	}
	return stage(ctx, v)
}
