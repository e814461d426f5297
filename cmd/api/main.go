// Package main implements the apiloom API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/LoomworksAI/apiloom/engine/discovery"
	"github.com/LoomworksAI/apiloom/engine/embed"
	"github.com/LoomworksAI/apiloom/engine/graph"
	"github.com/LoomworksAI/apiloom/engine/orchestrate"
	"github.com/LoomworksAI/apiloom/engine/semantic"
	"github.com/LoomworksAI/apiloom/pkg/metrics"
	"github.com/LoomworksAI/apiloom/pkg/mid"
	"github.com/LoomworksAI/apiloom/pkg/natsutil"
	"github.com/LoomworksAI/apiloom/pkg/ollama"
	"github.com/LoomworksAI/apiloom/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	QdrantURL   string
	Collection  string
	NATSURL     string
	CORSOrigin  string
	ManifestDir string
	OllamaURL   string
	OllamaModel string
	EmbedDims   int
	StepRate    float64
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "apiloom"),
		NATSURL:     envOr("NATS_URL", ""),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		ManifestDir: envOr("MANIFEST_DIR", ""),
		OllamaURL:   envOr("OLLAMA_URL", ""),
		OllamaModel: envOr("OLLAMA_MODEL", "nomic-embed-text"),
		EmbedDims:   envIntOr("EMBED_DIMENSIONS", embed.DefaultDimensions),
		StepRate:    envFloatOr("STEP_RATE", 10),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// newProvider picks the embedding backend: Ollama when configured, the
// deterministic signature provider otherwise. Either way the model calls
// go through a circuit breaker.
func newProvider(cfg Config) embed.Provider {
	if cfg.OllamaURL == "" {
		return embed.NewSignatureProvider(cfg.EmbedDims)
	}
	client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbedDims, cfg.StepRate)
	return embed.NewGuardedProvider(embed.NewTextProvider(client), nil)
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	graphStore := graph.NewStore(driver)

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Connect to NATS (optional; lifecycle events only) ---
	var events *orchestrate.EventPublisher
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = natsutil.Connect(cfg.NATSURL, "apiloom-api")
		if err != nil {
			logger.Warn("nats unavailable, flow events disabled", "err", err)
			nc = nil
		} else {
			defer nc.Close()
			events = orchestrate.NewEventPublisher(nc, logger)
		}
	}

	// --- Embedding + graph pipeline ---
	provider := newProvider(cfg)
	generator := embed.NewGenerator(provider, 4, logger)
	builder := graph.NewBuilder()

	// --- Orchestration engine ---
	reg := metrics.New()
	limiter := resilience.NewLimiter(cfg.StepRate, int(cfg.StepRate)+1)
	dispatcher := orchestrate.NewDispatcher()
	registerStepHandlers(dispatcher, limiter, reg, logger)
	engine := orchestrate.NewEngine(orchestrate.NewRegistry(), dispatcher, events, logger)

	// --- Discovery ---
	loader := discovery.NewLoader(logger)
	if cfg.ManifestDir != "" {
		descriptors, err := loader.LoadDir(cfg.ManifestDir)
		switch {
		case discovery.IsNotExist(err):
			logger.Warn("manifest dir missing, starting empty", "dir", cfg.ManifestDir)
		case err != nil:
			return fmt.Errorf("load manifests: %w", err)
		default:
			engine.UseDescriptors(descriptors)
		}

		// Reload the descriptor set whenever the indexer finishes a run.
		if nc != nil {
			sub, err := natsutil.Subscribe(nc, graph.SubjectIndexed, func(_ context.Context, _ graph.IndexedEvent) {
				descriptors, err := loader.LoadDir(cfg.ManifestDir)
				if err != nil {
					logger.Warn("manifest reload failed", "err", err)
					return
				}
				engine.UseDescriptors(descriptors)
				logger.Info("descriptors reloaded after index run", "count", len(descriptors))
			})
			if err != nil {
				logger.Warn("index event subscription failed", "err", err)
			} else {
				defer sub.Unsubscribe()
			}
		}
	}

	srv := newServer(engine, generator, builder, graphStore, vectorStore, reg, logger)

	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.RequestMetrics(reg),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("apiloom-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// registerStepHandlers binds the closed action set. The handlers here are
// local collaborators: they rate-limit, count, and echo. Real outbound
// integrations replace them at deployment by registering over these
// entries.
func registerStepHandlers(d *orchestrate.Dispatcher, limiter *resilience.Limiter, reg *metrics.Registry, logger *slog.Logger) {
	for _, action := range []orchestrate.Action{
		orchestrate.ActionAuthenticate,
		orchestrate.ActionQuery,
		orchestrate.ActionTransform,
		orchestrate.ActionForward,
	} {
		d.Register(action, func(ctx context.Context, apiID string, payload map[string]any) (map[string]any, error) {
			var out map[string]any
			err := limiter.CallWait(ctx, func(context.Context) error {
				logger.Info("step dispatched", "action", action, "api_id", apiID)
				reg.Counter(metrics.WithLabels("apiloom_steps_total", "action", string(action)),
					"Steps dispatched by action.").Inc()
				out = map[string]any{"action": string(action), "api_id": apiID, "payload": payload}
				return nil
			})
			return out, err
		})
	}
}
