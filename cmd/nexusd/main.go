// Command nexusd is the daily content-production orchestrator's server
// entrypoint: it wires the stage registry, quality gates, buffer inventory,
// health preflight, and trigger HTTP handlers, then serves until signalled.
// Grounded on the teacher's cli/cmd/ariadne/main.go (flag parsing, engine
// construction, double-interrupt signal handling, metrics/health HTTP
// servers shut down on context cancellation).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/nexusmedia/contentops/internal/buffer"
	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/collaborators"
	"github.com/nexusmedia/contentops/internal/config"
	"github.com/nexusmedia/contentops/internal/cost"
	"github.com/nexusmedia/contentops/internal/executor"
	"github.com/nexusmedia/contentops/internal/health"
	"github.com/nexusmedia/contentops/internal/httpapi"
	"github.com/nexusmedia/contentops/internal/incident"
	"github.com/nexusmedia/contentops/internal/pipelinerun"
	"github.com/nexusmedia/contentops/internal/quality"
	"github.com/nexusmedia/contentops/internal/stage"
	"github.com/nexusmedia/contentops/internal/stagestub"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/internal/telemetry/logging"
	"github.com/nexusmedia/contentops/internal/telemetry/metrics"
	"github.com/nexusmedia/contentops/internal/telemetry/tracing"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

func main() {
	var (
		configPath    string
		httpAddr      string
		metricsAddr   string
		enableTracing bool
		showVersion   bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to layered YAML config file")
	flag.StringVar(&httpAddr, "http", "", "Override HTTP trigger listen address (e.g. :8080)")
	flag.StringVar(&metricsAddr, "metrics", "", "Override Prometheus metrics listen address (e.g. :9090)")
	flag.BoolVar(&enableTracing, "trace", false, "Enable correlation-id tracing")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("nexusd - content production orchestrator")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if httpAddr != "" {
		fmt.Sscanf(httpAddr, ":%d", &cfg.HTTPPort)
	}
	if metricsAddr != "" {
		fmt.Sscanf(metricsAddr, ":%d", &cfg.MetricsPort)
	}

	baseLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))
	logger := logging.New(baseLogger)
	tracer := tracing.NewTracer(enableTracing)
	_ = tracer // threaded into request contexts by httpapi's caller in a fuller deployment

	clock := clockx.Real
	s := store.NewMemory()
	exporter := metrics.New("contentops")

	objects := collaborators.NewMemoryObjectStore(fmt.Sprintf("http://localhost:%d/assets", cfg.HTTPPort))
	secrets := collaborators.NewEnvSecretStore(os.LookupEnv)
	notifier := collaborators.NewRecordingNotifier()

	registry, err := buildStageRegistry(objects)
	if err != nil {
		log.Fatalf("build stage registry: %v", err)
	}
	gates := quality.DefaultRegistry()

	inventory := buffer.NewInventory(s, clock)
	seedBufferInventory(s, clock, cfg.Runtime.BufferMinimum+1)
	publisher := buffer.Publisher(func(ctx context.Context, date string, video nexusmodel.BufferVideo) error {
		logger.InfoCtx(ctx, "buffer_video_published", "pipelineId", date, "bufferId", video.ID)
		if err := notifier.RouteAlert(ctx, "buffer_deployed", "Buffer video deployed", "live pipeline could not ship; buffer fallback is live", collaborators.AlertFields{"pipelineId": date, "bufferId": video.ID}); err != nil {
			logger.WarnCtx(ctx, "notifier_alert_failed", "error", err.Error())
		}
		return nil
	})

	preflight := buildPreflight(objects, secrets)

	runnerFor := func(pipelineID string) *pipelinerun.Runner {
		incidents := incident.NewLogger(s, clock)
		costs := cost.NewTracker(s, clock, pipelineID)
		exec := executor.New(s, clock, logger, incidents, costs, exporter)
		return pipelinerun.New(s, clock, logger, registry, exec, preflight, inventory, publisher, gates)
	}

	handlers := httpapi.New(pipelinerun.Factory(runnerFor), clock, logger, cfg.MinTokenLen)

	mux := http.NewServeMux()
	mux.HandleFunc("/trigger/scheduled", handlers.TriggerScheduled)
	mux.HandleFunc("/trigger/manual", handlers.TriggerManual)
	mux.HandleFunc("/retry", handlers.Retry)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", exporter.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := preflight.Run(r.Context())
		status := http.StatusOK
		if !result.AllPassed {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.InfoCtx(ctx, "shutdown_signal_received")
		cancel()
		<-sigCh
		logger.ErrorCtx(ctx, "shutdown_forced_by_second_signal")
		os.Exit(1)
	}()

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux}
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		// Async tail operations (incident writes, cost dedup) are each
		// bounded individually by their own store calls; draining the HTTP
		// servers first guarantees no new trigger starts one after this
		// point (spec §5 "the core must guarantee these complete before the
		// process exits").
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.InfoCtx(ctx, "metrics_listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCtx(ctx, "metrics_server_failed", "error", err.Error())
		}
	}()

	logger.InfoCtx(ctx, "http_listening", "addr", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown begins; wait for both
	// servers to finish draining before the process exits.
	<-shutdownDone
}

// buildStageRegistry registers a stand-in for every stage in the fixed
// pipeline sequence (spec §1, §4.6). Real providers plug in here behind the
// same stage.Stage interface without any change to the runner.
func buildStageRegistry(objects collaborators.ObjectStore) (*stage.Registry, error) {
	metricsByStage := stagestub.DefaultMetrics()
	stages := make([]stage.Stage, 0, len(stagestub.StageOrder))
	for _, name := range stagestub.StageOrder {
		stages = append(stages, stagestub.New(name, objects, metricsByStage[name]))
	}
	return stage.NewRegistry(stages...)
}

// buildPreflight wires two health probes: a CRITICAL object-store probe
// (objects.Exists against a sentinel path; it fails only when Exists returns
// an error) and a DEGRADED youtube-credentials probe that reports unhealthy
// when YOUTUBE_API_KEY is not set. A missing credential therefore only adds
// a preflight warning; it does not fail the preflight.
func buildPreflight(objects collaborators.ObjectStore, secrets collaborators.SecretStore) *health.Preflight {
	return health.NewPreflight(5*time.Second,
		health.ProbeFunc{ProbeName: "object-store", Crit: health.Critical, CheckFunc: func(ctx context.Context) health.ProbeResult {
			if _, err := objects.Exists(ctx, "healthcheck"); err != nil {
				return health.ProbeResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.ProbeResult{Status: health.StatusHealthy}
		}},
		health.ProbeFunc{ProbeName: "youtube-credentials", Crit: health.Degraded, CheckFunc: func(ctx context.Context) health.ProbeResult {
			if _, err := secrets.GetSecret(ctx, "YOUTUBE_API_KEY"); err != nil {
				return health.ProbeResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.ProbeResult{Status: health.StatusHealthy}
		}},
	)
}

// seedBufferInventory stocks count evergreen buffer videos so a fresh
// deployment isn't immediately below spec §4.8's minimum-available
// threshold. Real buffer stock is produced by an offline rendering job, out
// of core scope (spec §1).
func seedBufferInventory(s store.DocumentStore, clock clockx.Clock, count int) {
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("seed-buffer-%d", i+1)
		collection, docID := store.BufferVideoID(id)
		_ = s.Set(context.Background(), collection, docID, nexusmodel.BufferVideo{
			ID:          id,
			Topic:       "evergreen",
			CreatedDate: clock.Now(),
			Status:      nexusmodel.BufferActive,
			Used:        false,
		})
	}
}
