package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/rollcall/internal/llm"
	"github.com/ppiankov/rollcall/internal/metrics"
	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/pipeline"
	"github.com/ppiankov/rollcall/internal/resolve"
	"github.com/ppiankov/rollcall/internal/roster"
	"github.com/ppiankov/rollcall/internal/store"
	"github.com/ppiankov/rollcall/internal/worker"
)

// app holds the wired components one command invocation works with
type app struct {
	cfg      *model.Config
	logger   *slog.Logger
	store    *store.Store
	metrics  *metrics.PipelineMetrics
	roster   *roster.CachedSource
	finder   *roster.Finder
	names    *roster.NonPlayerResolver
	resolver *resolve.Resolver
	ai       *llm.OpenAIService
	runner   *pipeline.Runner
	health   *pipeline.HealthChecker
	batch    *worker.BatchProcessor
}

// newApp loads configuration and wires store, roster, resolver and pipeline
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st}
	if err := a.wire(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	src := roster.NewMemorySource()
	if cfg.Roster.File != "" {
		file, err := roster.LoadFile(cfg.Roster.File)
		if err != nil {
			return err
		}
		src = file.Source()
		if err := a.store.SetTrustLevels(ctx, file.Trust); err != nil {
			return err
		}
		a.logger.Debug("roster loaded", "file", cfg.Roster.File, "organizations", len(file.Organizations))
	} else {
		a.logger.Warn("no roster configured, every mention will stay unresolved")
	}

	m, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = m

	a.roster = roster.NewCachedSource(src, cfg.Roster.CacheTTL)
	a.finder = roster.NewFinder(a.roster, cfg.Resolution)
	a.names = roster.NewNonPlayerResolver(a.roster, cfg.Resolution.NonPlayerFloor)
	a.resolver = resolve.New(a.store, a.store, a.finder, a.names, a.store, cfg.Resolution,
		resolve.WithLogger(a.logger),
		resolve.WithRecorder(m),
	)

	deps := pipeline.RunnerDeps{
		Repo:     a.store,
		Claims:   a.store,
		Resolver: a.resolver,
		Alerts:   a.store,
		Observer: m,
		Logger:   a.logger,
	}
	svc, err := llm.NewService(llm.ConfigFromModel(cfg.AI))
	if err != nil {
		return err
	}
	// a nil *OpenAIService must not become a non-nil interface
	if svc != nil {
		deps.AI = svc
	}
	a.ai = svc

	a.runner = pipeline.NewRunner(deps, pipeline.RunnerConfigFromModel(cfg.Pipeline))
	a.health = pipeline.NewHealthChecker(a.store, a.store, a.runner.Breaker(), m, a.logger)
	a.batch = worker.NewBatchProcessor(a.runner, cfg.Pipeline.Workers, a.logger)
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
