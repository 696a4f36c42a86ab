package commands

import (
	"context"
	"fmt"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/internal/output"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/pkg/config"
	"github.com/wonny/ewreturns/pkg/database"
	"github.com/wonny/ewreturns/pkg/logger"
	"github.com/wonny/ewreturns/pkg/redis"
)

// app holds the wired dependencies shared by commands
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB // nil without DATABASE_URL
	redis  *redis.Client
	source contracts.MarketDataSource
	repo   *output.Repository // nil without DATABASE_URL
}

// newApp connects the optional stores and the market data source.
// providerName overrides MARKETDATA_PROVIDER when set.
func newApp(ctx context.Context, cfg *config.Config, providerName string) (*app, error) {
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log}

	var q database.Querier
	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		q = db.Pool

		if err := marketdata.EnsureSchema(ctx, q); err != nil {
			a.close()
			return nil, err
		}
		a.repo = output.NewRepository(q)
		if err := a.repo.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		log.Info("Connected to database")
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.redis = rc

	var cache marketdata.Cache
	if rc.Enabled() {
		cache = redis.NewCache(rc, "ewreturns")
		log.Info("Connected to redis")
	}

	upstream, err := marketdata.NewProvider(cfg, providerName, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.source = marketdata.Layer(upstream, q, cache, cfg.Redis.TTL, log)

	return a, nil
}

// orchestrator builds a pipeline writing CSVs and, when configured, to Postgres
func (a *app) orchestrator() *pipeline.Orchestrator {
	builder := dataset.NewBuilder(a.source, a.cfg.MarketData.Workers, a.log)
	sinks := func(dir string) pipeline.Sink { return output.NewFileSink(dir, a.log) }

	var store pipeline.ResultStore
	if a.repo != nil {
		store = a.repo
	}
	return pipeline.NewOrchestrator(builder, sinks, store, a.log)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
