package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/caption"
	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/config"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/feed"
	"github.com/hurttlocker/memeverse/internal/logging"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/mutation"
	"github.com/hurttlocker/memeverse/internal/ranking"
	"github.com/hurttlocker/memeverse/internal/store"
)

// app is the wired engine shared by every command.
type app struct {
	cfg     config.ResolvedConfig
	logger  *zap.Logger
	metrics *metrics.Set

	store      store.Store
	engagement *engagement.Store
	cache      *catalog.Cache
	catalog    *catalog.Client
	pipeline   *feed.Pipeline
	ranking    *ranking.Engine
	mutations  *mutation.Engine
}

func resolveConfig() (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  globalConfigPath,
		CLIDBPath:   globalDBPath,
		CLILogLevel: globalLogLevel,
	})
}

// openApp resolves configuration and wires config, logging, the store and
// every engine. Callers must close the returned app.
func openApp(opts config.ResolveOptions) (*app, error) {
	opts.ConfigPath = globalConfigPath
	opts.CLIDBPath = globalDBPath
	if opts.CLILogLevel == "" {
		opts.CLILogLevel = globalLogLevel
	}
	cfg, err := config.ResolveConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel.Value, cfg.LogFormat.Value)
	if err != nil {
		return nil, err
	}

	pageSize, err := cfg.PageSizeInt()
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	set := metrics.NewSet()
	es := engagement.NewStore(st)
	cache := catalog.NewCache(st)

	captioner, err := caption.New(caption.Config{
		Provider: cfg.CaptionProvider.Value,
		Endpoint: cfg.CaptionURL.Value,
		APIKey:   cfg.CaptionAPIKey().Value,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    set,
		store:      st,
		engagement: es,
		cache:      cache,
		catalog: catalog.NewClient(catalog.ClientConfig{
			Endpoint: cfg.CatalogURL.Value,
			PageSize: pageSize,
			Logger:   logger.Named("catalog"),
		}),
		pipeline: feed.NewPipeline(nil, es),
		ranking:  ranking.NewEngine(es, cache, ranking.WithLogger(logger.Named("ranking")), ranking.WithMetrics(set.Engagement)),
		mutations: mutation.NewEngine(st, mutation.Config{
			Uploader:  newUploader(cfg, logger),
			Captioner: captioner,
			Logger:    logger.Named("mutation"),
			Metrics:   set.Engagement,
		}),
	}
	return a, nil
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}
