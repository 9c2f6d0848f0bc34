package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"leadcaller/config"
	"leadcaller/correlation"
	"leadcaller/judge"
	"leadcaller/llm"
	"leadcaller/scraper/maps"
	"leadcaller/services"
	"leadcaller/storage"
	"leadcaller/utils"
	"leadcaller/voice"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *utils.Logger
	datasets   *storage.DatasetStore
	postgres   *storage.PostgresWriter
	dispatcher *voice.Dispatcher
	qualified  *services.QualifiedCache
	campaign   *services.Campaign
	correlator *correlation.Correlator
	redis      *redis.Client
}

func buildApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var mirrors []storage.DatasetMirror
	if cfg.PostgresEnabled() {
		pw, err := storage.NewPostgresWriter(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		a.postgres = pw
		mirrors = append(mirrors, pw)
		logger.Info("Mirroring datasets to PostgreSQL (table: leads)")
	}
	if cfg.Storage.XLSXOutputPath != "" {
		xw, err := storage.NewXLSXWriter(cfg.Storage.XLSXOutputPath)
		if err != nil {
			a.closeMirrors(mirrors)
			return nil, err
		}
		mirrors = append(mirrors, xw)
	}

	datasets, err := storage.NewDatasetStore(cfg.Storage.CSVOutputPath, logger, mirrors...)
	if err != nil {
		a.closeMirrors(mirrors)
		return nil, err
	}
	a.datasets = datasets

	var (
		sessions  correlation.SessionStore = correlation.NewMemoryStore()
		snapshots storage.SnapshotStore    = storage.NewMemorySnapshotStore()
	)
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, eris.Wrap(err, "redis: ping")
		}
		sessions = correlation.NewRedisStore(a.redis)
		snapshots = storage.NewRedisSnapshotStore(a.redis)
		logger.Info("Call sessions and qualified leads kept in Redis at %s", cfg.Redis.Addr)
	}

	a.dispatcher = voice.NewDispatcher(
		voice.NewClient(cfg.Vapi.BearerToken, voice.WithBaseURL(cfg.Vapi.BaseURL)),
		cfg.Vapi, cfg.Telephony, logger,
	)
	a.qualified = services.NewQualifiedCache(snapshots, logger)

	a.campaign = services.NewCampaign(
		maps.New(cfg.Scrape, logger),
		services.NewCleaner(logger),
		datasets,
		a.dispatcher,
		sessions,
		a.qualified,
		logger,
	)

	j := judge.New(llm.NewClient(cfg.Anthropic.APIKey), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, logger)
	a.correlator = correlation.NewCorrelator(sessions, a.campaign, datasets, j, a.qualified, logger)
	return a, nil
}

func (a *app) closeMirrors(mirrors []storage.DatasetMirror) {
	for _, m := range mirrors {
		_ = m.Close()
	}
}

// Close releases the dataset mirrors and the Redis connection.
func (a *app) Close() error {
	var errs []error
	if a.datasets != nil {
		errs = append(errs, a.datasets.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
