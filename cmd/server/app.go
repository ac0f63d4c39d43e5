package main

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/lock"
	"github.com/warp/timesheet-engine/remote"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every command.
type app struct {
	store   *sqlite.Store
	service *timesheet.Service
	runner  *timesheet.Runner
	source  timesheet.Source // nil when no file or API is configured
	loc     *time.Location
	periods generic.PayPeriodConfig

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	periods, err := cfg.PayPeriods()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a := &app{store: store, loc: loc, periods: periods}
	a.closers = append(a.closers, store.Close)

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine := timesheet.NewEngine(store, periods, logger.Named("engine"))
	a.runner = timesheet.NewRunner(engine, locker, logger.Named("runner"))
	a.service = timesheet.NewService(store, logger.Named("service"))
	a.source = a.newSource()

	logger.Info("ledger ready",
		zap.String("db", cfg.DB.Path),
		zap.String("timezone", loc.String()),
		zap.String("pay_period_anchor", periods.Anchor.String()),
		zap.Int("pay_period_days", periods.Length),
		zap.String("lock", cfg.Sync.Lock),
		zap.Bool("source", a.source != nil),
	)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (timesheet.Locker, error) {
	if cfg.Sync.Lock != "redis" {
		return lock.NewLocal(), nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedis(client, lock.DefaultKey, cfg.Redis.LockTTL, logger.Named("lock")), nil
}

func (a *app) newSource() timesheet.Source {
	switch cfg.Sync.Source {
	case "http":
		return remote.NewHTTPSource(
			cfg.Sync.API.BaseURL,
			remote.StaticToken(cfg.Sync.API.Token),
			a.loc,
			cfg.Sync.API.Timeout,
			logger.Named("remote"),
		)
	case "file":
		if cfg.Sync.File != "" {
			return &remote.FileSource{Path: cfg.Sync.File, Location: a.loc}
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}
