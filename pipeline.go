package main

import (
	"context"
	"fmt"

	"sales-funnel-analytics/config"
	"sales-funnel-analytics/crm/bitrix"
	"sales-funnel-analytics/models"
	"sales-funnel-analytics/services"
	"sales-funnel-analytics/storage"
)

// openSource builds the snapshot source selected by DEAL_SOURCE. The returned
// close func releases whatever the source holds open.
func openSource(ctx context.Context) (storage.SnapshotSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case config.SourceBitrix:
		return bitrix.New(cfg, logger), noop, nil
	case config.SourceCSV:
		return storage.NewCSVSource(cfg.CSVInputPath, cfg.CSVUsersPath), noop, nil
	case config.SourcePostgres:
		store, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown deal source %q", cfg.Source)
	}
}

func loadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	logger.Info("[%s] Loading snapshot...", cfg.Source)
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot from %s: %w", cfg.Source, err)
	}
	return snap, nil
}

func thresholds() services.Thresholds {
	return services.Thresholds{
		CompanyConversionMin:   cfg.CompanyConversionMin,
		ZeroConversionMinDeals: cfg.ZeroConversionMinDeals,
		CancelRateMax:          cfg.CancelRateMax,
		TrendDeclinePct:        cfg.TrendDeclinePct,
	}
}

// loadEngine loads the configured snapshot and builds an Engine over it.
func loadEngine(ctx context.Context) (*services.Engine, error) {
	snap, err := loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Deals) == 0 {
		logger.Warn("[%s] Snapshot holds no deals", cfg.Source)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	n := services.NewNormalizer(logger, services.WithLocation(loc))
	return services.NewEngineFromRaw(n, snap, services.WithThresholds(thresholds())), nil
}
