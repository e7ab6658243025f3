package main

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sales-funnel-analytics/config"
	"sales-funnel-analytics/storage"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch a snapshot and mirror it to CSV and/or PostgreSQL",
	Long: `sync loads a raw snapshot from the configured source and replaces the
mirrors: the raw CSV dump at CSV_OUTPUT_PATH (users at CSV_USERS_PATH) and,
with POSTGRES_MIRROR=true, the crm_* tables.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfg.CSVOutputPath == "" && !cfg.PostgresMirror {
		return errors.New("sync: nothing to write; set CSV_OUTPUT_PATH or POSTGRES_MIRROR=true")
	}

	snap, err := loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.Deals) == 0 {
		return errors.New("sync: snapshot holds no deals, keeping existing mirrors")
	}

	var writers []storage.SnapshotWriter
	defer func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}()

	if cfg.CSVOutputPath != "" {
		w, err := storage.NewCSVWriter(cfg.CSVOutputPath, cfg.CSVUsersPath)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	}
	if cfg.PostgresMirror && cfg.Source != config.SourcePostgres {
		w, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
		if err != nil {
			logger.Error("Make sure PostgreSQL is reachable at %s:%s", cfg.PostgresHost, cfg.PostgresPort)
			return err
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		return errors.New("sync: the only mirror is the source itself")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writers {
		g.Go(func() error { return w.WriteSnapshot(gctx, snap) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("[sync] Mirrored %d raw deals", len(snap.Deals))
	return nil
}
