package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/catalog"
	"github.com/hupe1980/mediacache/codec"
	"github.com/hupe1980/mediacache/server"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveFlags() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "scan the backend and serve assets over HTTP",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "directory for cached chunk data (default: memory)",
			},
			&cli.IntFlag{
				Name:  "capacity",
				Usage: "number of assets kept in the cache",
			},
			&cli.DurationFlag{
				Name:  "refresh-interval",
				Usage: "rescan the backend at this interval (0 scans once)",
			},
		},
	}
}

type debugStats struct {
	Service mediacache.Stats             `json:"service"`
	Metrics mediacache.BasicMetricsStats `json:"metrics"`
	Assets  int                          `json:"assets"`
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	cd, _ := codec.ByName(cfg.Codec)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers cleanup
	defer func() {
		if err := closers.run(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	backend, err := openBackend(ctx, cfg.Backend, &closers)
	if err != nil {
		return err
	}

	metrics := &mediacache.BasicMetricsCollector{}
	svcOpts, err := serviceOptions(ctx, cfg, logger, metrics, &closers)
	if err != nil {
		return err
	}
	svc, err := mediacache.New(backend, svcOpts...)
	if err != nil {
		return err
	}
	closers.add(svc.Close)

	cat := catalog.New(backend, append(catalogOptions(cfg.Catalog, logger), catalog.WithInvalidator(svc.Invalidate))...)
	if cfg.Catalog.Snapshot != "" {
		if err := loadSnapshot(cat, cfg.Catalog.Snapshot, cd); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("ignoring catalog snapshot", "path", cfg.Catalog.Snapshot, "error", err)
		}
	}

	srv := server.New(svc, cat,
		server.WithLogger(logger),
		server.WithMetricsCollector(metrics),
		server.WithCodec(cd),
		server.WithStats(func() any {
			return debugStats{
				Service: svc.Stats(),
				Metrics: metrics.GetStats(),
				Assets:  cat.Len(),
			}
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Listen)
	})
	g.Go(func() error {
		return refreshLoop(gctx, cat, cfg.Catalog.RefreshInterval, cfg.Catalog.Snapshot, cd, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mediacached stopped")
	return nil
}

// refreshLoop scans once, then every interval until ctx is done. Only the
// first scan is fatal, and only when no snapshot was loaded.
func refreshLoop(ctx context.Context, cat *catalog.Catalog, interval time.Duration, snapshot string, cd codec.Codec, logger *mediacache.Logger) error {
	refresh := func() error {
		if _, err := cat.Refresh(ctx); err != nil {
			return err
		}
		if snapshot != "" {
			if err := saveSnapshot(cat, snapshot, cd); err != nil {
				logger.Warn("save catalog snapshot", "path", snapshot, "error", err)
			}
		}
		return nil
	}

	if err := refresh(); err != nil {
		if cat.Len() == 0 {
			return fmt.Errorf("initial scan: %w", err)
		}
		logger.Error("initial scan failed, serving snapshot", "error", err)
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := refresh(); err != nil && ctx.Err() == nil {
				logger.Error("catalog refresh failed", "error", err)
			}
		}
	}
}

func loadSnapshot(cat *catalog.Catalog, path string, cd codec.Codec) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return cat.Load(f, cd)
}

// saveSnapshot writes to a temporary file and renames it over path.
func saveSnapshot(cat *catalog.Catalog, path string, cd codec.Codec) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := cat.Save(tmp, cd); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
