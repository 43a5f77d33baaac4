// Command weathersync keeps the 5 km weather grid in step with consumer demand.
// It runs the update, add, and optional fill workflows once a day, or once
// with -once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/weather-grid-sync/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-grid-sync/internal/adapter/kafka"
	"github.com/couchcryptid/weather-grid-sync/internal/adapter/meteo"
	"github.com/couchcryptid/weather-grid-sync/internal/config"
	"github.com/couchcryptid/weather-grid-sync/internal/grid"
	"github.com/couchcryptid/weather-grid-sync/internal/inventory"
	"github.com/couchcryptid/weather-grid-sync/internal/observability"
	"github.com/couchcryptid/weather-grid-sync/internal/pipeline"
	"github.com/couchcryptid/weather-grid-sync/internal/planner"
	"github.com/couchcryptid/weather-grid-sync/internal/runner"
	"github.com/couchcryptid/weather-grid-sync/internal/store/sqlite"
	"github.com/couchcryptid/weather-grid-sync/internal/writer"
)

func main() {
	once := flag.Bool("once", false, "run a single daily cycle and exit")
	fill := flag.Bool("fill", false, "also run the fill workflow")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("config loaded", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once, *fill); err != nil {
		logger.Error("weathersync failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, once, fill bool) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("sqlite close error", "error", err)
		}
	}()

	zones, rasters, err := store.LoadGrid(ctx)
	if err != nil {
		return fmt.Errorf("load grid: %w", err)
	}
	if len(zones) == 0 {
		return errors.New("no grid stored, run gridinit first")
	}
	idx, err := grid.NewIndex(zones, rasters, grid.DefaultCacheSize)
	if err != nil {
		return err
	}
	logger.Info("grid loaded", "zones", len(zones), "cells", idx.CellCount())

	types, err := store.EnsureWeatherTypes(ctx, cfg.Parameters.Types())
	if err != nil {
		return err
	}

	plan, err := planner.New(
		parameterGroups(cfg.Parameters.UpdateGroups),
		parameterGroups(cfg.Parameters.AddGroups),
		cfg.Parameters.FillMaxCells,
	)
	if err != nil {
		return err
	}

	var (
		outcomes runner.OutcomePublisher
		reports  pipeline.ReportPublisher
	)
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaOutcomeTopic, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		outcomes, reports = publisher, publisher
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaOutcomeTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	client := meteo.NewClient(cfg.MeteoUsername, cfg.MeteoPassword, cfg.MeteoBaseURL, cfg.MeteoTimeout, logger)
	inv := inventory.New(store, idx, clock, logger, cfg.HistoryYears, cfg.ForecastDays)
	w := writer.New(store, types, logger, metrics)
	r := runner.New(client, store, w, outcomes, clock, logger, metrics, cfg.MeteoDailyRequestLimit)
	cycle := pipeline.New(inv, plan, r, types, reports, clock, logger, metrics, cfg.FillEnabled)

	if once {
		_, err := cycle.RunDailyCycle(ctx, fill)
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, cycle, logger)
	scheduler := pipeline.NewScheduler(cycle, cfg.ScheduleAt, fill, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func parameterGroups(groups []config.GroupConfig) []planner.ParameterGroup {
	out := make([]planner.ParameterGroup, len(groups))
	for i, g := range groups {
		out[i] = planner.ParameterGroup{Parameters: g.Parameters, MaxCells: g.MaxCells}
	}
	return out
}
