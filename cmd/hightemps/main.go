package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/i474232898/hightemps/internal/api/http"
	"github.com/i474232898/hightemps/internal/config"
	"github.com/i474232898/hightemps/internal/geo"
	"github.com/i474232898/hightemps/internal/logging"
	"github.com/i474232898/hightemps/internal/render"
	"github.com/i474232898/hightemps/internal/store"
	"github.com/i474232898/hightemps/internal/weather"
	"github.com/i474232898/hightemps/internal/weather/providers"
)

func usage() {
	fmt.Println("Usage: hightemps [serve | fetch [archive|forecast|history]]")
	fmt.Println("Examples: hightemps")
	fmt.Println("          hightemps fetch")
	fmt.Println("          hightemps fetch history")
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd != "serve" && cmd != "fetch" {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	service, err := newService(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise service", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd == "fetch" {
		source := weather.Source(cfg.Source)
		if len(os.Args) > 2 {
			source = weather.Source(os.Args[2])
		}
		code := fetchOnce(ctx, service, source, logger)
		stop()
		_ = logger.Sync()
		os.Exit(code)
	}

	serve(ctx, cfg, service, logger)
}

func newService(cfg *config.AppConfig, logger *zap.Logger) (*weather.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Open-Meteo needs coordinates; resolve them from the ZIP code when we can.
	if cfg.GeocoderAPIKey != "" {
		resolved, err := geo.Resolve(geo.NewGoogleGeocoder(cfg.GeocoderAPIKey), loc)
		if err != nil {
			logger.Warn("geocoding failed; using configured coordinates", zap.Error(err))
		} else {
			loc = resolved
		}
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := providers.NewHTTPClient(cfg.HTTPTimeout)

	provs := providers.Registry(httpClient, providers.Settings{
		OpenWeatherAPIKey: cfg.OpenWeatherAPIKey,
		WeatherAPIKey:     cfg.WeatherAPIKey,
		ForecastDays:      cfg.ForecastDays,
		HistoryDays:       cfg.HistoryDays,
	}, logger)

	memStore := store.NewMemoryStore(cfg.StoreMaxRuns, cfg.StoreMaxAge)

	return weather.NewService(memStore, loc, provs, cfg.LoopConfig(), weather.WithLogger(logger)), nil
}

func fetchOnce(ctx context.Context, service *weather.Service, source weather.Source, logger *zap.Logger) int {
	run, err := service.Fetch(ctx, source)
	if err != nil {
		if run.ID == "" {
			// Rejected before any request was made.
			fmt.Fprintln(os.Stderr, weather.UserMessage(err))
			return 1
		}
		logger.Error("fetch failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	if err := render.Calendar(os.Stdout, run); err != nil {
		logger.Error("failed to render calendar", zap.Error(err))
		return 1
	}
	if run.Status == weather.RunFailed {
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.AppConfig, service *weather.Service, logger *zap.Logger) {
	app := httpapi.NewApp(service, ctx)

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
}
