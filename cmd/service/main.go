package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kmorozova/bike-demand-service/internal/accessor"
	"github.com/kmorozova/bike-demand-service/internal/config"
	"github.com/kmorozova/bike-demand-service/internal/dataset"
	"github.com/kmorozova/bike-demand-service/internal/health"
	httphandler "github.com/kmorozova/bike-demand-service/internal/http"
	"github.com/kmorozova/bike-demand-service/internal/model"
	"github.com/kmorozova/bike-demand-service/internal/observability"
	"github.com/kmorozova/bike-demand-service/internal/provider"
	"github.com/kmorozova/bike-demand-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	wwo, err := provider.NewWWOClient(
		cfg.WeatherAPIKey,
		cfg.WeatherHistoryURL,
		cfg.WeatherForecastURL,
		cfg.WeatherCity,
		cfg.HistoryEarliestDate,
		cfg.ForecastHorizonDays,
		cfg.WeatherAPITimeout,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CacheFilePath), 0o755); err != nil {
		logger.Fatal("cache directory", zap.Error(err))
	}
	fileStore, err := store.OpenFileStore(cfg.CacheFilePath)
	if err != nil {
		logger.Fatal("observation cache", zap.Error(err))
	}
	var obsStore store.Store = fileStore
	var memcached *store.MemcachedStore
	if cfg.CacheBackend == "memcached" {
		memcached = store.NewMemcachedStore(fileStore, cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.MemcachedTTL)
		obsStore = memcached
		logger.Info("cache tier: memcached over file", zap.String("addrs", cfg.MemcachedAddrs))
	} else {
		logger.Info("cache tier: file only", zap.String("path", cfg.CacheFilePath))
	}

	tracker := health.NewTracker()
	acc := accessor.New(wwo, obsStore, tracker, logger)
	demand := model.New(acc, cfg.DatasetPath, cfg.ModelLambda, logger)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if cfg.PrimeCache {
		if records, err := dataset.Load(cfg.DatasetPath); err != nil {
			logger.Warn("dataset preload for priming failed", zap.Error(err))
		} else if from, to, ok := dataset.DateRange(records); ok {
			if err := acc.Prime(buildCtx, from, to); err != nil {
				logger.Warn("cache priming incomplete", zap.Error(err))
			}
		}
	}
	if err := demand.Build(buildCtx); err != nil {
		logger.Fatal("demand model build", zap.Error(err))
	}
	buildCancel()

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(acc, demand, wwo, tracker, healthConfig, logger)
	inFlight := httphandler.NewInFlightTracker()

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware(inFlight))
	router.Use(httphandler.LoggingMiddleware())
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	predictRouter := router.NewRoute().Subrouter()
	predictRouter.Use(httphandler.RateLimitMiddleware(limiter, tracker))
	predictRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	predictRouter.HandleFunc("/", handler.GetIndex).Methods("GET")
	predictRouter.HandleFunc("/predict", handler.PostPredict).Methods("POST")
	predictRouter.HandleFunc("/api/predict", handler.GetPredictAPI).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	tracker.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := fileStore.Close(); err != nil {
		logger.Error("observation cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
