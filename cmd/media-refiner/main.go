package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-refiner/internal/codec"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/handlers"
	"media-refiner/internal/logging"
	"media-refiner/internal/memory"
	"media-refiner/internal/metrics"
	"media-refiner/internal/middleware"
	"media-refiner/internal/refiner"
	"media-refiner/internal/settings"
	"media-refiner/internal/startup"
	"media-refiner/internal/workers"
)

// collectInterval is how often catalog gauges are refreshed.
const collectInterval = time.Minute

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"uploads":  config.UploadsDir,
		"database": config.DatabaseDir,
	}))

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	cdc, err := codec.Select(codec.Kind(config.ImageCodec), codec.Options{
		Concurrency: workers.VipsConcurrency(),
		FFmpegPath:  config.FFmpegPath,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize image codec: %v", err)
	}
	defer codec.ShutdownVips()

	dbStart := time.Now()
	engine, err := refiner.Open(context.Background(), refiner.Config{
		UploadsDir:   config.UploadsDir,
		DatabasePath: config.DatabasePath,
		Codec:        cdc,
		Delete: filesystem.DeleteConfig{
			MaxAttempts: config.DeleteAttempts,
			Backoff:     config.DeleteBackoff,
		},
		GhostscriptPath: config.GhostscriptPath,
		Throttle:        monitor,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))
	startup.LogEngineInit(toolStatus(cdc, engine), config)

	collector := metrics.NewCollector(engine, collectInterval)
	collector.Start()

	background, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	if config.WatchUploads {
		watcher := engine.NewWatcher()
		go func() {
			if err := watcher.Run(background); err != nil {
				logging.Error("Upload watcher stopped: %v", err)
			}
		}()
	}

	h := handlers.New(engine)
	router := handlers.NewRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	var handler http.Handler = router
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	// WriteTimeout stays 0: a conversion page or an export can run for
	// minutes.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, func() {
			cancelBackground()
			monitor.Stop()
			collector.Stop()
		})
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func toolStatus(c codec.Codec, engine *refiner.Engine) startup.ToolStatus {
	status := startup.ToolStatus{Ghostscript: engine.PDFAvailable()}
	if c != nil {
		status.Codec = c.Name()
		status.WebP = c.Supports(settings.FormatWebP)
		status.AVIF = c.Supports(settings.FormatAVIF)
	}
	return status
}

// handleShutdown waits for SIGINT or SIGTERM, stops background work so
// running pages end between assets, then drains both servers.
func handleShutdown(srv, metricsSrv *http.Server, stopBackground func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping background work")
	stopBackground()
	startup.LogShutdownStepComplete("Watcher, memory monitor and collector stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
