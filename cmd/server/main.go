package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-cutter/internal/application"
	"github.com/eugenenazirov/stock-cutter/internal/config"
	"github.com/eugenenazirov/stock-cutter/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("stock-cutter", "Stock Cutter - plans how to cut raw bars into demanded pieces with minimal waste")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	rawLength := kingpinApp.Flag("raw-length", "Default raw bar length in mm").Default("-1").Int()
	wasteAllowance := kingpinApp.Flag("waste-allowance", "Length lost per bar to kerf and trimming in mm").Default("-1").Int()
	maxIterations := kingpinApp.Flag("max-iterations", "Column generation iteration cap").Default("-1").Int()
	solverTimeout := kingpinApp.Flag("solver-timeout", "Time limit per LP/IP solve (set 0 to disable)").Default("-1s").Duration()
	solverEngine := kingpinApp.Flag("solver-engine", "Integer programming engine (branch-and-bound, pseudo-boolean)").String()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *rawLength >= 0 {
		overrides.RawLength = rawLength
	}

	if *wasteAllowance >= 0 {
		overrides.WasteAllowance = wasteAllowance
	}

	if *maxIterations >= 0 {
		overrides.MaxIterations = maxIterations
	}

	if *solverTimeout >= 0 {
		overrides.SolverTimeout = solverTimeout
	}

	if *solverEngine != "" {
		overrides.SolverEngine = solverEngine
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(logging.WithLevel(cfg.LogLevel))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
