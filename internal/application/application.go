package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-cutter/internal/api"
	"github.com/eugenenazirov/stock-cutter/internal/config"
	"github.com/eugenenazirov/stock-cutter/internal/cutting"
	"github.com/eugenenazirov/stock-cutter/internal/oracle"
	"github.com/eugenenazirov/stock-cutter/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	plans   storage.PlanStore
	planner *cutting.Planner
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if err := store.SetStock(cfg.Stock); err != nil {
		return nil, fmt.Errorf("failed to apply initial stock: %w", err)
	}
	plans := storage.NewMemoryPlanStore(cfg.PlanHistory)

	planner := NewPlanner(cfg, logger)
	handler := api.NewHandler(planner, store, plans, api.WithMaxUploadBytes(cfg.MaxUploadBytes))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage: store,
		plans:   plans,
		planner: planner,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// NewPlanner wires column generation over the configured LP/IP engine
// together with the first-fit-decreasing baseline.
func NewPlanner(cfg config.Config, logger *zap.Logger) *cutting.Planner {
	kind, err := oracle.ParseEngineKind(string(cfg.SolverEngine))
	if err != nil {
		logger.Warn("unknown solver engine, using default", zap.String("engine", string(cfg.SolverEngine)))
	}
	optimal := cutting.NewColumnGeneration(
		oracle.NewEngine(kind, cfg.SolverTimeout),
		cutting.WithMaxIterations(cfg.MaxIterations),
		cutting.WithLogger(logger.Named("colgen")),
	)
	return cutting.NewPlanner(optimal, cutting.NewFirstFitDecreasing(), logger.Named("planner"))
}

// BuildRootHandler routes API requests and answers "/" with an index of the
// available endpoints.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(apiIndex))
	}))
	return mux
}

const apiIndex = `{"service":"stock-cutter","endpoints":[` +
	`"GET /api/health",` +
	`"GET /api/stock","PUT /api/stock",` +
	`"POST /api/optimize",` +
	`"GET /api/plans","GET /api/plans/{id}","GET /api/plans/{id}/report",` +
	`"POST /api/demands/import","POST /api/demands/export"]}` + "\n"

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
