package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/relationship-coach-api/internal/admin"
	"github.com/HanTheDev/relationship-coach-api/internal/analysis"
	"github.com/HanTheDev/relationship-coach-api/internal/api"
	"github.com/HanTheDev/relationship-coach-api/internal/auth"
	"github.com/HanTheDev/relationship-coach-api/internal/backend"
	"github.com/HanTheDev/relationship-coach-api/internal/cache"
	"github.com/HanTheDev/relationship-coach-api/internal/config"
	"github.com/HanTheDev/relationship-coach-api/internal/db"
	"github.com/HanTheDev/relationship-coach-api/internal/history"
	"github.com/HanTheDev/relationship-coach-api/internal/logging"
	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
	"github.com/HanTheDev/relationship-coach-api/internal/ratelimit"
	"github.com/HanTheDev/relationship-coach-api/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Leaves room for the backend timeout plus encoding.
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
	}

	app.sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("backend", app.backend.Name()),
			zap.Bool("cache", app.cache != nil),
			zap.Bool("access_log", app.db != nil),
			zap.Bool("admin", cfg.AdminEnabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if stopErr := app.sweeper.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("sweeper did not stop in time", zap.Error(stopErr))
		}
		app.handler.Wait()
		return err
	})
	return g.Wait()
}

type app struct {
	router  *mux.Router
	backend backend.Backend
	handler *api.Handler
	sweeper *scheduler.Sweeper
	cache   *cache.ResponseCache
	db      *db.DB
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	templates, err := prompt.LoadTemplates(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	a.backend, err = newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewRateLimiter(ratelimit.Options{Limit: cfg.UsageLimit, Window: cfg.UsageWindow})
	store := history.NewStore(cfg.HistoryLimit)

	var responseCache analysis.ResponseCache
	if cfg.RedisURL != "" {
		a.cache, err = cache.NewResponseCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		responseCache = a.cache
	}

	var accessLog api.AccessLogger
	var stats admin.StatsSource
	if cfg.DatabaseURL != "" {
		a.db, err = db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := a.db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		accessLog, stats = a.db, a.db
	}

	orch, err := analysis.NewOrchestrator(analysis.Config{
		Limiter:        limiter,
		History:        store,
		Assembler:      prompt.NewAssembler(templates),
		Backend:        a.backend,
		Synthesizer:    analysis.NewSynthesizer(nil),
		Cache:          responseCache,
		Logger:         logger.Named("analysis"),
		Timeout:        cfg.BackendTimeout,
		HistoryContext: cfg.HistoryContext,
	})
	if err != nil {
		return nil, err
	}

	a.sweeper, err = scheduler.NewSweeper(cfg.SweepSchedule, limiter, logger.Named("sweeper"))
	if err != nil {
		return nil, err
	}

	a.router = mux.NewRouter()
	a.router.Use(api.RequestID)
	a.router.HandleFunc("/health", api.Health(version)).Methods("GET")

	a.handler = api.NewHandler(orch, api.Options{
		TrustProxy: cfg.TrustProxy,
		AccessLog:  accessLog,
		Logger:     logger.Named("api"),
	})
	a.handler.RegisterRoutes(a.router)

	if cfg.AdminEnabled() {
		a.router.HandleFunc("/auth/token", auth.TokenHandler(cfg.AdminAPIKey, cfg.AdminJWTSecret, auth.DefaultTokenTTL, logger.Named("auth"))).Methods("POST")

		// Admin routes carry their full paths, so the subrouter adds no prefix.
		adminRouter := a.router.NewRoute().Subrouter()
		adminRouter.Use(auth.NewMiddleware(cfg.AdminJWTSecret).Authenticate)
		admin.NewAdminHandler(limiter, store, stats, logger.Named("admin")).RegisterRoutes(adminRouter)
	}

	ok = true
	return a, nil
}

func newBackend(ctx context.Context, cfg *config.Config) (backend.Backend, error) {
	switch cfg.BackendProvider {
	case config.ProviderGemini:
		return backend.NewGemini(ctx, backend.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.BackendModel,
			Temperature: cfg.BackendTemperature,
			MaxTokens:   cfg.BackendMaxTokens,
		})
	default:
		return backend.NewOpenAI(backend.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.BackendModel,
			Temperature: cfg.BackendTemperature,
			MaxTokens:   cfg.BackendMaxTokens,
		})
	}
}
