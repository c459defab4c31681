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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aegis/hedge-engine/internal/cache"
	"github.com/aegis/hedge-engine/internal/calc"
	"github.com/aegis/hedge-engine/internal/config"
	"github.com/aegis/hedge-engine/internal/limits"
	"github.com/aegis/hedge-engine/internal/logging"
	"github.com/aegis/hedge-engine/internal/metrics"
	"github.com/aegis/hedge-engine/internal/session"
)

func main() {
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:           "hedge-engine",
		Short:         "Beta hedge calculation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging, logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// --- Result cache ---
	var resultCache cache.Cache
	var cleanup []func()

	if cfg.Cache.Enabled {
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unreachable at startup, lookups will miss until it recovers", zap.Error(err))
			}
			resultCache = cache.NewRedisCache(rdb, cfg.Cache.TTL, cfg.Redis.KeyPrefix)
			logger.Info("Redis result cache enabled")
		} else {
			resultCache = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
			logger.Info("in-memory result cache enabled", zap.Int("max_entries", cfg.Cache.MaxEntries))
		}
	} else {
		logger.Warn("result cache disabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Hedge limits ---
	limiter := limits.NewHedgeLimiter(
		decimal.NewFromFloat(cfg.Limits.MaxContracts),
		decimal.NewFromFloat(cfg.Limits.MaxNotionalRatio),
	)

	// --- Calculation service ---
	calcSvc := calc.NewService(logger, resultCache, limiter)

	// --- WebSocket hub ---
	wsHub := calc.NewWSHub(logger, session.CalculatorFunc(calcSvc.Solve), cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, logger, calcSvc, wsHub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("hedge-engine listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down hedge-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("hedge-engine stopped with error", zap.Error(err))
		return err
	}
	logger.Info("hedge-engine stopped")
	return nil
}

func newRouter(cfg *config.Config, logger *zap.Logger, calcSvc *calc.Service, wsHub *calc.WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(calc.CORS(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"hedge-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", calcSvc.Root)
	r.Post("/calculate-hedge", calcSvc.CalculateHedge)

	r.Route("/api/v1", func(r chi.Router) {
		// Live session: form updates and solves over one connection.
		r.Get("/ws", wsHub.HandleWS)

		r.Post("/calculate-hedge", calcSvc.CalculateHedge)
		r.Post("/sensitivity", calcSvc.Sensitivity)

		r.Get("/contracts", calcSvc.ListContracts)
		r.Get("/contracts/{symbol}", calcSvc.GetContract)
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
