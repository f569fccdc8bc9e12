package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/db"
	httpx "github.com/calder-labs/webbase/internal/http"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/calder-labs/webbase/internal/ratelimit"
	"github.com/calder-labs/webbase/internal/redisclient"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// tracing is optional; without an endpoint the app runs untraced
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "webbase", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(sctx)
			}()
		}
	}

	pool, err := db.NewPool(cfg)

	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// redis backs the login rate limiter; without it logins are unthrottled
	var limiter *ratelimit.Limiter

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pctx); err != nil {
			log.Warn("redis unreachable, login rate limiting disabled", "err", err)
		} else {
			limiter = ratelimit.New(rc.Raw(), cfg.LoginRateLimit, cfg.LoginRateWindow, log)
		}
		cancel()
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	sessions := session.NewManager(postgres.NewSessionsRepo(pool, prom), cfg.SessionSecret, cfg.SessionTTL)

	go sweepSessions(ctx, log, prom, sessions)

	router := httpx.NewRouter(httpx.RouterDeps{
		Cfg:          cfg,
		Log:          log,
		Pool:         pool,
		Sessions:     sessions,
		Prom:         prom,
		PromRegistry: reg,
		LoginLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// sweepSessions deletes expired session rows in the background. Resolution
// already ignores expired rows, the sweep just keeps the table from growing.
func sweepSessions(ctx context.Context, log *slog.Logger, prom *observability.Prom, sessions *session.Manager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sctx, cancel := context.WithTimeout(ctx, 30*time.Second)

		var removed int64
		err := prom.ObserveDB("sessions.sweep", func() error {
			var err error
			removed, err = sessions.Sweep(sctx)
			return err
		})
		cancel()

		if err != nil {
			log.Warn("session sweep failed", "err", err)
			continue
		}

		if removed > 0 {
			prom.SessionsDestroyed.Add(float64(removed))
			log.Info("session sweep", "removed", removed)
		}
	}
}
