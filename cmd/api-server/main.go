package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/session-scheduling/internal/api"
	"github.com/clinicore/session-scheduling/internal/booking"
	"github.com/clinicore/session-scheduling/internal/config"
	"github.com/clinicore/session-scheduling/internal/db"
	"github.com/clinicore/session-scheduling/internal/logger"
	redisclient "github.com/clinicore/session-scheduling/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config load error: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	log.WithField("env", cfg.Env).WithField("http_port", cfg.HTTPPort).Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Fatal("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("error closing redis")
		}
	}()
	log.Info("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	gateway := booking.NewGateway(repo, locker, logger.ForComponent(log, "gateway"))
	bookings := booking.NewService(repo, gateway, cfg.BookingRetryAttempts, logger.ForComponent(log, "booking"))
	shifter := booking.NewShifter(repo, logger.ForComponent(log, "shifter"))
	breaks := booking.NewBreakWorkflow(repo, shifter, logger.ForComponent(log, "breaks"))

	router := api.NewRouter(api.RouterConfig{
		Bookings: bookings,
		Breaks:   breaks,
		PgPool:   pgPool,
		Redis:    rdb,
		Log:      logger.ForComponent(log, "http"),
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	log.Info("api-server stopped")
}
