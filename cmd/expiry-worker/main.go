package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/appointment"
	"github.com/clinicore/scheduling-engine/internal/clock"
	"github.com/clinicore/scheduling-engine/internal/config"
	"github.com/clinicore/scheduling-engine/internal/db"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "expiry-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	notifier := redisclient.NewRedisNotifier(rdb)
	svc := appointment.NewService(repo, redisclient.NoopLocker{}, notifier, clock.System(), cfg, log)

	// Run once at startup, then sweep on the ticker.
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireHolds(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("expiry run error")
		return
	}
	log.Info().Int("expired", n).Dur("took", time.Since(start)).Msg("expiry run complete")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
