// The worker runs the reservation sweeper: a periodic task that trims expired
// cart holds so per-product availability sums stay tight. A Redis lock keeps
// concurrent workers from sweeping the same index at once.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-canteen/internal/config"
	"github.com/noah-isme/backend-canteen/internal/lock"
	"github.com/noah-isme/backend-canteen/internal/obs"
	"github.com/noah-isme/backend-canteen/internal/stock"
)

const taskReservationSweep = "reservation:sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "canteen"), nil)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	ledger := &stock.Ledger{
		Holds:          stock.RedisReservationStore{Client: redisClient},
		ReservationTTL: cfg.ReservationTTL,
		Logger:         &logger,
	}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}

	scheduler := asynq.NewScheduler(connOpt, nil)
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.SweepInterval),
		asynq.NewTask(taskReservationSweep, nil),
	); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskReservationSweep, func(ctx context.Context, _ *asynq.Task) error {
		release, err := locker.TryLock(ctx, "reservation-sweep", cfg.LockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return nil
			}
			return err
		}
		defer release()

		removed, err := ledger.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info().Int("removed", removed).Msg("swept expired reservations")
		}
		return nil
	})

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(connOpt, asynq.Config{Concurrency: 1})
	logger.Info().Dur("interval", cfg.SweepInterval).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
