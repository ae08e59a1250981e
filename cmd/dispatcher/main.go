package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"disaster-news-hub/internal/adapters/push"
	"disaster-news-hub/internal/adapters/repo"
	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/cache"
	"disaster-news-hub/internal/infra/config"
	"disaster-news-hub/internal/infra/db"
	applog "disaster-news-hub/internal/infra/log"
	"disaster-news-hub/internal/infra/metrics"
	"disaster-news-hub/internal/infra/sched"
	dispatchusecase "disaster-news-hub/internal/usecase/dispatch"
)

const dispatchLockKey = "dispatch_run"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	if cfg.Push.VAPIDPublicKey == "" || cfg.Push.VAPIDPrivateKey == "" {
		logger.Fatal().Msg("dispatcher: не заданы VAPID-ключи (PUBLIC_VAPID_KEY, PRIVATE_VAPID_KEY)")
	}
	sender := push.NewWebPush(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
	})
	dispatchService := dispatchusecase.NewService(repoAdapter, repoAdapter, sender,
		logger.With().Str("component", "dispatch").Logger(), cfg.Push.BatchLimit)

	var runLock domain.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		runLock = cache.NewRedis(redisClient)
	} else {
		logger.Warn().Msg("dispatcher: Redis не настроен, run-lock отключён")
	}

	run := func() {
		stats, err := dispatchService.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("dispatcher: цикл не удался")
			return
		}
		if stats.Sent > 0 || stats.Failed > 0 {
			logger.Info().Int("sent", stats.Sent).Int("failed", stats.Failed).Msg("dispatcher: цикл завершён")
		}
	}

	runOnce := func() {
		if runLock == nil {
			run()
			return
		}
		if err := runLock.Once(dispatchLockKey, cfg.Push.LockTTL, func() error { run(); return nil }); err != nil {
			logger.Error().Err(err).Msg("dispatcher: run-lock недоступен")
		}
	}

	ticker := sched.NewTicker(cfg.Push.Interval)
	if err := ticker.Start(ctx, func(time.Time) { runOnce() }); err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: планировщик не запустился")
	}

	logger.Info().Dur("interval", cfg.Push.Interval).Msg("dispatcher: старт")
	runOnce()

	<-ctx.Done()
	ticker.Stop()
	logger.Info().Msg("dispatcher: остановлен")
}
