package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"disaster-news-hub/internal/adapters/fanout"
	"disaster-news-hub/internal/adapters/naver"
	"disaster-news-hub/internal/adapters/repo"
	"disaster-news-hub/internal/adapters/rss"
	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/cache"
	"disaster-news-hub/internal/infra/config"
	"disaster-news-hub/internal/infra/db"
	applog "disaster-news-hub/internal/infra/log"
	"disaster-news-hub/internal/infra/metrics"
	"disaster-news-hub/internal/infra/sched"
	ingestusecase "disaster-news-hub/internal/usecase/ingest"
	newsusecase "disaster-news-hub/internal/usecase/news"
)

const ingestLockKey = "ingest_run"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if err := db.RunMigrations(cfg.PGDSN, cfg.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("crawler: миграции не применились")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("crawler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	store := newsusecase.NewStore(repoAdapter, logger.With().Str("component", "news_store").Logger())
	generator := ingestusecase.NewGenerator(repoAdapter, logger.With().Str("component", "notifications").Logger())
	store.Subscribe(generator.OnArticleInserted)

	var runLock domain.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		runLock = cache.NewRedis(redisClient)

		publisher := fanout.NewPublisher(redisClient, cfg.Fanout.Channel)
		store.Subscribe(func(article domain.Article) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Publish(pubCtx, article); err != nil {
				logger.Warn().Err(err).Str("article_id", article.ID).Msg("crawler: фанаут в Redis не удался")
			}
		})
	} else {
		logger.Warn().Msg("crawler: Redis не настроен, run-lock и фанаут отключены")
	}

	fetchers := []domain.SourceFetcher{naver.NewCrawler(&http.Client{Timeout: 10 * time.Second})}
	if len(cfg.Crawler.RSSFeeds) > 0 {
		fetchers = append(fetchers, rss.NewFetcher(cfg.Crawler.RSSFeeds, logger.With().Str("component", "rss").Logger()))
	}
	ingestService := ingestusecase.NewService(store, fetchers, cfg.Crawler.Keywords, logger.With().Str("component", "ingest").Logger())

	run := func() {
		stats, err := ingestService.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("crawler: проход инжеста не удался")
			return
		}
		logger.Info().Int("examined", stats.Examined).Int("inserted", stats.Inserted).Msg("crawler: проход завершён")
	}

	ticker := sched.NewTicker(cfg.Crawler.Interval)
	err = ticker.Start(ctx, func(time.Time) {
		runOnce(logger, runLock, cfg.Crawler.LockTTL, run)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("crawler: планировщик не запустился")
	}

	logger.Info().Dur("interval", cfg.Crawler.Interval).Msg("crawler: старт")
	runOnce(logger, runLock, cfg.Crawler.LockTTL, run)

	<-ctx.Done()
	ticker.Stop()
	logger.Info().Msg("crawler: остановлен")
}

// runOnce выполняет джобу под run-lock'ом, если он настроен.
func runOnce(logger zerolog.Logger, lock domain.Cache, ttl time.Duration, run func()) {
	if lock == nil {
		run()
		return
	}
	err := lock.Once(ingestLockKey, ttl, func() error {
		run()
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("crawler: run-lock недоступен")
	}
}
