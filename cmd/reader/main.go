package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"disaster-news-hub/internal/adapters/fanout"
	"disaster-news-hub/internal/adapters/repo"
	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/config"
	"disaster-news-hub/internal/infra/db"
	applog "disaster-news-hub/internal/infra/log"
	"disaster-news-hub/internal/infra/metrics"
	"disaster-news-hub/internal/mirror"
)

// reader — клиентский демон: живое зеркало ленты поверх БД и Redis-фанаута
// с локальной прочитанностью в sqlite.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("reader: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	readState, err := mirror.OpenReadState(cfg.Reader.StatePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("reader: не удалось открыть файл состояния")
	}
	defer readState.Close()

	feed := newLiveFeed(repoAdapter)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		subscriber := fanout.NewSubscriber(redisClient, cfg.Fanout.Channel, logger.With().Str("component", "fanout").Logger())
		go func() {
			if err := subscriber.Run(ctx, feed.deliver); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("reader: подписка Redis завершилась")
			}
		}()
	} else {
		logger.Warn().Msg("reader: Redis не настроен, живых событий не будет")
	}

	newsMirror := mirror.NewNewsMirror(feed, readState, repoAdapter, logger.With().Str("component", "news_mirror").Logger())
	defer newsMirror.Close()
	notifMirror := mirror.NewNotificationMirror(readState, logger.With().Str("component", "notif_mirror").Logger())

	// каждая живая статья рождает локальное уведомление в кэше
	feed.Subscribe(func(article domain.Article) {
		notifMirror.Add(domain.Notification{
			ID:        uuid.NewString(),
			ArticleID: article.ID,
			Title:     article.Title,
			Body:      article.Content,
			Timestamp: article.PublishedAt,
		})
	})

	newsMirror.AddListener(func() {
		logger.Info().
			Str("state", newsMirror.State().String()).
			Int("articles", len(newsMirror.Articles())).
			Int("unread", newsMirror.UnreadCount()).
			Int("unread_notifications", notifMirror.UnreadCount()).
			Msg("reader: зеркало обновилось")
	})

	if err := newsMirror.Init(ctx); err != nil {
		logger.Error().Err(err).Msg("reader: первичный синк не удался, продолжаем с автообновлением")
	}
	if err := newsMirror.StartAutoRefresh(ctx, cfg.Reader.RefreshInterval); err != nil {
		logger.Fatal().Err(err).Msg("reader: автообновление не запустилось")
	}

	logger.Info().Dur("interval", cfg.Reader.RefreshInterval).Msg("reader: старт")
	<-ctx.Done()
	logger.Info().Msg("reader: остановлен")
}

// liveFeed — ArticleFeed поверх репозитория: чтение из БД, живые события
// приходят извне через deliver (Redis-фанаут).
type liveFeed struct {
	repo domain.ArticleRepo

	mu   sync.Mutex
	subs map[int64]func(domain.Article)
	next int64
}

var _ domain.ArticleFeed = (*liveFeed)(nil)

func newLiveFeed(repo domain.ArticleRepo) *liveFeed {
	return &liveFeed{repo: repo, subs: make(map[int64]func(domain.Article))}
}

func (f *liveFeed) List(ctx context.Context, offset, limit int) ([]domain.Article, error) {
	return f.repo.ListArticles(ctx, offset, limit)
}

func (f *liveFeed) GetByID(ctx context.Context, id string) (domain.Article, error) {
	return f.repo.GetArticleByID(ctx, id)
}

func (f *liveFeed) Subscribe(fn func(domain.Article)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *liveFeed) deliver(article domain.Article) {
	f.mu.Lock()
	snapshot := make([]func(domain.Article), 0, len(f.subs))
	for _, fn := range f.subs {
		snapshot = append(snapshot, fn)
	}
	f.mu.Unlock()
	for _, fn := range snapshot {
		fn(article)
	}
}
