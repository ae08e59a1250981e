package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"disaster-news-hub/internal/adapters/fanout"
	"disaster-news-hub/internal/adapters/naver"
	"disaster-news-hub/internal/adapters/push"
	"disaster-news-hub/internal/adapters/repo"
	"disaster-news-hub/internal/adapters/rss"
	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/config"
	"disaster-news-hub/internal/infra/db"
	httpinfra "disaster-news-hub/internal/infra/http"
	applog "disaster-news-hub/internal/infra/log"
	"disaster-news-hub/internal/infra/metrics"
	dispatchusecase "disaster-news-hub/internal/usecase/dispatch"
	ingestusecase "disaster-news-hub/internal/usecase/ingest"
	newsusecase "disaster-news-hub/internal/usecase/news"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if err := db.RunMigrations(cfg.PGDSN, cfg.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("api: миграции не применились")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	store := newsusecase.NewStore(repoAdapter, logger.With().Str("component", "news_store").Logger())
	generator := ingestusecase.NewGenerator(repoAdapter, logger.With().Str("component", "notifications").Logger())
	store.Subscribe(generator.OnArticleInserted)

	hub := newSSEHub()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		publisher := fanout.NewPublisher(redisClient, cfg.Fanout.Channel)
		store.Subscribe(func(article domain.Article) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Publish(pubCtx, article); err != nil {
				logger.Warn().Err(err).Str("article_id", article.ID).Msg("api: фанаут в Redis не удался")
			}
		})

		subscriber := fanout.NewSubscriber(redisClient, cfg.Fanout.Channel, logger.With().Str("component", "fanout").Logger())
		go func() {
			if err := subscriber.Run(ctx, hub.broadcast); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("api: подписка Redis завершилась")
			}
		}()
	} else {
		// без Redis живые события есть только от вставок этого процесса
		store.Subscribe(hub.broadcast)
	}

	fetchers := []domain.SourceFetcher{naver.NewCrawler(&http.Client{Timeout: 10 * time.Second})}
	if len(cfg.Crawler.RSSFeeds) > 0 {
		fetchers = append(fetchers, rss.NewFetcher(cfg.Crawler.RSSFeeds, logger.With().Str("component", "rss").Logger()))
	}
	ingestService := ingestusecase.NewService(store, fetchers, cfg.Crawler.Keywords, logger.With().Str("component", "ingest").Logger())

	sender := push.NewWebPush(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
	})
	dispatchService := dispatchusecase.NewService(repoAdapter, repoAdapter, sender,
		logger.With().Str("component", "dispatch").Logger(), cfg.Push.BatchLimit)

	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())

	srv.Router.Group(func(internal chi.Router) {
		internal.Use(middleware.Timeout(60 * time.Second))
		internal.Use(httpinfra.BearerAuthMiddleware(cfg.APISecret))

		internal.Post("/internal/crawl", func(w http.ResponseWriter, r *http.Request) {
			stats, err := ingestService.Run(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "инжест не удался")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": ingestusecase.FormatResult(stats),
			})
		})

		internal.Post("/internal/dispatch", func(w http.ResponseWriter, r *http.Request) {
			stats, err := dispatchService.Run(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "диспетчеризация не удалась")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"sent":    stats.Sent,
				"failed":  stats.Failed,
			})
		})
	})

	srv.Router.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))

		api.Get("/api/v1/articles", func(w http.ResponseWriter, r *http.Request) {
			offset := queryInt(r, "offset", 0)
			limit := queryInt(r, "limit", cfg.Limits.SyncWindow)
			if limit <= 0 || limit > 200 {
				limit = cfg.Limits.SyncWindow
			}
			articles, err := store.List(r.Context(), offset, limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось получить статьи")
				return
			}
			out := make([]articleResponse, 0, len(articles))
			for _, a := range articles {
				out = append(out, toArticleResponse(a))
			}
			writeJSON(w, http.StatusOK, out)
		})

		api.Get("/api/v1/articles/{id}", func(w http.ResponseWriter, r *http.Request) {
			article, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
			if errors.Is(err, domain.ErrArticleNotFound) {
				writeError(w, http.StatusNotFound, "статья не найдена")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось получить статью")
				return
			}
			writeJSON(w, http.StatusOK, toArticleResponse(article))
		})

		api.Post("/api/v1/articles/{id}/read", func(w http.ResponseWriter, r *http.Request) {
			if err := repoAdapter.MarkArticleRead(r.Context(), chi.URLParam(r, "id")); err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось пометить статью")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		api.Post("/api/v1/push/subscriptions", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req subscriptionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
				writeError(w, http.StatusBadRequest, "endpoint и ключи обязательны")
				return
			}
			sub := domain.PushSubscription{UserID: req.UserID, Endpoint: req.Endpoint, Keys: req.Keys}
			if err := repoAdapter.SaveSubscription(r.Context(), sub); err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось сохранить подписку")
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
		})

		api.Put("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req settingsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			if req.UserID == "" {
				writeError(w, http.StatusBadRequest, "user_id обязателен")
				return
			}
			settings := domain.FilterSettings{
				UserID:          req.UserID,
				Keywords:        req.Keywords,
				Sources:         req.Sources,
				RefreshInterval: req.RefreshInterval,
			}
			if err := repoAdapter.SaveUserSettings(r.Context(), settings); err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось сохранить настройки")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	// поток вне групп с таймаутом: живёт, пока жив клиент
	srv.Router.Get("/api/v1/articles/stream", hub.handler)

	go func() {
		logger.Info().Msg("api: старт")
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// sseHub раздаёт события вставок подключённым SSE-клиентам.
// Медленный клиент события теряет (канал с буфером, без блокировки рассылки);
// зеркало на той стороне обязано переживать пропуски через Refresh.
type sseHub struct {
	mu      sync.Mutex
	clients map[chan domain.Article]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[chan domain.Article]struct{})}
}

func (h *sseHub) broadcast(article domain.Article) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- article:
		default:
		}
	}
}

func (h *sseHub) handler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "поток не поддерживается")
		return
	}

	ch := make(chan domain.Article, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case article := <-ch:
			payload, err := json.Marshal(toArticleResponse(article))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: article\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

type articleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Category    string    `json:"category,omitempty"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toArticleResponse(a domain.Article) articleResponse {
	return articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Content:     a.Content,
		Source:      a.Source,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		PublishedAt: a.PublishedAt,
		Category:    a.Category,
		IsRead:      a.IsRead,
		CreatedAt:   a.CreatedAt,
	}
}

type subscriptionRequest struct {
	UserID   string                  `json:"user_id"`
	Endpoint string                  `json:"endpoint"`
	Keys     domain.SubscriptionKeys `json:"keys"`
}

type settingsRequest struct {
	UserID          string   `json:"user_id"`
	Keywords        []string `json:"keywords"`
	Sources         []string `json:"sources"`
	RefreshInterval int      `json:"refresh_interval"`
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
