package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	CrawlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_errors_total",
		Help: "Ошибки при обходе источников новостей",
	})
	ArticlesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "articles_ingested_total",
		Help: "Количество новых статей, добавленных инжестом",
	})
	ArticlesExamined = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "articles_examined_total",
		Help: "Количество кандидатов, проверенных инжестом",
	})
	NotificationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Количество созданных уведомлений",
	})
	FanoutEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_events_total",
		Help: "Количество событий вставки, разосланных подписчикам",
	})
	PushSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_send_errors_total",
		Help: "Ошибки отправки web push",
	})
	SubscriptionsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_subscriptions_pruned_total",
		Help: "Количество удалённых мёртвых push-подписок",
	})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_run_seconds",
		Help:    "Время одного прохода инжеста",
		Buckets: prometheus.DefBuckets,
	})
	DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_run_seconds",
		Help:    "Время одного цикла диспетчера пушей",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		CrawlerErrors,
		ArticlesIngested,
		ArticlesExamined,
		NotificationsCreated,
		FanoutEvents,
		PushSendErrors,
		SubscriptionsPruned,
		IngestDuration,
		DispatchDuration,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
