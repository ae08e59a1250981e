package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// ErrNoFetchers возвращается, если инжесту не передан ни один источник.
var ErrNoFetchers = errors.New("не настроен ни один источник новостей")

// Service — дедуп-инжест: обходит источники по ключевым словам и вставляет
// только новые статьи. Фанаут и генерация уведомлений запускаются событием
// вставки в хранилище, а не самим инжестом.
type Service struct {
	store    domain.ArticleStore
	fetchers []domain.SourceFetcher
	keywords []string
	log      zerolog.Logger
}

// NewService создаёт сервис инжеста.
func NewService(store domain.ArticleStore, fetchers []domain.SourceFetcher, keywords []string, logger zerolog.Logger) *Service {
	return &Service{store: store, fetchers: fetchers, keywords: keywords, log: logger}
}

// Run выполняет один проход инжеста и возвращает счётчики.
// Ошибка по одному элементу или источнику логируется и не прерывает батч:
// повторный запуск идемпотентен благодаря уникальности url.
func (s *Service) Run(ctx context.Context) (domain.IngestStats, error) {
	if len(s.fetchers) == 0 {
		return domain.IngestStats{}, ErrNoFetchers
	}

	runStart := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(runStart).Seconds()) }()

	var stats domain.IngestStats
	for _, fetcher := range s.fetchers {
		for _, keyword := range s.keywords {
			items, err := fetcher.Fetch(ctx, keyword)
			if err != nil {
				metrics.CrawlerErrors.Inc()
				s.log.Error().Err(err).Str("source", fetcher.Name()).Str("query", keyword).Msg("инжест: ошибка источника")
				continue
			}
			examined, inserted := s.ingestBatch(ctx, fetcher.Name(), items)
			stats.Examined += examined
			stats.Inserted += inserted
		}
	}
	return stats, nil
}

func (s *Service) ingestBatch(ctx context.Context, sourceName string, items []domain.CandidateItem) (examined, inserted int) {
	for _, item := range items {
		examined++
		metrics.ArticlesExamined.Inc()

		_, err := s.store.Insert(ctx, newArticle(item, sourceName))
		if errors.Is(err, domain.ErrDuplicateURL) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("url", item.URL).Msg("инжест: ошибка вставки статьи")
			continue
		}
		inserted++
		metrics.ArticlesIngested.Inc()
	}
	return examined, inserted
}

// newArticle присваивает кандидату свежий ID; publishedAt — время наблюдения
// краулером, если источник не отдал надёжного оригинального времени.
func newArticle(item domain.CandidateItem, sourceName string) domain.Article {
	published := item.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}
	source := item.Source
	if source == "" {
		source = sourceName
	}
	return domain.Article{
		ID:          uuid.NewString(),
		Title:       item.Title,
		Content:     item.Content,
		Source:      source,
		URL:         item.URL,
		ImageURL:    item.ImageURL,
		Category:    item.Category,
		PublishedAt: published,
	}
}

// FormatResult возвращает человекочитаемый итог прохода для HTTP-ответа.
func FormatResult(stats domain.IngestStats) string {
	return fmt.Sprintf("проверено %d кандидатов, добавлено %d новых статей", stats.Examined, stats.Inserted)
}
