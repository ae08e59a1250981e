package rss

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// Fetcher собирает кандидатов из настроенных RSS-фидов.
type Fetcher struct {
	parser *gofeed.Parser
	feeds  []string
	log    zerolog.Logger
}

var _ domain.SourceFetcher = (*Fetcher)(nil)

// NewFetcher создаёт источник по списку URL фидов.
func NewFetcher(feeds []string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{parser: gofeed.NewParser(), feeds: feeds, log: logger}
}

// Name идентифицирует источник.
func (f *Fetcher) Name() string {
	return "rss"
}

// Fetch обходит все фиды и возвращает элементы, совпавшие с запросом.
// Ошибка одного фида логируется и не прерывает обход остальных.
func (f *Fetcher) Fetch(ctx context.Context, query string) ([]domain.CandidateItem, error) {
	var items []domain.CandidateItem
	for _, feedURL := range f.feeds {
		start := time.Now()
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		metrics.ObserveNetworkRequest("rss", "parse", feedURL, start, err)
		if err != nil {
			f.log.Error().Err(err).Str("feed", feedURL).Msg("rss: ошибка чтения фида")
			continue
		}
		for _, item := range feed.Items {
			if item.Link == "" || item.Title == "" || !matches(item, query) {
				continue
			}
			candidate := domain.CandidateItem{
				Title:    item.Title,
				URL:      item.Link,
				Content:  item.Description,
				Source:   feed.Title,
				Category: query,
			}
			if item.PublishedParsed != nil {
				candidate.PublishedAt = item.PublishedParsed.UTC()
			}
			if item.Image != nil {
				candidate.ImageURL = item.Image.URL
			}
			items = append(items, candidate)
		}
	}
	return items, nil
}

func matches(item *gofeed.Item, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(item.Title, query) || strings.Contains(item.Description, query)
}
