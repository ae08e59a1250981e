package naver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

const defaultBaseURL = "https://search.naver.com"

// Crawler разбирает страницу поиска новостей Naver по запросу.
type Crawler struct {
	client  *http.Client
	baseURL string
}

var _ domain.SourceFetcher = (*Crawler)(nil)

// NewCrawler связывает HTTP-клиент; таймаут по умолчанию 20 секунд.
func NewCrawler(client *http.Client) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Crawler{client: client, baseURL: defaultBaseURL}
}

// Name идентифицирует источник.
func (c *Crawler) Name() string {
	return "naver"
}

// Fetch возвращает кандидатов со страницы поиска по запросу.
func (c *Crawler) Fetch(ctx context.Context, query string) ([]domain.CandidateItem, error) {
	pageURL := fmt.Sprintf("%s/search.naver?where=news&query=%s", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveNetworkRequest("naver", "search", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("запрос поиска: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("поиск вернул статус %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("разбор HTML: %w", err)
	}

	return extractItems(doc, query), nil
}

func extractItems(doc *goquery.Document, query string) []domain.CandidateItem {
	var items []domain.CandidateItem
	doc.Find(".news_wrap").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".news_tit").Text())
		link, _ := sel.Find(".news_tit").Attr("href")
		if title == "" || link == "" {
			return
		}
		content := strings.TrimSpace(sel.Find(".news_dsc").Text())
		source := strings.TrimSpace(sel.Find(".info_group a.info").First().Text())
		imageURL, _ := sel.Find("img.thumb_img").Attr("src")

		items = append(items, domain.CandidateItem{
			Title:    title,
			URL:      link,
			Content:  content,
			Source:   source,
			ImageURL: imageURL,
			Category: query,
		})
	})
	return items
}
