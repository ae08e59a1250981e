package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
)

type stubStore struct {
	seen     map[string]struct{}
	inserted []domain.Article
	failURL  string
}

func newStubStore() *stubStore {
	return &stubStore{seen: make(map[string]struct{})}
}

func (s *stubStore) Insert(_ context.Context, article domain.Article) (domain.Article, error) {
	if article.URL == s.failURL {
		return domain.Article{}, errors.New("временная ошибка БД")
	}
	if _, ok := s.seen[article.URL]; ok {
		return domain.Article{}, domain.ErrDuplicateURL
	}
	s.seen[article.URL] = struct{}{}
	s.inserted = append(s.inserted, article)
	return article, nil
}

func (s *stubStore) List(context.Context, int, int) ([]domain.Article, error) { return nil, nil }
func (s *stubStore) GetByID(context.Context, string) (domain.Article, error) {
	return domain.Article{}, domain.ErrArticleNotFound
}
func (s *stubStore) Subscribe(func(domain.Article)) func() { return func() {} }

type stubFetcher struct {
	name  string
	items []domain.CandidateItem
	err   error
}

func (f *stubFetcher) Name() string { return f.name }
func (f *stubFetcher) Fetch(context.Context, string) ([]domain.CandidateItem, error) {
	return f.items, f.err
}

func TestRunDedupByURL(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{name: "test", items: []domain.CandidateItem{
		{Title: "산불 A", URL: "https://news/a"},
		{Title: "산불 B", URL: "https://news/b"},
		{Title: "산불 A повтор", URL: "https://news/a"},
	}}
	service := NewService(store, []domain.SourceFetcher{fetcher}, []string{"산불"}, zerolog.Nop())

	stats, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Examined != 3 {
		t.Fatalf("ожидали 3 проверенных, получили %d", stats.Examined)
	}
	if stats.Inserted != 2 {
		t.Fatalf("ожидали 2 вставки, получили %d", stats.Inserted)
	}
}

func TestRunSecondPassInsertsNothing(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{name: "test", items: []domain.CandidateItem{
		{Title: "산불 A", URL: "https://news/a"},
	}}
	service := NewService(store, []domain.SourceFetcher{fetcher}, []string{"산불"}, zerolog.Nop())

	if _, err := service.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	stats, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Inserted != 0 {
		t.Fatalf("повторный проход идемпотентен, получили %d вставок", stats.Inserted)
	}
}

func TestRunFetcherErrorDoesNotAbort(t *testing.T) {
	store := newStubStore()
	broken := &stubFetcher{name: "broken", err: errors.New("источник недоступен")}
	working := &stubFetcher{name: "working", items: []domain.CandidateItem{
		{Title: "호우", URL: "https://news/rain"},
	}}
	service := NewService(store, []domain.SourceFetcher{broken, working}, []string{"호우"}, zerolog.Nop())

	stats, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("ошибка источника не должна прерывать проход: %v", err)
	}
	if stats.Inserted != 1 {
		t.Fatalf("ожидали 1 вставку из рабочего источника, получили %d", stats.Inserted)
	}
}

func TestRunInsertErrorDoesNotAbortBatch(t *testing.T) {
	store := newStubStore()
	store.failURL = "https://news/bad"
	fetcher := &stubFetcher{name: "test", items: []domain.CandidateItem{
		{Title: "A", URL: "https://news/bad"},
		{Title: "B", URL: "https://news/ok"},
	}}
	service := NewService(store, []domain.SourceFetcher{fetcher}, []string{"태풍"}, zerolog.Nop())

	stats, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Examined != 2 || stats.Inserted != 1 {
		t.Fatalf("ожидали 2/1, получили %d/%d", stats.Examined, stats.Inserted)
	}
}

func TestRunNoFetchers(t *testing.T) {
	service := NewService(newStubStore(), nil, []string{"산불"}, zerolog.Nop())
	if _, err := service.Run(context.Background()); !errors.Is(err, ErrNoFetchers) {
		t.Fatalf("ожидали ErrNoFetchers, получили %v", err)
	}
}

func TestNewArticleDefaults(t *testing.T) {
	article := newArticle(domain.CandidateItem{Title: "A", URL: "https://news/a"}, "naver")
	if article.ID == "" {
		t.Fatalf("ожидали присвоенный ID")
	}
	if article.PublishedAt.IsZero() {
		t.Fatalf("ожидали publishedAt по времени наблюдения")
	}
	if article.Source != "naver" {
		t.Fatalf("ожидали источник по имени фетчера, получили %q", article.Source)
	}
}

func TestFormatResult(t *testing.T) {
	msg := FormatResult(domain.IngestStats{Examined: 3, Inserted: 2})
	if !strings.Contains(msg, "3") || !strings.Contains(msg, "2") {
		t.Fatalf("итог должен содержать счётчики: %q", msg)
	}
}
