package news

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// Store — хранилище статей с фанаутом вставок живым подписчикам.
// Вставка и оповещение сериализованы: внутри одного подписчика события
// приходят в порядке коммитов, и ни одно событие не уходит раньше коммита.
type Store struct {
	repo domain.ArticleRepo
	log  zerolog.Logger

	insertMu sync.Mutex

	mu     sync.Mutex
	subs   map[int64]func(domain.Article)
	nextID int64
}

var _ domain.ArticleStore = (*Store)(nil)

// NewStore создаёт хранилище поверх репозитория.
func NewStore(repo domain.ArticleRepo, logger zerolog.Logger) *Store {
	return &Store{repo: repo, log: logger, subs: make(map[int64]func(domain.Article))}
}

// Insert коммитит статью и затем рассылает событие подписчикам.
// При конфликте url возвращает domain.ErrDuplicateURL; событие не рассылается.
func (s *Store) Insert(ctx context.Context, article domain.Article) (domain.Article, error) {
	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	saved, err := s.repo.InsertArticle(ctx, article)
	if err != nil {
		return domain.Article{}, err
	}

	for _, fn := range s.snapshot() {
		fn(saved)
	}
	metrics.FanoutEvents.Inc()
	return saved, nil
}

// List возвращает статьи, новые сначала.
func (s *Store) List(ctx context.Context, offset, limit int) ([]domain.Article, error) {
	return s.repo.ListArticles(ctx, offset, limit)
}

// GetByID возвращает статью по ID.
func (s *Store) GetByID(ctx context.Context, id string) (domain.Article, error) {
	return s.repo.GetArticleByID(ctx, id)
}

// Subscribe регистрирует подписчика и возвращает функцию отписки.
// Регистрация и отписка безопасны изнутри колбэка другого подписчика.
func (s *Store) Subscribe(fn func(domain.Article)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// snapshot копирует список подписчиков: колбэки зовутся вне mu,
// поэтому мутации реестра во время рассылки реестр не ломают.
func (s *Store) snapshot() []func(domain.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(domain.Article), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}
