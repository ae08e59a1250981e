package news

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
)

type stubArticleRepo struct {
	byURL    map[string]domain.Article
	inserted []domain.Article
}

func newStubArticleRepo() *stubArticleRepo {
	return &stubArticleRepo{byURL: make(map[string]domain.Article)}
}

func (s *stubArticleRepo) InsertArticle(_ context.Context, article domain.Article) (domain.Article, error) {
	if _, ok := s.byURL[article.URL]; ok {
		return domain.Article{}, domain.ErrDuplicateURL
	}
	s.byURL[article.URL] = article
	s.inserted = append(s.inserted, article)
	return article, nil
}

func (s *stubArticleRepo) ListArticles(context.Context, int, int) ([]domain.Article, error) {
	return s.inserted, nil
}

func (s *stubArticleRepo) GetArticleByID(_ context.Context, id string) (domain.Article, error) {
	for _, a := range s.inserted {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Article{}, domain.ErrArticleNotFound
}

func (s *stubArticleRepo) MarkArticleRead(context.Context, string) error { return nil }

func TestInsertNotifiesInCommitOrder(t *testing.T) {
	repo := newStubArticleRepo()
	store := NewStore(repo, zerolog.Nop())

	var got []string
	store.Subscribe(func(a domain.Article) {
		got = append(got, a.ID)
	})

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Insert(context.Background(), domain.Article{ID: id, URL: "https://n/" + id}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("ожидали события в порядке коммитов, получили %v", got)
	}
}

func TestInsertCommitsBeforeNotify(t *testing.T) {
	repo := newStubArticleRepo()
	store := NewStore(repo, zerolog.Nop())

	store.Subscribe(func(a domain.Article) {
		// к моменту события статья уже видна через репозиторий
		if _, err := repo.GetArticleByID(context.Background(), a.ID); err != nil {
			t.Fatalf("событие пришло раньше коммита: %v", err)
		}
	})

	if _, err := store.Insert(context.Background(), domain.Article{ID: "a", URL: "https://n/a"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestInsertDuplicateURLNoEvent(t *testing.T) {
	repo := newStubArticleRepo()
	store := NewStore(repo, zerolog.Nop())

	events := 0
	store.Subscribe(func(domain.Article) { events++ })

	if _, err := store.Insert(context.Background(), domain.Article{ID: "a", URL: "https://n/same"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := store.Insert(context.Background(), domain.Article{ID: "b", URL: "https://n/same"}); err != domain.ErrDuplicateURL {
		t.Fatalf("ожидали ErrDuplicateURL, получили %v", err)
	}
	if events != 1 {
		t.Fatalf("дубликат не должен рождать событие, получили %d", events)
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	repo := newStubArticleRepo()
	store := NewStore(repo, zerolog.Nop())

	events := 0
	unsubscribe := store.Subscribe(func(domain.Article) { events++ })

	if _, err := store.Insert(context.Background(), domain.Article{ID: "a", URL: "https://n/a"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	unsubscribe()
	if _, err := store.Insert(context.Background(), domain.Article{ID: "b", URL: "https://n/b"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if events != 1 {
		t.Fatalf("после отписки событий быть не должно, получили %d", events)
	}
}

func TestSubscribeReentrantFromCallback(t *testing.T) {
	repo := newStubArticleRepo()
	store := NewStore(repo, zerolog.Nop())

	lateEvents := 0
	store.Subscribe(func(domain.Article) {
		// регистрация изнутри рассылки не должна ломать реестр
		store.Subscribe(func(domain.Article) { lateEvents++ })
	})

	if _, err := store.Insert(context.Background(), domain.Article{ID: "a", URL: "https://n/a"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := store.Insert(context.Background(), domain.Article{ID: "b", URL: "https://n/b"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if lateEvents == 0 {
		t.Fatalf("поздний подписчик должен получать последующие события")
	}
}
