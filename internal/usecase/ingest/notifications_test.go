package ingest

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
)

type stubNotificationRepo struct {
	byArticle map[string]domain.Notification
	calls     int
}

func newStubNotificationRepo() *stubNotificationRepo {
	return &stubNotificationRepo{byArticle: make(map[string]domain.Notification)}
}

func (s *stubNotificationRepo) CreateNotification(_ context.Context, n domain.Notification) (bool, error) {
	s.calls++
	if _, ok := s.byArticle[n.ArticleID]; ok {
		return false, nil
	}
	s.byArticle[n.ArticleID] = n
	return true, nil
}

func (s *stubNotificationRepo) ListUnsent(context.Context, int) ([]domain.Notification, error) {
	return nil, nil
}

func (s *stubNotificationRepo) MarkSent(context.Context, string) error { return nil }

func TestGeneratorCreatesOnePerArticle(t *testing.T) {
	repo := newStubNotificationRepo()
	generator := NewGenerator(repo, zerolog.Nop())

	article := domain.Article{ID: "a1", Title: "산불 속보", Content: "야산에서 화재 발생"}
	generator.OnArticleInserted(article)
	generator.OnArticleInserted(article)

	if len(repo.byArticle) != 1 {
		t.Fatalf("ожидали одно уведомление на статью, получили %d", len(repo.byArticle))
	}
	n := repo.byArticle["a1"]
	if n.Title != article.Title {
		t.Fatalf("ожидали заголовок статьи, получили %q", n.Title)
	}
	if n.Sent {
		t.Fatalf("новое уведомление не должно быть отправленным")
	}
}

func TestGeneratorTruncatesBody(t *testing.T) {
	repo := newStubNotificationRepo()
	generator := NewGenerator(repo, zerolog.Nop())

	long := strings.Repeat("침수 ", 200)
	generator.OnArticleInserted(domain.Article{ID: "a2", Title: "호우", Content: long})

	body := repo.byArticle["a2"].Body
	if utf8.RuneCountInString(body) > notificationBodyLimit+1 {
		t.Fatalf("тело должно быть усечено, получили %d рун", utf8.RuneCountInString(body))
	}
	if !strings.HasSuffix(body, "…") {
		t.Fatalf("усечённое тело должно заканчиваться многоточием")
	}
}

func TestTruncateShortTextUntouched(t *testing.T) {
	if got := truncate("короткий текст", notificationBodyLimit); got != "короткий текст" {
		t.Fatalf("короткий текст не должен меняться, получили %q", got)
	}
}
