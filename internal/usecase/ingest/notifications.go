package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

const notificationBodyLimit = 160

// Generator создаёт уведомление для каждой подтверждённо новой статьи.
// Подписывается на события вставки хранилища; повторное наблюдение той же
// статьи безопасно: уникальность article_id гарантирует не более одного
// уведомления, а неудачная попытка компенсируется следующим проходом инжеста.
type Generator struct {
	notifications domain.NotificationRepo
	log           zerolog.Logger
}

// NewGenerator создаёт генератор уведомлений.
func NewGenerator(notifications domain.NotificationRepo, logger zerolog.Logger) *Generator {
	return &Generator{notifications: notifications, log: logger}
}

// OnArticleInserted — колбэк для ArticleStore.Subscribe.
// Ошибка создания логируется и не прерывает инжест.
func (g *Generator) OnArticleInserted(article domain.Article) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := g.notifications.CreateNotification(ctx, domain.Notification{
		ID:        uuid.NewString(),
		ArticleID: article.ID,
		Title:     article.Title,
		Body:      truncate(article.Content, notificationBodyLimit),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		g.log.Error().Err(err).Str("article", article.ID).Msg("уведомления: ошибка создания")
		return
	}
	if created {
		metrics.NotificationsCreated.Inc()
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
