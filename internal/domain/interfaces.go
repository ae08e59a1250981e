package domain

import (
	"context"
	"time"
)

// SourceFetcher получает сырые кандидаты из внешнего источника по запросу.
type SourceFetcher interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]CandidateItem, error)
}

// ArticleRepo управляет статьями.
type ArticleRepo interface {
	InsertArticle(ctx context.Context, article Article) (Article, error)
	ListArticles(ctx context.Context, offset, limit int) ([]Article, error)
	GetArticleByID(ctx context.Context, id string) (Article, error)
	MarkArticleRead(ctx context.Context, id string) error
}

// ArticleFeed — клиентская сторона хранилища: чтение и живая подписка.
// События вставок доставляются at-least-once в порядке коммитов;
// подписчик обязан игнорировать повтор уже известного ID.
type ArticleFeed interface {
	List(ctx context.Context, offset, limit int) ([]Article, error)
	GetByID(ctx context.Context, id string) (Article, error)
	Subscribe(fn func(Article)) (unsubscribe func())
}

// ArticleStore — долговременное хранилище статей с фанаутом вставок.
// Вставка коммитится строго до оповещения подписчиков.
type ArticleStore interface {
	Insert(ctx context.Context, article Article) (Article, error)
	ArticleFeed
}

// NotificationRepo управляет уведомлениями.
type NotificationRepo interface {
	// CreateNotification возвращает false, если уведомление для статьи уже есть.
	CreateNotification(ctx context.Context, n Notification) (bool, error)
	ListUnsent(ctx context.Context, limit int) ([]Notification, error)
	MarkSent(ctx context.Context, id string) error
}

// SubscriptionRepo управляет push-подписками устройств.
type SubscriptionRepo interface {
	SaveSubscription(ctx context.Context, sub PushSubscription) error
	ListSubscriptions(ctx context.Context) ([]PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// SettingsRepo сохраняет пользовательские настройки.
type SettingsRepo interface {
	SaveUserSettings(ctx context.Context, settings FilterSettings) error
}

// PushSender отправляет один пуш на одну подписку.
// Возвращает ErrSubscriptionGone, если транспорт сообщил о перманентной ошибке.
type PushSender interface {
	Send(ctx context.Context, sub PushSubscription, payload PushPayload) error
}

// ReadState — персистентный клиентский набор прочитанных ID.
// Принадлежит исключительно клиентскому процессу и никогда не затирается синком.
type ReadState interface {
	ReadArticles() (map[string]struct{}, error)
	MarkArticleRead(id string) error
	ReadNotifications() (map[string]struct{}, error)
	MarkNotificationRead(id string) error
}

// RemoteReadMarker — необязательная best-effort удалённая пометка прочитанности.
type RemoteReadMarker interface {
	MarkArticleRead(ctx context.Context, id string) error
}

// Cache используется для простых TTL-хранилищ и run-lock джоб.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
