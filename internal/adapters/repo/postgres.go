package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ArticleRepo      = (*Postgres)(nil)
	_ domain.NotificationRepo = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
	_ domain.SettingsRepo     = (*Postgres)(nil)
	_ domain.RemoteReadMarker = (*Postgres)(nil)
)

const pgUniqueViolation = "23505"

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// InsertArticle вставляет статью; при конфликте url возвращает ErrDuplicateURL.
func (p *Postgres) InsertArticle(ctx context.Context, article domain.Article) (domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		imageURL sql.NullString
		category sql.NullString
	)
	if article.ImageURL != "" {
		imageURL = sql.NullString{String: article.ImageURL, Valid: true}
	}
	if article.Category != "" {
		category = sql.NullString{String: article.Category, Valid: true}
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO news_articles (id, title, content, source, url, image_url, published_at, category)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING created_at
`, article.ID, article.Title, article.Content, article.Source, article.URL, imageURL, article.PublishedAt, category).Scan(&article.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "news_articles_insert", "news_articles", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Article{}, domain.ErrDuplicateURL
		}
		return domain.Article{}, err
	}
	return article, nil
}

// ListArticles возвращает статьи, новые сначала.
func (p *Postgres) ListArticles(ctx context.Context, offset, limit int) ([]domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, content, source, url, image_url, published_at, category, is_read, created_at
FROM news_articles
ORDER BY published_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "news_articles_list", "news_articles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// GetArticleByID возвращает статью по ID.
func (p *Postgres) GetArticleByID(ctx context.Context, id string) (domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, title, content, source, url, image_url, published_at, category, is_read, created_at
FROM news_articles WHERE id=$1
`, id)
	article, err := scanArticle(row)
	metrics.ObserveNetworkRequest("postgres", "news_articles_get", "news_articles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	return article, err
}

// MarkArticleRead помечает статью прочитанной (неавторитетный серверный флаг).
func (p *Postgres) MarkArticleRead(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE news_articles SET is_read=true WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "news_articles_mark_read", "news_articles", start, err)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article  domain.Article
		imageURL sql.NullString
		category sql.NullString
	)
	err := row.Scan(&article.ID, &article.Title, &article.Content, &article.Source, &article.URL,
		&imageURL, &article.PublishedAt, &category, &article.IsRead, &article.CreatedAt)
	if err != nil {
		return domain.Article{}, err
	}
	if imageURL.Valid {
		article.ImageURL = imageURL.String
	}
	if category.Valid {
		article.Category = category.String
	}
	return article, nil
}

// CreateNotification создаёт уведомление для статьи, если его ещё нет.
// Дедуп обеспечивает уникальный индекс по article_id, а не read-then-write.
func (p *Postgres) CreateNotification(ctx context.Context, n domain.Notification) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO notifications (id, article_id, title, body, ts, is_read, sent)
VALUES ($1,$2,$3,$4,$5,false,false)
ON CONFLICT (article_id) DO NOTHING
`, n.ID, n.ArticleID, n.Title, n.Body, n.Timestamp)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnsent возвращает неотправленные уведомления, старые сначала.
func (p *Postgres) ListUnsent(ctx context.Context, limit int) ([]domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, article_id, title, body, ts, is_read, sent
FROM notifications WHERE sent=false
ORDER BY ts ASC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "notifications_list_unsent", "notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.ArticleID, &n.Title, &n.Body, &n.Timestamp, &n.IsRead, &n.Sent); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkSent помечает уведомление отправленным. Обратного перехода нет.
func (p *Postgres) MarkSent(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE notifications SET sent=true WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_sent", "notifications", start, err)
	return err
}

// SaveSubscription сохраняет push-подписку (upsert по endpoint).
func (p *Postgres) SaveSubscription(ctx context.Context, sub domain.PushSubscription) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	keys, err := json.Marshal(sub.Keys)
	if err != nil {
		return fmt.Errorf("сериализация ключей подписки: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO push_subscriptions (user_id, endpoint, keys)
VALUES ($1,$2,$3)
ON CONFLICT (endpoint) DO UPDATE SET user_id=EXCLUDED.user_id, keys=EXCLUDED.keys
`, sub.UserID, sub.Endpoint, keys)
	metrics.ObserveNetworkRequest("postgres", "push_subscriptions_upsert", "push_subscriptions", start, err)
	return err
}

// ListSubscriptions возвращает все активные push-подписки.
func (p *Postgres) ListSubscriptions(ctx context.Context) ([]domain.PushSubscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT user_id, endpoint, keys FROM push_subscriptions`)
	metrics.ObserveNetworkRequest("postgres", "push_subscriptions_list", "push_subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var (
			sub  domain.PushSubscription
			keys []byte
		)
		if err := rows.Scan(&sub.UserID, &sub.Endpoint, &keys); err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			if err := json.Unmarshal(keys, &sub.Keys); err != nil {
				return nil, fmt.Errorf("разбор ключей подписки %s: %w", sub.Endpoint, err)
			}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscriptionByEndpoint удаляет подписку с мёртвым endpoint.
func (p *Postgres) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint=$1`, endpoint)
	metrics.ObserveNetworkRequest("postgres", "push_subscriptions_delete", "push_subscriptions", start, err)
	return err
}

// SaveUserSettings сохраняет настройки пользователя (upsert).
func (p *Postgres) SaveUserSettings(ctx context.Context, settings domain.FilterSettings) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_settings (user_id, keywords, sources, refresh_interval, updated_at)
VALUES ($1,$2,$3,$4,now())
ON CONFLICT (user_id) DO UPDATE
    SET keywords=EXCLUDED.keywords,
        sources=EXCLUDED.sources,
        refresh_interval=EXCLUDED.refresh_interval,
        updated_at=now()
`, settings.UserID, settings.Keywords, settings.Sources, settings.RefreshInterval)
	metrics.ObserveNetworkRequest("postgres", "user_settings_upsert", "user_settings", start, err)
	return err
}
