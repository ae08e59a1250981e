package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// Publisher транслирует события вставки статей в канал Redis Pub/Sub.
// Межпроцессная половина фанаута: вставка уже закоммичена к моменту публикации.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher создаёт издателя для указанного канала.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish публикует статью.
func (p *Publisher) Publish(ctx context.Context, article domain.Article) error {
	payload, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}
	start := time.Now()
	err = p.client.Publish(ctx, p.channel, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", p.channel, start, err)
	if err != nil {
		return fmt.Errorf("публикация события: %w", err)
	}
	return nil
}

// Subscriber доставляет события вставок клиентским процессам.
type Subscriber struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewSubscriber создаёт подписчика на канал.
func NewSubscriber(client *redis.Client, channel string, logger zerolog.Logger) *Subscriber {
	return &Subscriber{client: client, channel: channel, log: logger}
}

// Run блокирующе читает канал и вызывает fn для каждой статьи.
// Битое сообщение логируется и пропускается.
func (s *Subscriber) Run(ctx context.Context, fn func(domain.Article)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var article domain.Article
			if err := json.Unmarshal([]byte(msg.Payload), &article); err != nil {
				s.log.Error().Err(err).Msg("fanout: не удалось разобрать событие")
				continue
			}
			fn(article)
		}
	}
}
