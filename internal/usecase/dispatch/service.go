package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

const (
	defaultBatchLimit = 100
	pushIcon          = "/icons/fire-alert-icon.png"
)

// Service — батчевый диспетчер пушей.
// Семантика at-most-one-attempt-cycle: после обхода всех подписок уведомление
// помечается sent=true независимо от исходов, повторная доставка транзиентно
// упавших пушей этим конвейером не выполняется.
type Service struct {
	notifications domain.NotificationRepo
	subscriptions domain.SubscriptionRepo
	sender        domain.PushSender
	log           zerolog.Logger
	batchLimit    int
}

// NewService создаёт диспетчер. batchLimit <= 0 заменяется на 100.
func NewService(notifications domain.NotificationRepo, subscriptions domain.SubscriptionRepo, sender domain.PushSender, logger zerolog.Logger, batchLimit int) *Service {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &Service{notifications: notifications, subscriptions: subscriptions, sender: sender, log: logger, batchLimit: batchLimit}
}

// Run выполняет один цикл диспетчеризации и возвращает счётчики.
func (s *Service) Run(ctx context.Context) (domain.DispatchStats, error) {
	runStart := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(runStart).Seconds()) }()

	var stats domain.DispatchStats

	unsent, err := s.notifications.ListUnsent(ctx, s.batchLimit)
	if err != nil {
		return stats, fmt.Errorf("выборка уведомлений: %w", err)
	}
	if len(unsent) == 0 {
		return stats, nil
	}

	subs, err := s.subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return stats, fmt.Errorf("выборка подписок: %w", err)
	}

	// endpoint'ы, умершие в этом же цикле: к следующим уведомлениям не идут
	gone := make(map[string]struct{})

	for _, notification := range unsent {
		if len(subs) == 0 {
			// уведомление остаётся sent=false и будет перевыбрано следующим циклом
			continue
		}

		payload := domain.PushPayload{
			Title: notification.Title,
			Body:  notification.Body,
			URL:   "/article/" + notification.ArticleID,
			Icon:  pushIcon,
		}

		for _, sub := range subs {
			if _, dead := gone[sub.Endpoint]; dead {
				continue
			}
			if err := s.sendOne(ctx, sub, payload); err != nil {
				stats.Failed++
				metrics.PushSendErrors.Inc()
				if errors.Is(err, domain.ErrSubscriptionGone) {
					gone[sub.Endpoint] = struct{}{}
					s.pruneSubscription(ctx, sub.Endpoint)
					continue
				}
				s.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("диспетчер: ошибка отправки пуша")
				continue
			}
			stats.Sent++
		}

		if err := s.notifications.MarkSent(ctx, notification.ID); err != nil {
			s.log.Error().Err(err).Str("notification", notification.ID).Msg("диспетчер: не удалось пометить уведомление")
		}
	}

	return stats, nil
}

func (s *Service) sendOne(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) error {
	return s.sender.Send(ctx, sub, payload)
}

func (s *Service) pruneSubscription(ctx context.Context, endpoint string) {
	if err := s.subscriptions.DeleteSubscriptionByEndpoint(ctx, endpoint); err != nil {
		s.log.Error().Err(err).Str("endpoint", endpoint).Msg("диспетчер: не удалось удалить подписку")
		return
	}
	metrics.SubscriptionsPruned.Inc()
	s.log.Info().Str("endpoint", endpoint).Msg("диспетчер: удалена мёртвая подписка")
}
