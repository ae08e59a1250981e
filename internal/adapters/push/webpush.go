package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/metrics"
)

// Config описывает VAPID-параметры отправителя.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
}

// WebPush отправляет уведомления по протоколу Web Push.
type WebPush struct {
	cfg Config
}

var _ domain.PushSender = (*WebPush)(nil)

// NewWebPush создаёт отправителя.
func NewWebPush(cfg Config) *WebPush {
	return &WebPush{cfg: cfg}
}

// Send шлёт один пуш на одну подписку.
// 404/410 от транспорта транслируется в ErrSubscriptionGone.
func (w *WebPush) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация пуша: %w", err)
	}

	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	start := time.Now()
	resp, err := webpush.SendNotificationWithContext(ctx, body, target, &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
	})
	metrics.ObserveNetworkRequest("webpush", "send", endpointHost(sub.Endpoint), start, err)
	if err != nil {
		return fmt.Errorf("отправка пуша: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return domain.ErrSubscriptionGone
	case resp.StatusCode >= 300:
		return fmt.Errorf("пуш отклонён со статусом %d", resp.StatusCode)
	}
	return nil
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "unknown"
	}
	return u.Host
}
