package domain

import "time"

// Article описывает новостную статью о стихийном бедствии.
// URL — натуральный ключ: двух статей с одинаковым URL в хранилище не бывает.
type Article struct {
	ID          string
	Title       string
	Content     string
	Source      string
	URL         string
	ImageURL    string
	PublishedAt time.Time
	Category    string
	IsRead      bool
	CreatedAt   time.Time
}

// CandidateItem — сырой элемент, полученный из внешнего источника до дедупа.
// PublishedAt остаётся нулевым, если источник не отдаёт надёжного времени.
type CandidateItem struct {
	Title       string
	URL         string
	Content     string
	Source      string
	ImageURL    string
	Category    string
	PublishedAt time.Time
}

// Notification — уведомление о новой статье.
// На одну статью существует не более одного уведомления (уникальность по ArticleID).
type Notification struct {
	ID        string
	ArticleID string
	Title     string
	Body      string
	Timestamp time.Time
	IsRead    bool
	Sent      bool
}

// SubscriptionKeys — шифровальный материал Web Push подписки.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription описывает устройство-получателя пушей.
// Endpoint уникален; подписка удаляется при перманентной ошибке транспорта.
type PushSubscription struct {
	UserID   string
	Endpoint string
	Keys     SubscriptionKeys
}

// PushPayload — JSON-тело пуша.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// FilterSettings хранит пользовательские настройки фильтрации и обновления.
type FilterSettings struct {
	UserID          string
	Keywords        []string
	Sources         []string
	RefreshInterval int
	UpdatedAt       time.Time
}

// IngestStats — итог одного прохода инжеста.
type IngestStats struct {
	Examined int
	Inserted int
}

// DispatchStats — итог одного цикла диспетчера пушей.
type DispatchStats struct {
	Sent   int
	Failed int
}
