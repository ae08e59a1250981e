package mirror

import (
	"sync"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
)

// NotificationMirror — клиентский кэш уведомлений с локальной прочитанностью.
// Прочитанность накладывается при добавлении и сохраняется персистентно,
// синк её никогда не перетирает.
type NotificationMirror struct {
	readState domain.ReadState
	log       zerolog.Logger

	mu            sync.Mutex
	notifications []domain.Notification
	read          map[string]struct{}

	listeners *listenerSet
}

// NewNotificationMirror создаёт кэш. Набор прочитанных ID читается один раз
// при создании; ошибка чтения не фатальна, кэш стартует пустым оверлеем.
func NewNotificationMirror(readState domain.ReadState, log zerolog.Logger) *NotificationMirror {
	read, err := readState.ReadNotifications()
	if err != nil {
		log.Warn().Err(err).Msg("не удалось прочитать локальную прочитанность уведомлений")
		read = make(map[string]struct{})
	}
	return &NotificationMirror{
		readState: readState,
		log:       log,
		read:      read,
		listeners: newListenerSet(),
	}
}

// Add добавляет уведомление в начало кэша. Дубликат по ID игнорируется.
func (m *NotificationMirror) Add(n domain.Notification) {
	m.mu.Lock()
	for _, have := range m.notifications {
		if have.ID == n.ID {
			m.mu.Unlock()
			return
		}
	}
	if _, ok := m.read[n.ID]; ok {
		n.IsRead = true
	}
	m.notifications = append([]domain.Notification{n}, m.notifications...)
	m.mu.Unlock()
	m.listeners.notify()
}

// MarkRead помечает уведомление прочитанным. Идемпотентно.
func (m *NotificationMirror) MarkRead(id string) {
	m.mu.Lock()
	if _, ok := m.read[id]; ok {
		m.mu.Unlock()
		return
	}
	m.read[id] = struct{}{}
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].IsRead = true
			break
		}
	}
	m.mu.Unlock()

	if err := m.readState.MarkNotificationRead(id); err != nil {
		m.log.Warn().Err(err).Str("notification_id", id).Msg("не удалось сохранить прочитанность уведомления")
	}
	m.listeners.notify()
}

// MarkAllRead помечает все уведомления кэша прочитанными.
func (m *NotificationMirror) MarkAllRead() {
	m.mu.Lock()
	var newly []string
	for i := range m.notifications {
		id := m.notifications[i].ID
		if _, ok := m.read[id]; !ok {
			m.read[id] = struct{}{}
			newly = append(newly, id)
		}
		m.notifications[i].IsRead = true
	}
	m.mu.Unlock()

	for _, id := range newly {
		if err := m.readState.MarkNotificationRead(id); err != nil {
			m.log.Warn().Err(err).Str("notification_id", id).Msg("не удалось сохранить прочитанность уведомления")
		}
	}
	if len(newly) > 0 {
		m.listeners.notify()
	}
}

// Remove удаляет уведомление из кэша.
func (m *NotificationMirror) Remove(id string) {
	m.mu.Lock()
	changed := false
	for i, n := range m.notifications {
		if n.ID == id {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			changed = true
			break
		}
	}
	m.mu.Unlock()
	if changed {
		m.listeners.notify()
	}
}

// RemoveByArticleID удаляет все уведомления, относящиеся к статье.
func (m *NotificationMirror) RemoveByArticleID(articleID string) {
	m.mu.Lock()
	kept := m.notifications[:0]
	changed := false
	for _, n := range m.notifications {
		if n.ArticleID == articleID {
			changed = true
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	m.mu.Unlock()
	if changed {
		m.listeners.notify()
	}
}

// Clear очищает кэш. Персистентная прочитанность не трогается.
func (m *NotificationMirror) Clear() {
	m.mu.Lock()
	changed := len(m.notifications) > 0
	m.notifications = nil
	m.mu.Unlock()
	if changed {
		m.listeners.notify()
	}
}

// ByArticleID возвращает уведомление по ID статьи.
func (m *NotificationMirror) ByArticleID(articleID string) (domain.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ArticleID == articleID {
			return n, true
		}
	}
	return domain.Notification{}, false
}

// Notifications возвращает копию кэша.
func (m *NotificationMirror) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// UnreadCount — число непрочитанных уведомлений в кэше.
func (m *NotificationMirror) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, have := range m.notifications {
		if !have.IsRead {
			n++
		}
	}
	return n
}

// AddListener регистрирует слушателя изменений и возвращает функцию снятия.
func (m *NotificationMirror) AddListener(fn func()) func() {
	return m.listeners.add(fn)
}
