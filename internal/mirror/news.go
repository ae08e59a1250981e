package mirror

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
	"disaster-news-hub/internal/infra/sched"
)

// SyncState — состояние зеркала относительно хранилища.
type SyncState int

const (
	StateUninitialized SyncState = iota
	StateSyncing
	StateLive
)

func (s SyncState) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	default:
		return "uninitialized"
	}
}

// syncWindow — размер первой страницы при инициализации и обновлении.
const syncWindow = 50

// NewsMirror — клиентское зеркало ленты статей.
// Держит упорядоченный срез (новые впереди), накладывает локальную
// прочитанность поверх данных хранилища и живёт на событиях вставок.
// Локальный набор прочитанных ID никогда не затирается синком.
type NewsMirror struct {
	feed      domain.ArticleFeed
	readState domain.ReadState
	remote    domain.RemoteReadMarker
	log       zerolog.Logger

	mu          sync.Mutex
	state       SyncState
	articles    []domain.Article
	read        map[string]struct{}
	lastError   string
	unsubscribe func()
	refresher   *sched.Ticker

	listeners *listenerSet
}

// NewNewsMirror создаёт зеркало. remote может быть nil: тогда пометка
// прочитанности остаётся чисто локальной.
func NewNewsMirror(feed domain.ArticleFeed, readState domain.ReadState, remote domain.RemoteReadMarker, log zerolog.Logger) *NewsMirror {
	return &NewsMirror{
		feed:      feed,
		readState: readState,
		remote:    remote,
		log:       log,
		read:      make(map[string]struct{}),
		listeners: newListenerSet(),
	}
}

// Init выполняет первичный синк: читает окно последних статей, накладывает
// локальную прочитанность и подписывается на живые вставки.
// При ошибке состояние возвращается к прежнему, уже загруженные статьи
// не сбрасываются, текст ошибки сохраняется в LastError.
func (m *NewsMirror) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateSyncing {
		m.mu.Unlock()
		return nil
	}
	prev := m.state
	m.state = StateSyncing
	m.mu.Unlock()
	m.listeners.notify()

	read, err := m.readState.ReadArticles()
	if err != nil {
		m.failSync(prev, err)
		return err
	}

	articles, err := m.feed.List(ctx, 0, syncWindow)
	if err != nil {
		m.failSync(prev, err)
		return err
	}

	m.mu.Lock()
	m.read = read
	m.articles = make([]domain.Article, len(articles))
	for i, a := range articles {
		a.IsRead = m.isReadLocked(a.ID) || a.IsRead
		m.articles[i] = a
	}
	if m.unsubscribe == nil {
		m.unsubscribe = m.feed.Subscribe(m.onInsert)
	}
	m.state = StateLive
	m.lastError = ""
	m.mu.Unlock()
	m.listeners.notify()
	return nil
}

func (m *NewsMirror) failSync(prev SyncState, err error) {
	m.mu.Lock()
	m.state = prev
	m.lastError = err.Error()
	m.mu.Unlock()
	m.log.Error().Err(err).Msg("первичный синк зеркала не удался")
	m.listeners.notify()
}

// onInsert — обработчик живой вставки. Доставка at-least-once: повтор
// уже известного ID молча игнорируется, новая статья встаёт в начало.
func (m *NewsMirror) onInsert(a domain.Article) {
	m.mu.Lock()
	if m.hasLocked(a.ID) {
		m.mu.Unlock()
		return
	}
	a.IsRead = m.isReadLocked(a.ID) || a.IsRead
	m.articles = append([]domain.Article{a}, m.articles...)
	m.mu.Unlock()
	m.listeners.notify()
}

// LoadMore догружает следующую страницу в конец среза. Статьи, успевшие
// приехать живыми вставками, не дублируются.
func (m *NewsMirror) LoadMore(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = syncWindow
	}
	m.mu.Lock()
	offset := len(m.articles)
	m.mu.Unlock()

	page, err := m.feed.List(ctx, offset, limit)
	if err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		m.listeners.notify()
		return 0, err
	}

	m.mu.Lock()
	added := 0
	for _, a := range page {
		if m.hasLocked(a.ID) {
			continue
		}
		a.IsRead = m.isReadLocked(a.ID) || a.IsRead
		m.articles = append(m.articles, a)
		added++
	}
	m.lastError = ""
	m.mu.Unlock()
	if added > 0 {
		m.listeners.notify()
	}
	return added, nil
}

// Refresh перечитывает окно последних статей и вливает его в срез.
// Локальная прочитанность сохраняется; при ошибке статьи остаются как были.
func (m *NewsMirror) Refresh(ctx context.Context) error {
	fresh, err := m.feed.List(ctx, 0, syncWindow)
	if err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("обновление зеркала не удалось")
		m.listeners.notify()
		return err
	}

	m.mu.Lock()
	for _, a := range fresh {
		if m.hasLocked(a.ID) {
			continue
		}
		a.IsRead = m.isReadLocked(a.ID) || a.IsRead
		m.articles = append([]domain.Article{a}, m.articles...)
	}
	m.lastError = ""
	m.mu.Unlock()
	m.listeners.notify()
	return nil
}

// MarkRead помечает статью прочитанной. Идемпотентно: повторный вызов ничего
// не меняет. Память и персистентный набор мутируются синхронно, удалённая
// пометка уходит best-effort в отдельной горутине и не влияет на локальный
// результат.
func (m *NewsMirror) MarkRead(id string) error {
	m.mu.Lock()
	if _, ok := m.read[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.read[id] = struct{}{}
	for i := range m.articles {
		if m.articles[i].ID == id {
			m.articles[i].IsRead = true
			break
		}
	}
	m.mu.Unlock()

	if err := m.readState.MarkArticleRead(id); err != nil {
		m.log.Warn().Err(err).Str("article_id", id).Msg("не удалось сохранить прочитанность локально")
	}
	if m.remote != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.remote.MarkArticleRead(ctx, id); err != nil {
				m.log.Warn().Err(err).Str("article_id", id).Msg("удалённая пометка прочитанности не удалась")
			}
		}()
	}
	m.listeners.notify()
	return nil
}

// Articles возвращает копию текущего среза.
func (m *NewsMirror) Articles() []domain.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Article, len(m.articles))
	copy(out, m.articles)
	return out
}

// FilterByKeyword возвращает статьи, содержащие подстроку в заголовке,
// тексте или категории. Регистр не учитывается.
func (m *NewsMirror) FilterByKeyword(kw string) []domain.Article {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return m.Articles()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if strings.Contains(strings.ToLower(a.Title), kw) ||
			strings.Contains(strings.ToLower(a.Content), kw) ||
			strings.Contains(strings.ToLower(a.Category), kw) {
			out = append(out, a)
		}
	}
	return out
}

// ByID возвращает статью из зеркала.
func (m *NewsMirror) ByID(id string) (domain.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.articles {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Article{}, false
}

// UnreadCount — число непрочитанных статей в зеркале.
func (m *NewsMirror) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.articles {
		if !a.IsRead {
			n++
		}
	}
	return n
}

// State возвращает текущее состояние синка.
func (m *NewsMirror) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError — текст последней ошибки синка, пустая строка после успеха.
func (m *NewsMirror) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// AddListener регистрирует слушателя изменений и возвращает функцию снятия.
func (m *NewsMirror) AddListener(fn func()) func() {
	return m.listeners.add(fn)
}

// StartAutoRefresh запускает периодическое обновление.
func (m *NewsMirror) StartAutoRefresh(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	if m.refresher != nil {
		m.mu.Unlock()
		return sched.ErrAlreadyStarted
	}
	t := sched.NewTicker(interval)
	m.refresher = t
	m.mu.Unlock()

	return t.Start(ctx, func(time.Time) {
		if err := m.Refresh(ctx); err != nil {
			m.log.Warn().Err(err).Msg("автообновление завершилось с ошибкой")
		}
	})
}

// StopAutoRefresh останавливает обновление; после возврата ни одного
// обращения к хранилищу от автообновления не происходит.
func (m *NewsMirror) StopAutoRefresh() {
	m.mu.Lock()
	t := m.refresher
	m.refresher = nil
	m.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// Close снимает подписку на живые вставки и останавливает автообновление.
func (m *NewsMirror) Close() {
	m.StopAutoRefresh()
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *NewsMirror) hasLocked(id string) bool {
	for _, a := range m.articles {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (m *NewsMirror) isReadLocked(id string) bool {
	_, ok := m.read[id]
	return ok
}
