package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"disaster-news-hub/internal/domain"
)

type stubFeed struct {
	mu       sync.Mutex
	articles []domain.Article
	listErr  error
	listLog  int

	subs []func(domain.Article)
}

func (f *stubFeed) List(_ context.Context, offset, limit int) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLog++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.articles) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.articles) {
		end = len(f.articles)
	}
	out := make([]domain.Article, end-offset)
	copy(out, f.articles[offset:end])
	return out, nil
}

func (f *stubFeed) GetByID(_ context.Context, id string) (domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Article{}, domain.ErrArticleNotFound
}

func (f *stubFeed) Subscribe(fn func(domain.Article)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *stubFeed) emit(a domain.Article) {
	f.mu.Lock()
	subs := append([]func(domain.Article){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(a)
	}
}

func (f *stubFeed) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLog
}

type memReadState struct {
	mu            sync.Mutex
	articles      map[string]struct{}
	notifications map[string]struct{}
}

func newMemReadState() *memReadState {
	return &memReadState{
		articles:      make(map[string]struct{}),
		notifications: make(map[string]struct{}),
	}
}

func (s *memReadState) ReadArticles() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.articles))
	for id := range s.articles {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *memReadState) MarkArticleRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[id] = struct{}{}
	return nil
}

func (s *memReadState) ReadNotifications() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.notifications))
	for id := range s.notifications {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *memReadState) MarkNotificationRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[id] = struct{}{}
	return nil
}

type stubRemote struct {
	called chan string
}

func (r *stubRemote) MarkArticleRead(_ context.Context, id string) error {
	r.called <- id
	return nil
}

func article(id string) domain.Article {
	return domain.Article{ID: id, Title: "статья " + id, URL: "https://n/" + id}
}

func TestInitAppliesReadOverlay(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a"), article("b")}}
	readState := newMemReadState()
	if err := readState.MarkArticleRead("b"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	m := NewNewsMirror(feed, readState, nil, zerolog.Nop())

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if m.State() != StateLive {
		t.Fatalf("ожидали live, получили %v", m.State())
	}
	got := m.Articles()
	if len(got) != 2 {
		t.Fatalf("ожидали 2 статьи, получили %d", len(got))
	}
	if got[0].IsRead || !got[1].IsRead {
		t.Fatalf("оверлей прочитанности наложен неверно: %+v", got)
	}
	if m.UnreadCount() != 1 {
		t.Fatalf("ожидали 1 непрочитанную, получили %d", m.UnreadCount())
	}
}

func TestInitErrorRetainsState(t *testing.T) {
	feed := &stubFeed{listErr: errors.New("хранилище недоступно")}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())

	if err := m.Init(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку инициализации")
	}
	if m.State() != StateUninitialized {
		t.Fatalf("состояние должно откатиться, получили %v", m.State())
	}
	if m.LastError() == "" {
		t.Fatalf("текст ошибки должен сохраниться")
	}
}

func TestLiveInsertDuplicateIgnored(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// at-least-once: повтор уже известного ID не меняет срез
	feed.emit(article("a"))
	feed.emit(article("b"))
	feed.emit(article("b"))

	got := m.Articles()
	if len(got) != 2 {
		t.Fatalf("ожидали 2 статьи, получили %d", len(got))
	}
	if got[0].ID != "b" {
		t.Fatalf("живая вставка должна встать первой, получили %q", got[0].ID)
	}
}

func TestLoadMoreSkipsLiveArrivals(t *testing.T) {
	var backlog []domain.Article
	for i := 0; i < 60; i++ {
		backlog = append(backlog, article(fmt.Sprintf("a%02d", i)))
	}
	feed := &stubFeed{articles: backlog}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// статья со следующей страницы приезжает живым событием до LoadMore
	feed.emit(backlog[50])

	added, err := m.LoadMore(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if added != 9 {
		t.Fatalf("живой дубликат не должен добавляться повторно, получили %d", added)
	}
	seen := make(map[string]int)
	for _, a := range m.Articles() {
		seen[a.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("статья %s встречается %d раз", id, n)
		}
	}
}

func TestMarkReadIdempotentAndPersistent(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	readState := newMemReadState()
	remote := &stubRemote{called: make(chan string, 2)}
	m := NewNewsMirror(feed, readState, remote, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if err := m.MarkRead("a"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := m.MarkRead("a"); err != nil {
		t.Fatalf("повторная пометка должна быть no-op: %v", err)
	}

	got, ok := m.ByID("a")
	if !ok || !got.IsRead {
		t.Fatalf("статья должна быть прочитанной")
	}
	persisted, err := readState.ReadArticles()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := persisted["a"]; !ok {
		t.Fatalf("пометка должна сохраниться локально")
	}

	select {
	case id := <-remote.called:
		if id != "a" {
			t.Fatalf("удалённая пометка для %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("ожидали удалённую пометку")
	}
	select {
	case <-remote.called:
		t.Fatalf("повторная пометка не должна ходить удалённо")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRefreshPreservesReadOverlay(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := m.MarkRead("a"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	feed.mu.Lock()
	feed.articles = append([]domain.Article{article("b")}, feed.articles...)
	feed.mu.Unlock()

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, ok := m.ByID("a")
	if !ok || !got.IsRead {
		t.Fatalf("обновление не должно затирать локальную прочитанность")
	}
	if _, ok := m.ByID("b"); !ok {
		t.Fatalf("новая статья должна появиться после обновления")
	}
}

func TestRefreshErrorKeepsArticles(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	feed.mu.Lock()
	feed.listErr = errors.New("хранилище недоступно")
	feed.mu.Unlock()

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку обновления")
	}
	if len(m.Articles()) != 1 {
		t.Fatalf("ошибка обновления не должна сбрасывать статьи")
	}
	if m.LastError() == "" {
		t.Fatalf("текст ошибки должен сохраниться")
	}
}

func TestFilterByKeyword(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{
		{ID: "a", Title: "산불 확산", Content: "강원도"},
		{ID: "b", Title: "태풍 북상", Content: "제주"},
	}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	got := m.FilterByKeyword("산불")
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("ожидали одну статью про 산불, получили %+v", got)
	}
	if len(m.FilterByKeyword("")) != 2 {
		t.Fatalf("пустой фильтр возвращает всё")
	}
}

func TestListenerNotifiedAndRemovable(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())

	calls := 0
	remove := m.AddListener(func() { calls++ })
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if calls == 0 {
		t.Fatalf("слушатель должен получать оповещения")
	}

	remove()
	before := calls
	feed.emit(article("b"))
	if calls != before {
		t.Fatalf("после снятия слушатель не должен вызываться")
	}
}

func TestAutoRefreshStops(t *testing.T) {
	feed := &stubFeed{articles: []domain.Article{article("a")}}
	m := NewNewsMirror(feed, newMemReadState(), nil, zerolog.Nop())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if err := m.StartAutoRefresh(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	time.Sleep(35 * time.Millisecond)
	m.StopAutoRefresh()

	after := feed.listCalls()
	time.Sleep(35 * time.Millisecond)
	if feed.listCalls() != after {
		t.Fatalf("после остановки обращений к хранилищу быть не должно")
	}
}
