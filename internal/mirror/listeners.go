package mirror

import "sync"

// listenerSet — реестр слушателей изменений.
// Рассылка идёт по снапшоту вне мьютекса: слушатель может регистрировать и
// снимать слушателей (в том числе себя) прямо из колбэка.
type listenerSet struct {
	mu   sync.Mutex
	fns  map[int64]func()
	next int64
}

func newListenerSet() *listenerSet {
	return &listenerSet{fns: make(map[int64]func())}
}

func (l *listenerSet) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listenerSet) notify() {
	l.mu.Lock()
	snapshot := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}
