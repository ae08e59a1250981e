package sched

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyStarted возвращается при повторном запуске тикера.
var ErrAlreadyStarted = errors.New("планировщик уже запущен")

// Ticker — отменяемый периодический планировщик.
// Джоба вызывается строго последовательно в одной горутине: новый запуск не
// начинается, пока не завершился предыдущий. После Stop джоба гарантированно
// не вызывается.
type Ticker struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewTicker создаёт планировщик с указанным интервалом.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Start запускает цикл. Первый вызов джобы происходит через interval.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if t.stop != nil {
		return ErrAlreadyStarted
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				select {
				case <-t.stop:
					return
				case <-ctx.Done():
					return
				default:
				}
				job(now)
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			}
		}
	}()
	return nil
}

// Stop останавливает цикл и дожидается выхода горутины.
func (t *Ticker) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}
