// Package ratelimit ограничивает частоту действий по ключу
// (ставки игрока, команды бота).
// Memory считает в памяти процесса, Redis держит общий лимит для нескольких реплик.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory ограничивает количество действий на ключ.
// Использует алгоритм скользящего окна.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemory создаёт лимитер: не больше limit действий за window.
func NewMemory(limit int, window time.Duration) *Memory {
	rl := &Memory{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *Memory) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow регистрирует действие и сообщает, укладывается ли оно в лимит.
// Ошибку не возвращает никогда: сигнатура общая с Redis.
func (rl *Memory) Allow(_ context.Context, key string) (bool, error) {
	return rl.AllowKey(key), nil
}

// AllowKey: то же, что Allow, без контекста.
func (rl *Memory) AllowKey(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.recent(rl.requests[key], now)

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}

	rl.requests[key] = append(recent, now)
	return true
}

func (rl *Memory) recent(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	var out []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func (rl *Memory) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep удаляет ключи без действий в текущем окне.
func (rl *Memory) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, times := range rl.requests {
		recent := rl.recent(times, now)
		if len(recent) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = recent
		}
	}
}
