// Package treasury управляет казной платформы, из которой выплачиваются призы.
//
// treasury.go описывает объект казны с жизненным циклом:
//   - Load при старте читает сохранённый баланс из хранилища
//   - Sync периодически подтягивает баланс из хранилища (внешние пополнения)
//   - Flush списывает в хранилище резервирования, сделанные только в памяти
//
// Казна передаётся в Gate по ссылке, глобального состояния нет.
package treasury

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/models"
)

// Treasury: копия баланса казны в памяти процесса.
// Источник истины: хранилище; копия нужна для быстрых проверок
// и отображения, а durable-резервирование идёт через Gate.AuthorizeTx.
//
// Копия хранит последний известный баланс хранилища (stored, storedAt)
// и сумму резервирований Gate.Reserve, ещё не записанных в хранилище
// (reserved). Доступный баланс: stored − reserved.
type Treasury struct {
	mu          sync.Mutex
	stored      int64
	storedAt    time.Time
	reserved    int64 // Резервирования в памяти, которые Flush ещё не списал в хранилище
	lastUpdated time.Time
	store       db.Store
	now         func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

// New создаёт пустую казну. Перед использованием нужно вызвать Load.
func New(store db.Store) *Treasury {
	return &Treasury{store: store, now: time.Now}
}

// Load читает баланс казны из хранилища.
// Если записи ещё нет: создаёт её с балансом initial.
func (t *Treasury) Load(ctx context.Context, initial int64) error {
	if initial < 0 {
		return fmt.Errorf("%w: начальный баланс казны %d", common.ErrInvalidAmount, initial)
	}

	stored, found, err := t.store.GetTreasury(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения казны: %w", err)
	}

	if !found {
		err = t.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			cur, err := tx.LockTreasury(ctx)
			if err != nil {
				return err
			}
			// Запись могла появиться между GetTreasury и LockTreasury
			if cur.Balance == 0 && initial > 0 {
				cur.Balance = initial
				cur.LastUpdated = t.stamp()
				if err := tx.SetTreasury(ctx, cur); err != nil {
					return err
				}
			}
			stored = cur
			return nil
		})
		if err != nil {
			return fmt.Errorf("ошибка создания казны: %w", err)
		}
	}

	t.set(stored.Balance, stored.LastUpdated)

	log.WithFields(log.Fields{
		"balance": stored.Balance,
		"created": !found,
	}).Info("Казна загружена")
	return nil
}

// Flush списывает в хранилище резервирования, сделанные через Gate.Reserve.
// Пишется не снимок копии, а разница: stored − reserved под блокировкой
// строки казны, поэтому пополнения и AuthorizeTx других участников не теряются.
// Вызывается по расписанию (Sync) и при остановке.
func (t *Treasury) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reserved == 0 {
		return nil
	}
	delta := t.reserved

	var saved models.Treasury
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		cur, err := tx.LockTreasury(ctx)
		if err != nil {
			return err
		}
		next := cur.Balance - delta
		if next < 0 {
			// Хранилище успели уменьшить мимо этой копии; ниже нуля не уходим
			log.WithFields(log.Fields{
				"stored":   cur.Balance,
				"reserved": delta,
			}).Error("Резервирования казны больше сохранённого баланса")
			next = 0
		}
		cur.Balance = next
		cur.LastUpdated = t.stamp()
		if err := tx.SetTreasury(ctx, cur); err != nil {
			return err
		}
		saved = cur
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения казны: %w", err)
	}

	t.reserved -= delta
	t.mirror(saved.Balance, saved.LastUpdated)
	metrics.TreasuryBalance.Set(float64(t.available()))

	log.WithFields(log.Fields{
		"reserved": delta,
		"balance":  saved.Balance,
	}).Info("Казна сохранена")
	return nil
}

// Sync подтягивает баланс из хранилища. Несохранённые изменения
// сначала сбрасываются через Flush, чтобы их не потерять.
func (t *Treasury) Sync(ctx context.Context) error {
	if err := t.Flush(ctx); err != nil {
		return err
	}
	stored, found, err := t.store.GetTreasury(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения казны: %w", err)
	}
	if !found {
		return nil
	}
	t.set(stored.Balance, stored.LastUpdated)
	return nil
}

// Deposit пополняет казну (внешнее зачисление, например из админки).
// Пишет в хранилище и обновляет копию в памяти после фиксации.
func (t *Treasury) Deposit(ctx context.Context, amount int64) (models.Treasury, error) {
	if amount <= 0 {
		return models.Treasury{}, fmt.Errorf("%w: пополнение казны на %d", common.ErrInvalidAmount, amount)
	}

	var updated models.Treasury
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		cur, err := tx.LockTreasury(ctx)
		if err != nil {
			return err
		}
		cur.Balance += amount
		cur.LastUpdated = t.stamp()
		if err := tx.SetTreasury(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return models.Treasury{}, fmt.Errorf("%w: %w", common.ErrLedgerWriteFailed, err)
	}

	t.set(updated.Balance, updated.LastUpdated)

	log.WithFields(log.Fields{
		"amount":  amount,
		"balance": updated.Balance,
	}).Info("Казна пополнена")
	return updated, nil
}

// Snapshot возвращает текущее состояние копии в памяти.
func (t *Treasury) Snapshot() models.Treasury {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.Treasury{Balance: t.available(), LastUpdated: t.lastUpdated}
}

// Balance возвращает доступный баланс копии в памяти.
func (t *Treasury) Balance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available()
}

// Observe принимает состояние казны, зафиксированное в хранилище.
// Состояние старше уже известного игнорируется: фиксации параллельных
// раундов могут дойти до копии в другом порядке.
func (t *Treasury) Observe(tr models.Treasury) {
	t.set(tr.Balance, tr.LastUpdated)
}

// set принимает баланс хранилища; несохранённые резервирования остаются в силе.
func (t *Treasury) set(balance int64, at time.Time) {
	if at.IsZero() {
		at = t.stamp()
	}
	t.mu.Lock()
	t.mirror(balance, at)
	b := t.available()
	t.mu.Unlock()
	metrics.TreasuryBalance.Set(float64(b))
}

// mirror обновляет баланс хранилища, если at не старше известного. Вызывать под t.mu.
func (t *Treasury) mirror(balance int64, at time.Time) bool {
	if at.Before(t.storedAt) {
		return false
	}
	t.stored = balance
	t.storedAt = at
	if at.After(t.lastUpdated) {
		t.lastUpdated = at
	}
	t.stampMu.Lock()
	if at.After(t.lastStamp) {
		t.lastStamp = at
	}
	t.stampMu.Unlock()
	return true
}

// available: stored − reserved, не ниже нуля. Вызывать под t.mu.
func (t *Treasury) available() int64 {
	if b := t.stored - t.reserved; b > 0 {
		return b
	}
	return 0
}

// stamp возвращает строго возрастающую метку времени с точностью до микросекунды
// (как хранит Postgres). Изменения казны идут под блокировкой строки,
// поэтому порядок меток совпадает с порядком фиксаций.
func (t *Treasury) stamp() time.Time {
	t.stampMu.Lock()
	defer t.stampMu.Unlock()
	ts := t.now().UTC().Truncate(time.Microsecond)
	if !ts.After(t.lastStamp) {
		ts = t.lastStamp.Add(time.Microsecond)
	}
	t.lastStamp = ts
	return ts
}
