// Package db описывает хранилище экономики: балансы, журнал транзакций и казну.
// Все изменения выполняются внутри Tx, чтобы баланс, запись журнала
// и казна фиксировались или откатывались вместе.
//
// Реализации:
//   - db/postgres: PostgreSQL через pgxpool (продакшен)
//   - db/memory: в памяти (тесты и локальный запуск)
package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bingoo.app/core/internal/models"
)

// Store: хранилище с транзакционной областью.
type Store interface {
	// WithinTx выполняет fn в одной сериализуемой транзакции.
	// Если fn вернула ошибку: всё откатывается и ошибка возвращается как есть.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error

	// GetBalance возвращает балансы профиля (нулевые, если профиль ещё не играл).
	GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error)

	// GetTransaction ищет транзакцию по ID или по внешнему order_id.
	GetTransaction(ctx context.Context, ref TxRef) (*models.Transaction, error)

	// ListTransactions возвращает последние транзакции профиля, новые первыми.
	ListTransactions(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Transaction, error)

	// ListStalePending возвращает PENDING-транзакции, созданные раньше before.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)

	// GetTreasury читает казну. found = false, если записи ещё нет.
	GetTreasury(ctx context.Context) (treasury models.Treasury, found bool, err error)
}

// Tx: операции внутри одной транзакции хранилища.
type Tx interface {
	// LockBalance блокирует строку баланса профиля (FOR UPDATE).
	// Если строки нет: создаёт нулевую.
	LockBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error)

	// SetBalance записывает балансы профиля.
	SetBalance(ctx context.Context, b *models.Balance) error

	// FindTransaction ищет и блокирует транзакцию по ID или order_id.
	// Если не найдена: common.ErrTransactionNotFound.
	FindTransaction(ctx context.Context, ref TxRef) (*models.Transaction, error)

	// InsertTransaction добавляет запись журнала.
	InsertTransaction(ctx context.Context, t *models.Transaction) error

	// UpdateTransaction меняет статус и снимок баланса записи журнала.
	UpdateTransaction(ctx context.Context, t *models.Transaction) error

	// LockTreasury блокирует казну. Если записи нет: создаёт с нулевым балансом.
	LockTreasury(ctx context.Context) (models.Treasury, error)

	// SetTreasury записывает баланс казны.
	SetTreasury(ctx context.Context, t models.Treasury) error
}

// TxRef ссылается на транзакцию по ID, по внешнему order_id или по обоим.
type TxRef struct {
	ID      uuid.UUID
	OrderID string
}

// IsZero сообщает, что ссылка пустая.
func (r TxRef) IsZero() bool {
	return r.ID == uuid.Nil && r.OrderID == ""
}

// Matches сообщает, указывает ли ссылка на транзакцию t.
func (r TxRef) Matches(t *models.Transaction) bool {
	if r.ID != uuid.Nil && t.ID == r.ID {
		return true
	}
	return r.OrderID != "" && t.OrderID == r.OrderID
}
