package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType: тип экономического события.
type TxType string

const (
	TxPayment       TxType = "PAYMENT"        // Покупка очков (после подтверждения оплаты)
	TxRefund        TxType = "REFUND"         // Возврат
	TxBonus         TxType = "BONUS"          // Бонус платформы
	TxWin           TxType = "WIN"            // Выигрыш в игре
	TxAdminPoints   TxType = "ADMIN_POINTS"   // Начисление администратором
	TxBet           TxType = "BET"            // Ставка
	TxWithdrawal    TxType = "WITHDRAWAL"     // Вывод
	TxPaymentFailed TxType = "PAYMENT_FAILED" // Запись о неудачной оплате, баланс не меняет
)

// Sign возвращает знак изменения баланса для типа: +1, -1 или 0.
func (t TxType) Sign() int64 {
	switch t {
	case TxPayment, TxRefund, TxBonus, TxWin, TxAdminPoints:
		return 1
	case TxBet, TxWithdrawal:
		return -1
	default:
		return 0
	}
}

// Valid сообщает, известен ли тип.
func (t TxType) Valid() bool {
	switch t {
	case TxPayment, TxRefund, TxBonus, TxWin, TxAdminPoints, TxBet, TxWithdrawal, TxPaymentFailed:
		return true
	}
	return false
}

// TxStatus: статус транзакции.
// Допустимые переходы: PENDING → COMPLETED и PENDING → FAILED, ровно один раз.
type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusFailed    TxStatus = "FAILED"
)

// Asset: какой из балансов профиля затрагивает транзакция.
type Asset string

const (
	AssetPoints Asset = "points"
	AssetCoins  Asset = "coins"
)

// Transaction: запись журнала (ledger).
// Points: всегда модуль суммы, направление задаёт Type.Sign().
type Transaction struct {
	ID            uuid.UUID           `db:"id"`
	ProfileID     uuid.UUID           `db:"profile_id"`
	OrderID       string              `db:"order_id"` // Внешний ID заказа (PayPal), для идемпотентности
	Type          TxType              `db:"type"`
	Status        TxStatus            `db:"status"`
	Asset         Asset               `db:"asset"`
	Points        int64               `db:"points"`
	Amount        decimal.NullDecimal `db:"amount"`   // Денежная сумма, если есть
	Currency      Currency            `db:"currency"` // Пусто, если Amount не задан
	BalanceBefore int64               `db:"balance_before"`
	BalanceAfter  int64               `db:"balance_after"`
	Description   string              `db:"description"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// Delta возвращает изменение баланса со знаком.
func (t *Transaction) Delta() int64 {
	return t.Type.Sign() * t.Points
}

// Balance: балансы профиля.
// Меняется только в паре с записью Transaction в одной транзакции БД.
type Balance struct {
	ProfileID uuid.UUID `db:"profile_id"`
	Points    int64     `db:"points"`
	Coins     int64     `db:"coins"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Get возвращает баланс по активу.
func (b *Balance) Get(a Asset) int64 {
	if a == AssetCoins {
		return b.Coins
	}
	return b.Points
}

// Set устанавливает баланс по активу.
func (b *Balance) Set(a Asset, v int64) {
	if a == AssetCoins {
		b.Coins = v
		return
	}
	b.Points = v
}

// Treasury: казна платформы, из которой выплачиваются призы.
type Treasury struct {
	Balance     int64     `db:"balance"`
	LastUpdated time.Time `db:"last_updated"`
}
