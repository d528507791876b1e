// Package ledger: журнал экономических операций.
// Каждое изменение баланса профиля записывается вместе с транзакцией
// журнала в одной транзакции хранилища: либо оба, либо ничего.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/models"
)

// Request: запрос на экономическую операцию.
type Request struct {
	ID          uuid.UUID           // ID транзакции; пусто = сгенерировать. Повтор с тем же ID не задваивает эффект
	OrderID     string              // Внешний ID заказа (платёжный шлюз), тоже ключ идемпотентности
	ProfileID   uuid.UUID           // Профиль игрока
	Type        models.TxType       // Тип операции, задаёт знак
	Asset       models.Asset        // Какой баланс менять; пусто = очки
	Points      int64               // Модуль суммы в очках, > 0
	Amount      decimal.NullDecimal // Денежная сумма (покупка, ставка), необязательно
	Currency    models.Currency     // Валюта Amount
	Description string              // Для истории
}

// Ref возвращает ссылку на транзакцию запроса.
func (r Request) Ref() db.TxRef {
	return db.TxRef{ID: r.ID, OrderID: r.OrderID}
}

// Validate проверяет запрос до обращения к хранилищу.
func (r *Request) Validate() error {
	if r.ProfileID == uuid.Nil {
		return fmt.Errorf("%w: пустой профиль", common.ErrProfileNotFound)
	}
	if !r.Type.Valid() || r.Type.Sign() == 0 {
		return fmt.Errorf("%w: тип операции %q не меняет баланс", common.ErrInvalidAmount, r.Type)
	}
	if r.Points <= 0 {
		return fmt.Errorf("%w: %d очков", common.ErrInvalidAmount, r.Points)
	}
	if r.Amount.Valid && r.Amount.Decimal.IsNegative() {
		return fmt.Errorf("%w: сумма %s", common.ErrInvalidAmount, r.Amount.Decimal)
	}
	if r.Asset == "" {
		r.Asset = models.AssetPoints
	}
	if r.Asset != models.AssetPoints && r.Asset != models.AssetCoins {
		return fmt.Errorf("%w: актив %q", common.ErrInvalidAmount, r.Asset)
	}
	return nil
}

// Publisher получает зафиксированные транзакции (шина событий).
// Ошибка публикации логируется и не откатывает операцию.
type Publisher interface {
	Publish(ctx context.Context, t models.Transaction) error
}

// NopPublisher: публикатор, который ничего не делает.
type NopPublisher struct{}

// Publish ничего не делает.
func (NopPublisher) Publish(context.Context, models.Transaction) error { return nil }
