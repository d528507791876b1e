// Package pricing: calculator.go переводит очки в сумму к оплате.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/models"
)

// Charge: сумма к оплате в валюте региона.
type Charge struct {
	Amount   decimal.Decimal
	Currency models.Currency
}

// String форматирует сумму с символом валюты: "1 250 FCFA", "2.50 €".
func (c Charge) String() string {
	return FormatMoney(c.Amount, c.Currency)
}

// Calculator считает стоимость очков по таблице цен.
type Calculator struct {
	table *Table
}

// NewCalculator создаёт калькулятор. nil означает DefaultTable().
func NewCalculator(table *Table) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table}
}

// Table возвращает таблицу цен калькулятора.
func (c *Calculator) Table() *Table {
	return c.table
}

// Cost возвращает стоимость points очков в валюте региона.
// Формула линейная: amount = points × pointCost / 2.
//
// Ошибки:
//   - ErrInvalidAmount: points < 0
//   - ErrUnknownRegion: региона нет в таблице
func (c *Calculator) Cost(points int64, r models.Region) (Charge, error) {
	if points < 0 {
		return Charge{}, fmt.Errorf("%w: %d очков", common.ErrInvalidAmount, points)
	}
	rate, err := c.table.RateFor(r)
	if err != nil {
		return Charge{}, err
	}
	amount := decimal.NewFromInt(points).Mul(rate.PointCost).Div(decimal.NewFromInt(2))
	return Charge{Amount: amount, Currency: rate.Currency}, nil
}

// CostFloat: то же, что Cost, для сырого числового ввода из запроса.
// Дробное количество очков округляется вниз.
func (c *Calculator) CostFloat(points float64, r models.Region) (Charge, error) {
	if math.IsNaN(points) || math.IsInf(points, 0) || points < 0 || points >= math.MaxInt64 {
		return Charge{}, fmt.Errorf("%w: %v очков", common.ErrInvalidAmount, points)
	}
	return c.Cost(int64(math.Floor(points)), r)
}

// PointsToDisplayString форматирует количество очков для показа игроку.
//
// Пример: PointsToDisplayString(1500) → "1 500 pts"
func PointsToDisplayString(points int64) string {
	return common.FormatPoints(points)
}

// FormatMoney форматирует денежную сумму с символом валюты.
// XOF и MAD показываются без копеек, EUR и USD: с двумя знаками.
func FormatMoney(amount decimal.Decimal, cur models.Currency) string {
	switch cur {
	case models.CurrencyXOF, models.CurrencyMAD:
		return common.FormatNumber(amount.Round(0).IntPart()) + " " + CurrencySymbol(cur)
	case models.CurrencyEUR:
		return amount.StringFixed(2) + " " + CurrencySymbol(cur)
	default:
		return CurrencySymbol(cur) + amount.StringFixed(2)
	}
}
