// Package pricing: pricing.go содержит таблицу цен по регионам.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/models"
)

// Rate описывает курс региона: валюта и стоимость ДВУХ очков в этой валюте.
type Rate struct {
	Currency  models.Currency
	PointCost decimal.Decimal
}

// Table: таблица цен. Каждый регион имеет ровно один курс.
type Table struct {
	rates map[models.Region]Rate
}

// DefaultTable возвращает стандартную таблицу цен платформы.
//
//	BLACK_AFRICA  500 XOF за 2 очка
//	NORTH_AFRICA   10 MAD за 2 очка
//	EUROPE          1 EUR за 2 очка
//	AMERICAS        1 USD за 2 очка
//	ASIA            1 USD за 2 очка
func DefaultTable() *Table {
	return NewTable(map[models.Region]decimal.Decimal{
		models.RegionBlackAfrica: decimal.NewFromInt(500),
		models.RegionNorthAfrica: decimal.NewFromInt(10),
		models.RegionEurope:      decimal.NewFromInt(1),
		models.RegionAmericas:    decimal.NewFromInt(1),
		models.RegionAsia:        decimal.NewFromInt(1),
	})
}

// NewTable строит таблицу из стоимости двух очков по регионам.
// Валюта берётся из таблицы регионов, неизвестные регионы пропускаются.
func NewTable(costs map[models.Region]decimal.Decimal) *Table {
	t := &Table{rates: make(map[models.Region]Rate, len(costs))}
	for r, cost := range costs {
		cur, ok := CurrencyOf(r)
		if !ok {
			continue
		}
		t.rates[r] = Rate{Currency: cur, PointCost: cost}
	}
	return t
}

// RateFor возвращает курс региона.
// Если региона нет в таблице: ErrUnknownRegion. Подстановку региона
// по умолчанию делает вызывающий код (см. RateOrDefault).
func (t *Table) RateFor(r models.Region) (Rate, error) {
	rate, ok := t.rates[r]
	if !ok {
		return Rate{}, errUnknownRegion(string(r))
	}
	return rate, nil
}

// RateOrDefault возвращает курс региона, а если его нет: курс fallback.
// Второе значение: регион, чей курс реально использован.
func (t *Table) RateOrDefault(r, fallback models.Region) (Rate, models.Region, error) {
	if rate, err := t.RateFor(r); err == nil {
		return rate, r, nil
	}
	rate, err := t.RateFor(fallback)
	if err != nil {
		return Rate{}, "", err
	}
	return rate, fallback, nil
}

func errUnknownRegion(s string) error {
	return fmt.Errorf("%w: %q", common.ErrUnknownRegion, s)
}
