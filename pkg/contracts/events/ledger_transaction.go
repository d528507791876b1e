// Package events: форматы сообщений, которыми экономика обменивается через Kafka.
package events

// LedgerTransaction публикуется после фиксации каждой записи журнала.
type LedgerTransaction struct {
	ID            string `json:"id"`
	ProfileID     string `json:"profile_id"`
	OrderID       string `json:"order_id,omitempty"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Points        int64  `json:"points"`
	Delta         int64  `json:"delta"`
	Amount        string `json:"amount,omitempty"` // Десятичная строка, чтобы не терять точность
	Currency      string `json:"currency,omitempty"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Description   string `json:"description,omitempty"`
	TsUnixMs      int64  `json:"ts_unix_ms"`
}
