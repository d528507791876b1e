// Package metrics содержит метрики Prometheus экономики и HTTP-сервер
// для /metrics и /healthz.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TreasuryBalance: текущий баланс казны в очках.
	TreasuryBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bingoo_treasury_balance_points",
		Help: "Текущий баланс казны в очках",
	})

	// PrizeAuthorizations считает решения проверки казны (authorized или declined).
	PrizeAuthorizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bingoo_prize_authorizations_total",
		Help: "Решения проверки казны по призам",
	}, []string{"result"})

	// LedgerTransactions: записи журнала по типу и итогу.
	LedgerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bingoo_ledger_transactions_total",
		Help: "Операции журнала по типу и результату",
	}, []string{"type", "result"})

	// Rounds: сыгранные раунды по игре и исходу (won, lost, voided).
	Rounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bingoo_rounds_total",
		Help: "Сыгранные раунды по игре и исходу",
	}, []string{"game", "outcome"})

	// BetsRateLimited: ставки, отклонённые лимитом частоты.
	BetsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bingoo_bets_rate_limited_total",
		Help: "Ставки, отклонённые лимитом частоты",
	})

	// PaymentEvents: обработанные события платёжного шлюза по статусу.
	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bingoo_payment_events_total",
		Help: "События платёжного шлюза по статусу и результату",
	}, []string{"status", "result"})
)

// Результаты для меток.
const (
	ResultOK       = "ok"
	ResultDeclined = "declined"
	ResultError    = "error"
)
