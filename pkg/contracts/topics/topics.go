// Package topics: имена топиков Kafka по умолчанию.
package topics

const (
	// LedgerTransactions: зафиксированные записи журнала
	LedgerTransactions = "bingoo.ledger.transactions"

	// PaymentResults: результаты оплат от платёжного шлюза
	PaymentResults = "bingoo.payments.results"
)
