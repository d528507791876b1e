package events

// Статусы оплаты от платёжного шлюза.
const (
	PaymentCaptured = "CAPTURED"
	PaymentDeclined = "DECLINED"
)

// PaymentResult: итог оплаты заказа. Шлюз может прислать его повторно.
type PaymentResult struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"` // CAPTURED | DECLINED
	Reason   string `json:"reason,omitempty"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}
