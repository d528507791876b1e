package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"bingoo.app/core/internal/models"
	"bingoo.app/core/pkg/contracts/events"
)

// MessageWriter: часть kafka.Writer, нужная публикатору.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher публикует записи журнала в Kafka.
// Ключ сообщения: ID профиля, чтобы события игрока шли по порядку.
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaPublisher создаёт публикатор.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish отправляет запись журнала.
func (p *KafkaPublisher) Publish(ctx context.Context, t models.Transaction) error {
	payload, err := json.Marshal(ToEvent(t, p.now()))
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(t.ProfileID.String()),
		Value: payload,
		Time:  p.now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", t.ID, err)
	}
	return nil
}

// ToEvent переводит запись журнала в формат сообщения.
func ToEvent(t models.Transaction, at time.Time) events.LedgerTransaction {
	ev := events.LedgerTransaction{
		ID:            t.ID.String(),
		ProfileID:     t.ProfileID.String(),
		OrderID:       t.OrderID,
		Type:          string(t.Type),
		Status:        string(t.Status),
		Asset:         string(t.Asset),
		Points:        t.Points,
		Delta:         t.Delta(),
		Currency:      string(t.Currency),
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		TsUnixMs:      at.UnixMilli(),
	}
	// PAYMENT_FAILED и отклонённые записи баланс не меняют
	if t.Status != models.StatusCompleted || t.Type == models.TxPaymentFailed {
		ev.Delta = 0
	}
	if t.Amount.Valid {
		ev.Amount = t.Amount.Decimal.String()
	}
	return ev
}
