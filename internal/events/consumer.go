package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/models"
	"bingoo.app/core/pkg/contracts/events"
)

// MessageReader: часть kafka.Reader, нужная потребителю.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Settler подтверждает и отклоняет ожидающие транзакции (ledger.Service).
type Settler interface {
	Complete(ctx context.Context, ref db.TxRef) (*models.Transaction, error)
	Fail(ctx context.Context, ref db.TxRef, reason string) (*models.Transaction, error)
}

// PaymentConsumer применяет результаты оплат к ожидающим покупкам очков.
//
// Сообщение коммитится только после того, как результат записан или
// признан неприменимым. При ErrLedgerWriteFailed обработка повторяется
// с растущей паузой до успеха или остановки; смещение при этом не коммитится.
// Повтор того же результата безопасен: Complete и Fail идемпотентны по order_id.
type PaymentConsumer struct {
	reader     MessageReader
	settler    Settler
	backoff    time.Duration
	maxBackoff time.Duration
	readWait   time.Duration
}

// NewPaymentConsumer создаёт потребителя.
func NewPaymentConsumer(r MessageReader, s Settler) *PaymentConsumer {
	return &PaymentConsumer{
		reader:     r,
		settler:    s,
		backoff:    500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		readWait:   time.Second,
	}
}

// Run читает сообщения, пока не отменён ctx.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	log.Info("Потребитель оплат запущен")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("Ошибка чтения из Kafka")
			if !sleep(ctx, c.readWait) {
				return ctx.Err()
			}
			continue
		}

		if !c.handleWithRetry(ctx, msg) {
			// Остановка посреди повторов: сообщение перечитается после рестарта
			return ctx.Err()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Не удалось закоммитить смещение")
		}
	}
}

// handleWithRetry обрабатывает сообщение, повторяя временные сбои записи.
// Возвращает false, только если ctx отменён до успешной записи.
// Остальные ошибки (битое сообщение) логируются, сообщение пропускается.
func (c *PaymentConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	fields := log.Fields{"offset": msg.Offset, "partition": msg.Partition}
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg.Value)
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			return true
		}
		if !errors.Is(err, common.ErrLedgerWriteFailed) {
			log.WithFields(fields).WithError(err).Error("Событие оплаты пропущено")
			return true
		}

		wait := time.Duration(attempt) * c.backoff
		if wait > c.maxBackoff {
			wait = c.maxBackoff
		}
		log.WithFields(fields).WithFields(log.Fields{
			"attempt": attempt,
			"retry":   wait,
		}).WithError(err).Warn("Не удалось записать результат оплаты, повторим")
		if !sleep(ctx, wait) {
			return false
		}
	}
}

// Handle обрабатывает одно сообщение.
// Неизвестный заказ и повторный результат не считаются ошибкой.
func (c *PaymentConsumer) Handle(ctx context.Context, payload []byte) error {
	var ev events.PaymentResult
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.PaymentEvents.WithLabelValues("invalid", metrics.ResultError).Inc()
		return fmt.Errorf("decode payment result: %w", err)
	}

	status := strings.ToUpper(strings.TrimSpace(ev.Status))
	if ev.OrderID == "" {
		metrics.PaymentEvents.WithLabelValues(status, metrics.ResultError).Inc()
		return errors.New("payment result без order_id")
	}
	ref := db.TxRef{OrderID: ev.OrderID}
	fields := log.Fields{"order_id": ev.OrderID, "status": status}

	var err error
	switch status {
	case events.PaymentCaptured:
		_, err = c.settler.Complete(ctx, ref)
	case events.PaymentDeclined:
		_, err = c.settler.Fail(ctx, ref, ev.Reason)
	default:
		metrics.PaymentEvents.WithLabelValues("unknown", metrics.ResultError).Inc()
		return fmt.Errorf("неизвестный статус оплаты %q", ev.Status)
	}

	switch {
	case err == nil:
		metrics.PaymentEvents.WithLabelValues(status, metrics.ResultOK).Inc()
		log.WithFields(fields).Info("Результат оплаты применён")
		return nil
	case errors.Is(err, common.ErrTransactionNotFound):
		metrics.PaymentEvents.WithLabelValues(status, metrics.ResultDeclined).Inc()
		log.WithFields(fields).Warn("Заказ не найден, пропускаем")
		return nil
	case errors.Is(err, common.ErrInvalidTransition):
		// Заказ уже закрыт с другим итогом
		metrics.PaymentEvents.WithLabelValues(status, metrics.ResultDeclined).Inc()
		log.WithFields(fields).WithError(err).Warn("Конфликт статуса оплаты")
		return nil
	default:
		metrics.PaymentEvents.WithLabelValues(status, metrics.ResultError).Inc()
		return err
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
