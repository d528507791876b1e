// Package ledger: service.go содержит бизнес-логику журнала:
// проведение операций, идемпотентность, переходы статусов PENDING → COMPLETED/FAILED.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/models"
)

// Service проводит операции журнала.
type Service struct {
	store     db.Store
	publisher Publisher
	now       func() time.Time

	// Ожидающие транзакции, для которых пришло подтверждение,
	// но запись ещё не удалась. SweepStale их не трогает.
	holdMu sync.Mutex
	held   map[string]struct{}
}

// NewService создаёт сервис журнала. publisher может быть nil.
func NewService(store db.Store, publisher Publisher) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		held:      make(map[string]struct{}),
	}
}

// Store возвращает хранилище сервиса (для операций в общей транзакции).
func (s *Service) Store() db.Store {
	return s.store
}

// Apply проводит операцию: меняет баланс и пишет транзакцию COMPLETED атомарно.
//
// Алгоритм:
//  1. Если транзакция с таким ID или order_id уже есть: возвращаем её без изменений
//  2. Блокируем баланс профиля (FOR UPDATE), считаем новый баланс
//  3. Списание больше баланса: ErrInsufficientBalance, ничего не пишем
//  4. Записываем баланс и транзакцию со снимком до/после
//
// Ошибки хранилища возвращаются как ErrLedgerWriteFailed: ничего не записано,
// операцию можно повторить целиком.
//
// WIN здесь не принимается: выигрыш проводится только через ApplyTx
// в одной транзакции с Gate.AuthorizeTx.
func (s *Service) Apply(ctx context.Context, req Request) (*models.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := rejectUngatedWin(req.Type); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	var (
		rec     *models.Transaction
		created bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		rec, created, err = s.ApplyTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, s.failed(req.Type, req.ProfileID, err)
	}

	if created {
		s.Committed(ctx, *rec)
	}
	return rec, nil
}

// ApplyTx: то же, что Apply, внутри транзакции вызывающего кода.
// Второе значение: была ли создана новая запись (false при повторе).
// После фиксации вызывающий код должен вызвать Committed для новой записи.
func (s *Service) ApplyTx(ctx context.Context, tx db.Tx, req Request) (*models.Transaction, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	existing, err := tx.FindTransaction(ctx, req.Ref())
	if err == nil {
		if err := sameOperation(existing, req); err != nil {
			return nil, false, err
		}
		log.WithFields(log.Fields{
			"tx_id":  existing.ID,
			"status": existing.Status,
		}).Debug("Повтор операции, эффект уже применён")
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrTransactionNotFound) {
		return nil, false, err
	}

	bal, err := tx.LockBalance(ctx, req.ProfileID)
	if err != nil {
		return nil, false, err
	}
	before, after, err := applyDelta(bal, req.Asset, req.Type, req.Points)
	if err != nil {
		return nil, false, err
	}
	if err := tx.SetBalance(ctx, bal); err != nil {
		return nil, false, err
	}

	rec := newRecord(req, models.StatusCompleted)
	rec.BalanceBefore = before
	rec.BalanceAfter = after
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// CreatePending создаёт транзакцию PENDING без влияния на баланс:
// оплата ждёт подтверждения шлюза, вывод ждёт выплаты.
// Повтор с тем же ID/order_id возвращает существующую запись.
func (s *Service) CreatePending(ctx context.Context, req Request) (*models.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := rejectUngatedWin(req.Type); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	var (
		rec     *models.Transaction
		created bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		existing, err := tx.FindTransaction(ctx, req.Ref())
		if err == nil {
			if err := sameOperation(existing, req); err != nil {
				return err
			}
			rec = existing
			return nil
		}
		if !errors.Is(err, common.ErrTransactionNotFound) {
			return err
		}

		rec = newRecord(req, models.StatusPending)
		created = true
		return tx.InsertTransaction(ctx, rec)
	})
	if err != nil {
		return nil, s.failed(req.Type, req.ProfileID, err)
	}

	if created {
		log.WithFields(log.Fields{
			"tx_id":    rec.ID,
			"order_id": rec.OrderID,
			"type":     rec.Type,
			"points":   rec.Points,
		}).Info("Создана ожидающая транзакция")
		s.publish(ctx, *rec)
	}
	return rec, nil
}

// Complete переводит PENDING → COMPLETED и применяет эффект на баланс
// в той же транзакции. Повторный вызов для COMPLETED ничего не меняет.
//
// Ошибки:
//   - ErrTransactionNotFound: транзакции нет
//   - ErrInvalidTransition: транзакция уже FAILED
//   - ErrInsufficientBalance: списание больше баланса (транзакция остаётся PENDING)
//
// Пока запись не удалась (ErrLedgerWriteFailed), транзакция удерживается
// от SweepStale: подтверждение будет повторено.
func (s *Service) Complete(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	s.hold(ref)
	rec, err := s.complete(ctx, ref)
	if !errors.Is(err, common.ErrLedgerWriteFailed) {
		s.release(ref)
	}
	return rec, err
}

func (s *Service) complete(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	var (
		rec     *models.Transaction
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		rec, err = tx.FindTransaction(ctx, ref)
		if err != nil {
			return err
		}

		switch rec.Status {
		case models.StatusCompleted:
			return nil
		case models.StatusFailed:
			return fmt.Errorf("%w: %s уже FAILED", common.ErrInvalidTransition, rec.ID)
		}

		bal, err := tx.LockBalance(ctx, rec.ProfileID)
		if err != nil {
			return err
		}
		before, after, err := applyDelta(bal, rec.Asset, rec.Type, rec.Points)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, bal); err != nil {
			return err
		}

		rec.Status = models.StatusCompleted
		rec.BalanceBefore = before
		rec.BalanceAfter = after
		changed = true
		return tx.UpdateTransaction(ctx, rec)
	})
	if err != nil {
		return nil, s.failed(models.TxType("COMPLETE"), uuid.Nil, err)
	}

	if changed {
		s.Committed(ctx, *rec)
	}
	return rec, nil
}

// Fail переводит PENDING → FAILED без влияния на баланс.
// Для PAYMENT дополнительно пишется запись PAYMENT_FAILED для истории.
// Повторный вызов для FAILED ничего не меняет.
func (s *Service) Fail(ctx context.Context, ref db.TxRef, reason string) (*models.Transaction, error) {
	var (
		rec     *models.Transaction
		audit   *models.Transaction
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		rec, err = tx.FindTransaction(ctx, ref)
		if err != nil {
			return err
		}

		switch rec.Status {
		case models.StatusFailed:
			return nil
		case models.StatusCompleted:
			return fmt.Errorf("%w: %s уже COMPLETED", common.ErrInvalidTransition, rec.ID)
		}

		rec.Status = models.StatusFailed
		if reason != "" {
			rec.Description = joinDescription(rec.Description, reason)
		}
		if err := tx.UpdateTransaction(ctx, rec); err != nil {
			return err
		}
		changed = true

		if rec.Type != models.TxPayment {
			return nil
		}
		bal, err := tx.LockBalance(ctx, rec.ProfileID)
		if err != nil {
			return err
		}
		current := bal.Get(rec.Asset)
		audit = &models.Transaction{
			ID:            uuid.New(),
			ProfileID:     rec.ProfileID,
			Type:          models.TxPaymentFailed,
			Status:        models.StatusCompleted,
			Asset:         rec.Asset,
			Points:        rec.Points,
			Amount:        rec.Amount,
			Currency:      rec.Currency,
			BalanceBefore: current,
			BalanceAfter:  current,
			Description:   joinDescription("Оплата не прошла: "+rec.OrderID, reason),
		}
		return tx.InsertTransaction(ctx, audit)
	})
	if err != nil {
		return nil, s.failed(models.TxType("FAIL"), uuid.Nil, err)
	}

	if changed {
		log.WithFields(log.Fields{
			"tx_id":  rec.ID,
			"type":   rec.Type,
			"reason": reason,
		}).Info("Транзакция отклонена")
		metrics.LedgerTransactions.WithLabelValues(string(rec.Type), "failed").Inc()
		s.publish(ctx, *rec)
		if audit != nil {
			s.publish(ctx, *audit)
		}
	}
	return rec, nil
}

// SweepStale отклоняет PENDING-транзакции старше ttl.
// Возвращает число отклонённых.
func (s *Service) SweepStale(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	stale, err := s.store.ListStalePending(ctx, s.now().Add(-ttl), limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrLedgerWriteFailed, err)
	}

	swept := 0
	for _, t := range stale {
		err := s.failUnlessHeld(ctx, t)
		if errors.Is(err, errHeld) {
			log.WithFields(log.Fields{
				"tx_id":    t.ID,
				"order_id": t.OrderID,
			}).Info("Подтверждение ещё записывается, не отклоняем")
			continue
		}
		if errors.Is(err, common.ErrInvalidTransition) {
			// Успели подтвердить между выборкой и отклонением
			continue
		}
		if err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

var errHeld = errors.New("транзакция удерживается подтверждением")

// failUnlessHeld отклоняет t, если для неё нет незаписанного подтверждения.
// holdMu держится на время Fail, чтобы Complete не проскочил между проверкой и записью.
func (s *Service) failUnlessHeld(ctx context.Context, t models.Transaction) error {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	if s.isHeld(t) {
		return errHeld
	}
	_, err := s.Fail(ctx, db.TxRef{ID: t.ID}, "истёк срок ожидания")
	return err
}

func (s *Service) hold(ref db.TxRef) {
	s.holdMu.Lock()
	s.held[holdKey(ref)] = struct{}{}
	s.holdMu.Unlock()
}

func (s *Service) release(ref db.TxRef) {
	s.holdMu.Lock()
	delete(s.held, holdKey(ref))
	s.holdMu.Unlock()
}

// isHeld: вызывать под holdMu.
func (s *Service) isHeld(t models.Transaction) bool {
	if _, ok := s.held["id:"+t.ID.String()]; ok {
		return true
	}
	if t.OrderID == "" {
		return false
	}
	_, ok := s.held["order:"+t.OrderID]
	return ok
}

func holdKey(ref db.TxRef) string {
	if ref.OrderID != "" {
		return "order:" + ref.OrderID
	}
	return "id:" + ref.ID.String()
}

// History возвращает последние транзакции профиля.
func (s *Service) History(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, profileID, limit)
}

// Balance возвращает балансы профиля.
func (s *Service) Balance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	return s.store.GetBalance(ctx, profileID)
}

// Transaction возвращает транзакцию по ID или order_id.
func (s *Service) Transaction(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	return s.store.GetTransaction(ctx, ref)
}

// Committed логирует и публикует зафиксированную транзакцию.
func (s *Service) Committed(ctx context.Context, t models.Transaction) {
	metrics.LedgerTransactions.WithLabelValues(string(t.Type), metrics.ResultOK).Inc()
	log.WithFields(log.Fields{
		"tx_id":   t.ID,
		"profile": t.ProfileID,
		"type":    t.Type,
		"points":  t.Points,
		"before":  t.BalanceBefore,
		"after":   t.BalanceAfter,
	}).Info("Операция проведена")
	s.publish(ctx, t)
}

func (s *Service) publish(ctx context.Context, t models.Transaction) {
	if err := s.publisher.Publish(ctx, t); err != nil {
		log.WithFields(log.Fields{
			"tx_id": t.ID,
			"error": err,
		}).Warn("Не удалось опубликовать событие журнала")
	}
}

// failed логирует ошибку и оборачивает сбои хранилища в ErrLedgerWriteFailed.
// Бизнес-отказы (нехватка очков и т.д.) возвращаются как есть.
func (s *Service) failed(txType models.TxType, profileID uuid.UUID, err error) error {
	fields := log.Fields{"type": txType, "error": err}
	if profileID != uuid.Nil {
		fields["profile"] = profileID
	}

	if common.IsDomainError(err) {
		metrics.LedgerTransactions.WithLabelValues(string(txType), metrics.ResultDeclined).Inc()
		log.WithFields(fields).Info("Операция отклонена")
		return err
	}

	metrics.LedgerTransactions.WithLabelValues(string(txType), metrics.ResultError).Inc()
	log.WithFields(fields).Error("Ошибка записи в журнал")
	return fmt.Errorf("%w: %w", common.ErrLedgerWriteFailed, err)
}

// applyDelta меняет баланс по активу и возвращает значения до и после.
func applyDelta(bal *models.Balance, asset models.Asset, txType models.TxType, points int64) (int64, int64, error) {
	before := bal.Get(asset)
	sign := txType.Sign()

	if sign > 0 && points > math.MaxInt64-before {
		return 0, 0, fmt.Errorf("%w: переполнение баланса", common.ErrInvalidAmount)
	}
	after := before + sign*points
	if after < 0 {
		return 0, 0, fmt.Errorf("%w: нужно %d, на счёте %d", common.ErrInsufficientBalance, points, before)
	}

	bal.Set(asset, after)
	return before, after, nil
}

func newRecord(req Request, status models.TxStatus) *models.Transaction {
	return &models.Transaction{
		ID:          req.ID,
		ProfileID:   req.ProfileID,
		OrderID:     req.OrderID,
		Type:        req.Type,
		Status:      status,
		Asset:       req.Asset,
		Points:      req.Points,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
}

func joinDescription(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " (" + b + ")"
	}
}

// rejectUngatedWin не пускает WIN мимо проверки казны.
func rejectUngatedWin(t models.TxType) error {
	if t == models.TxWin {
		return fmt.Errorf("%w: WIN проводится только вместе с проверкой казны", common.ErrInvalidAmount)
	}
	return nil
}

// sameOperation проверяет, что повтор по тому же ID/order_id описывает ту же операцию.
func sameOperation(existing *models.Transaction, req Request) error {
	if existing.ProfileID != req.ProfileID || existing.Type != req.Type ||
		existing.Points != req.Points || existing.Asset != req.Asset {
		return fmt.Errorf("%w: %s уже занят другой операцией (%s %d для %s)",
			common.ErrInvalidTransition, existing.ID, existing.Type, existing.Points, existing.ProfileID)
	}
	return nil
}
