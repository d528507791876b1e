package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/db/memory"
	"bingoo.app/core/internal/models"
)

// recordingPublisher запоминает опубликованные транзакции.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []models.Transaction
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, t models.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, t)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newService(t *testing.T) (*Service, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	return NewService(store, pub), store, pub
}

func fund(t *testing.T, svc *Service, profile uuid.UUID, points int64) {
	t.Helper()
	if _, err := svc.Apply(context.Background(), Request{ProfileID: profile, Type: models.TxBonus, Points: points}); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func points(t *testing.T, svc *Service, profile uuid.UUID) int64 {
	t.Helper()
	b, err := svc.Balance(context.Background(), profile)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return b.Points
}

func TestApplySignConvention(t *testing.T) {
	tests := []struct {
		txType models.TxType
		want   int64
	}{
		{models.TxPayment, 1_100},
		{models.TxBonus, 1_100},
		{models.TxRefund, 1_100},
		{models.TxAdminPoints, 1_100},
		{models.TxBet, 900},
		{models.TxWithdrawal, 900},
	}

	for _, tc := range tests {
		t.Run(string(tc.txType), func(t *testing.T) {
			svc, _, _ := newService(t)
			profile := uuid.New()
			fund(t, svc, profile, 1_000)

			rec, err := svc.Apply(context.Background(), Request{ProfileID: profile, Type: tc.txType, Points: 100})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got := points(t, svc, profile); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			if rec.Status != models.StatusCompleted || rec.BalanceBefore != 1_000 || rec.BalanceAfter != tc.want {
				t.Fatalf("unexpected record: %+v", rec)
			}
		})
	}
}

func TestApplyIsIdempotentByID(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	id := uuid.New()

	req := Request{ID: id, ProfileID: profile, Type: models.TxBonus, Points: 250}
	first, err := svc.Apply(ctx, req)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	afterFirst := points(t, svc, profile)

	second, err := svc.Apply(ctx, req)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if got := points(t, svc, profile); got != afterFirst {
		t.Fatalf("balance changed on repeat: %d → %d", afterFirst, got)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same record back")
	}
	if pub.count() != 1 {
		t.Fatalf("expected one published event, got %d", pub.count())
	}

	history, _ := svc.History(ctx, profile, 10)
	if len(history) != 1 {
		t.Fatalf("expected one record in history, got %d", len(history))
	}
}

func TestApplyIsIdempotentByOrderID(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Apply(ctx, Request{OrderID: "PAY-42", ProfileID: profile, Type: models.TxPayment, Points: 40})
		if err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
	}
	if got := points(t, svc, profile); got != 40 {
		t.Fatalf("expected 40 points, got %d", got)
	}
}

func TestApplyInsufficientBalanceWritesNothing(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	fund(t, svc, profile, 50)

	_, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxBet, Points: 100})
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if errors.Is(err, common.ErrLedgerWriteFailed) {
		t.Fatalf("business decline must not be reported as a write failure")
	}
	if got := points(t, svc, profile); got != 50 {
		t.Fatalf("expected 50 points, got %d", got)
	}

	history, _ := svc.History(ctx, profile, 10)
	if len(history) != 1 || history[0].Type != models.TxBonus {
		t.Fatalf("expected only the funding record, got %+v", history)
	}
	if pub.count() != 1 {
		t.Fatalf("expected only the funding event, got %d", pub.count())
	}
}

func TestWinThenWithdrawalRoundTrip(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	fund(t, svc, profile, 300)
	start := points(t, svc, profile)

	err := svc.Store().WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, _, err := svc.ApplyTx(ctx, tx, Request{ProfileID: profile, Type: models.TxWin, Points: 200})
		return err
	})
	if err != nil {
		t.Fatalf("WIN: %v", err)
	}
	if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxWithdrawal, Points: 200}); err != nil {
		t.Fatalf("WITHDRAWAL: %v", err)
	}
	if got := points(t, svc, profile); got != start {
		t.Fatalf("expected %d after round trip, got %d", start, got)
	}
}

func TestApplyCoinsAreSeparate(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxBonus, Asset: models.AssetCoins, Points: 30}); err != nil {
		t.Fatalf("Apply coins: %v", err)
	}
	if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxWithdrawal, Asset: models.AssetCoins, Points: 31}); !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for coins, got %v", err)
	}

	b, _ := svc.Balance(ctx, profile)
	if b.Coins != 30 || b.Points != 0 {
		t.Fatalf("expected 30 coins and 0 points, got %+v", b)
	}
}

func TestApplyRejectsInvalidRequests(t *testing.T) {
	svc, _, _ := newService(t)
	profile := uuid.New()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"zero points", Request{ProfileID: profile, Type: models.TxBonus, Points: 0}, common.ErrInvalidAmount},
		{"negative points", Request{ProfileID: profile, Type: models.TxBonus, Points: -10}, common.ErrInvalidAmount},
		{"win outside treasury check", Request{ProfileID: profile, Type: models.TxBonus, Points: 10}, common.ErrInvalidAmount},
		{"record-only type", Request{ProfileID: profile, Type: models.TxPaymentFailed, Points: 10}, common.ErrInvalidAmount},
		{"unknown type", Request{ProfileID: profile, Type: "GIFT", Points: 10}, common.ErrInvalidAmount},
		{"negative amount", Request{ProfileID: profile, Type: models.TxPayment, Points: 10,
			Amount: decimal.NullDecimal{Decimal: decimal.NewFromInt(-1), Valid: true}}, common.ErrInvalidAmount},
		{"no profile", Request{Type: models.TxBonus, Points: 10}, common.ErrProfileNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Apply(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyStoreFailureIsLedgerWriteFailed(t *testing.T) {
	svc, store, pub := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	store.FailNextCommit()

	_, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxBonus, Points: 10})
	if !errors.Is(err, common.ErrLedgerWriteFailed) {
		t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
	}
	if got := points(t, svc, profile); got != 0 {
		t.Fatalf("expected nothing written, got %d points", got)
	}
	if pub.count() != 0 {
		t.Fatalf("expected no events for a failed write")
	}

	// Повтор целиком проходит
	if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxBonus, Points: 10}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPublishFailureDoesNotRollBack(t *testing.T) {
	svc, _, pub := newService(t)
	pub.err = errors.New("broker down")
	profile := uuid.New()

	if _, err := svc.Apply(context.Background(), Request{ProfileID: profile, Type: models.TxBonus, Points: 10}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := points(t, svc, profile); got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}
}

func TestPendingPaymentComplete(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	pending, err := svc.CreatePending(ctx, Request{
		OrderID:   "PAY-1",
		ProfileID: profile,
		Type:      models.TxPayment,
		Points:    100,
		Amount:    decimal.NullDecimal{Decimal: decimal.NewFromInt(50), Valid: true},
		Currency:  models.CurrencyEUR,
	})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if pending.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", pending.Status)
	}
	if got := points(t, svc, profile); got != 0 {
		t.Fatalf("pending must not change balance, got %d", got)
	}

	for i := 0; i < 2; i++ {
		rec, err := svc.Complete(ctx, db.TxRef{OrderID: "PAY-1"})
		if err != nil {
			t.Fatalf("Complete #%d: %v", i, err)
		}
		if rec.Status != models.StatusCompleted {
			t.Fatalf("expected COMPLETED, got %s", rec.Status)
		}
	}
	if got := points(t, svc, profile); got != 100 {
		t.Fatalf("expected 100 points after duplicate confirmations, got %d", got)
	}

	if _, err := svc.Fail(ctx, db.TxRef{OrderID: "PAY-1"}, "late decline"); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPendingPaymentFail(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	if _, err := svc.CreatePending(ctx, Request{OrderID: "PAY-2", ProfileID: profile, Type: models.TxPayment, Points: 100}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec, err := svc.Fail(ctx, db.TxRef{OrderID: "PAY-2"}, "card declined")
		if err != nil {
			t.Fatalf("Fail #%d: %v", i, err)
		}
		if rec.Status != models.StatusFailed {
			t.Fatalf("expected FAILED, got %s", rec.Status)
		}
	}

	if got := points(t, svc, profile); got != 0 {
		t.Fatalf("expected 0 points, got %d", got)
	}
	if _, err := svc.Complete(ctx, db.TxRef{OrderID: "PAY-2"}); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	history, _ := svc.History(ctx, profile, 10)
	var audits int
	for _, h := range history {
		if h.Type == models.TxPaymentFailed {
			audits++
		}
	}
	if audits != 1 {
		t.Fatalf("expected exactly one PAYMENT_FAILED record, got %d", audits)
	}
}

func TestCompleteUnknownTransaction(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.Complete(context.Background(), db.TxRef{OrderID: "missing"}); !errors.Is(err, common.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestPendingWithdrawalNeedsFundsOnComplete(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	fund(t, svc, profile, 50)

	pending, err := svc.CreatePending(ctx, Request{ProfileID: profile, Type: models.TxWithdrawal, Points: 80})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.Complete(ctx, db.TxRef{ID: pending.ID}); !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	rec, _ := svc.Transaction(ctx, db.TxRef{ID: pending.ID})
	if rec.Status != models.StatusPending {
		t.Fatalf("expected record to stay PENDING, got %s", rec.Status)
	}
}

func TestSweepStale(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	old := time.Now().Add(-48 * time.Hour)
	store.SetClock(func() time.Time { return old })
	if _, err := svc.CreatePending(ctx, Request{OrderID: "OLD", ProfileID: profile, Type: models.TxPayment, Points: 10}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	store.SetClock(time.Now)
	if _, err := svc.CreatePending(ctx, Request{OrderID: "NEW", ProfileID: profile, Type: models.TxPayment, Points: 10}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	swept, err := svc.SweepStale(ctx, 24*time.Hour, 100)
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	oldRec, _ := svc.Transaction(ctx, db.TxRef{OrderID: "OLD"})
	newRec, _ := svc.Transaction(ctx, db.TxRef{OrderID: "NEW"})
	if oldRec.Status != models.StatusFailed || newRec.Status != models.StatusPending {
		t.Fatalf("unexpected statuses: old=%s new=%s", oldRec.Status, newRec.Status)
	}
}

func TestConcurrentBetsNeverOverdraw(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()
	fund(t, svc, profile, 1_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxBet, Points: 50}); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if okCount != 20 {
		t.Fatalf("expected exactly 20 successful bets, got %d", okCount)
	}
	if got := points(t, svc, profile); got != 0 {
		t.Fatalf("expected 0 points left, got %d", got)
	}
}

func TestWinIsRejectedOutsideTreasuryCheck(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	if _, err := svc.Apply(ctx, Request{ProfileID: profile, Type: models.TxWin, Points: 500}); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected Apply to reject WIN, got %v", err)
	}
	if _, err := svc.CreatePending(ctx, Request{ProfileID: profile, Type: models.TxWin, Points: 500}); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected CreatePending to reject WIN, got %v", err)
	}
	if got := points(t, svc, profile); got != 0 {
		t.Fatalf("expected no points, got %d", got)
	}
	if pub.count() != 0 {
		t.Fatalf("expected no events, got %d", pub.count())
	}
}

func TestReusedIDWithDifferentOperation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	id := uuid.New()

	if _, err := svc.Apply(ctx, Request{ID: id, ProfileID: alice, Type: models.TxBonus, Points: 100}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	tests := []struct {
		name string
		req  Request
	}{
		{"other profile", Request{ID: id, ProfileID: bob, Type: models.TxBonus, Points: 100}},
		{"other type", Request{ID: id, ProfileID: alice, Type: models.TxAdminPoints, Points: 100}},
		{"other points", Request{ID: id, ProfileID: alice, Type: models.TxBonus, Points: 999}},
		{"other asset", Request{ID: id, ProfileID: alice, Type: models.TxBonus, Asset: models.AssetCoins, Points: 100}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := svc.Apply(ctx, tc.req)
			if !errors.Is(err, common.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v (%+v)", err, rec)
			}
		})
	}

	if got := points(t, svc, bob); got != 0 {
		t.Fatalf("bob must not receive anything, got %d", got)
	}
	if got := points(t, svc, alice); got != 100 {
		t.Fatalf("expected alice to keep 100, got %d", got)
	}

	if _, err := svc.CreatePending(ctx, Request{OrderID: "PAY-9", ProfileID: alice, Type: models.TxPayment, Points: 10}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.CreatePending(ctx, Request{OrderID: "PAY-9", ProfileID: bob, Type: models.TxPayment, Points: 10}); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for reused order id, got %v", err)
	}
}

func TestSweepSkipsCaptureAwaitingRetry(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	profile := uuid.New()

	store.SetClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })
	if _, err := svc.CreatePending(ctx, Request{OrderID: "PAY-CAP", ProfileID: profile, Type: models.TxPayment, Points: 100}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	store.SetClock(time.Now)

	store.FailNextCommit()
	if _, err := svc.Complete(ctx, db.TxRef{OrderID: "PAY-CAP"}); !errors.Is(err, common.ErrLedgerWriteFailed) {
		t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
	}

	swept, err := svc.SweepStale(ctx, 24*time.Hour, 100)
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if swept != 0 {
		t.Fatalf("captured payment must not be swept, swept=%d", swept)
	}

	rec, err := svc.Complete(ctx, db.TxRef{OrderID: "PAY-CAP"})
	if err != nil {
		t.Fatalf("retry Complete: %v", err)
	}
	if rec.Status != models.StatusCompleted || points(t, svc, profile) != 100 {
		t.Fatalf("expected COMPLETED with 100 points, got %s / %d", rec.Status, points(t, svc, profile))
	}

	// После успешной записи удержание снято
	if _, err := svc.CreatePending(ctx, Request{OrderID: "PAY-OLD", ProfileID: profile, Type: models.TxPayment, Points: 5}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if swept, _ := svc.SweepStale(ctx, 24*time.Hour, 100); swept != 1 {
		t.Fatalf("expected only PAY-OLD swept, got %d", swept)
	}
}
