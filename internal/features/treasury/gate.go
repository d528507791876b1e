// Package treasury: gate.go решает, можно ли выплатить приз.
//
// Казна должна покрывать приз с запасом: баланс >= приз × multiplier
// (по умолчанию 4). Только тогда приз резервируется: баланс уменьшается
// на размер приза. Баланс казны никогда не уходит в минус.
package treasury

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/models"
)

// DefaultReserveMultiplier: запас казны относительно приза.
const DefaultReserveMultiplier = 4

// Gate: проверка казны перед выплатой приза.
type Gate struct {
	treasury   *Treasury
	multiplier int64
}

// NewGate создаёт проверку казны с заданным множителем запаса.
// multiplier < 1 заменяется на DefaultReserveMultiplier.
func NewGate(t *Treasury, multiplier int64) *Gate {
	if multiplier < 1 {
		multiplier = DefaultReserveMultiplier
	}
	return &Gate{treasury: t, multiplier: multiplier}
}

// Treasury возвращает казну, с которой работает проверка.
func (g *Gate) Treasury() *Treasury {
	return g.treasury
}

// RequiredBalance возвращает минимальный баланс казны для выплаты приза.
// Если приз × multiplier не помещается в int64, возвращает math.MaxInt64:
// такой приз не покрывается никаким балансом.
func (g *Gate) RequiredBalance(p models.Prize) int64 {
	if g.overflows(p) {
		return math.MaxInt64
	}
	return p.Value * g.multiplier
}

// covers сообщает, покрывает ли balance приз с запасом.
func (g *Gate) covers(balance int64, p models.Prize) bool {
	if p.Value < 0 || g.overflows(p) {
		return false
	}
	return balance >= p.Value*g.multiplier
}

func (g *Gate) overflows(p models.Prize) bool {
	return p.Value > math.MaxInt64/g.multiplier
}

// CanAuthorize сообщает, покрывает ли текущий баланс казны приз с запасом.
func (g *Gate) CanAuthorize(p models.Prize) bool {
	return g.covers(g.treasury.Balance(), p)
}

// Reserve атомарно проверяет и резервирует приз в копии казны в памяти.
// Возвращает false и ничего не меняет, если казна не покрывает приз.
//
// Резерв копится в памяти и списывается в хранилище через Flush.
// Для выплат с записью в журнал используется AuthorizeTx.
func (g *Gate) Reserve(p models.Prize) bool {
	if p.Value < 0 {
		return false
	}

	t := g.treasury
	t.mu.Lock()
	balance := t.available()
	if !g.covers(balance, p) {
		t.mu.Unlock()
		g.declined(p, balance)
		return false
	}
	t.reserved += p.Value
	t.lastUpdated = t.stamp()
	balance = t.available()
	t.mu.Unlock()

	metrics.TreasuryBalance.Set(float64(balance))
	metrics.PrizeAuthorizations.WithLabelValues("authorized").Inc()
	return true
}

// UpdateBalance принимает новый баланс хранилища от внешнего источника
// (например, сверка с бухгалтерией). Несохранённые резервирования Reserve
// при этом не теряются: доступный баланс равен newBalance минус они.
func (g *Gate) UpdateBalance(newBalance int64) error {
	if newBalance < 0 {
		return fmt.Errorf("%w: баланс казны %d", common.ErrInvalidAmount, newBalance)
	}
	g.treasury.set(newBalance, g.treasury.stamp())
	return nil
}

// Observe передаёт в копию казны состояние после фиксации AuthorizeTx.
func (g *Gate) Observe(after models.Treasury) {
	g.treasury.Observe(after)
}

// AuthorizeTx: то же правило, что Reserve, но внутри транзакции хранилища.
// Блокирует строку казны, проверяет запас и записывает баланс − приз.
// Списание станет видимым только вместе с остальной транзакцией (WIN в журнале).
// После фиксации вызывающий код должен передать результат в Observe.
//
// Ошибки:
//   - ErrTreasuryInsufficient: казна не покрывает приз (это решение, а не сбой)
//   - ErrInvalidAmount: отрицательный приз
func (g *Gate) AuthorizeTx(ctx context.Context, tx db.Tx, p models.Prize) (models.Treasury, error) {
	if p.Value < 0 {
		return models.Treasury{}, fmt.Errorf("%w: приз %d", common.ErrInvalidAmount, p.Value)
	}

	cur, err := tx.LockTreasury(ctx)
	if err != nil {
		return models.Treasury{}, err
	}

	if !g.covers(cur.Balance, p) {
		g.declined(p, cur.Balance)
		return models.Treasury{}, fmt.Errorf("%w: нужно %d, в казне %d",
			common.ErrTreasuryInsufficient, g.RequiredBalance(p), cur.Balance)
	}

	cur.Balance -= p.Value
	cur.LastUpdated = g.treasury.stamp()
	if err := tx.SetTreasury(ctx, cur); err != nil {
		return models.Treasury{}, err
	}

	metrics.PrizeAuthorizations.WithLabelValues("authorized").Inc()
	return cur, nil
}

// declined логирует отказ на уровне Info: это бизнес-решение, а не ошибка.
func (g *Gate) declined(p models.Prize, balance int64) {
	metrics.PrizeAuthorizations.WithLabelValues("declined").Inc()
	log.WithFields(log.Fields{
		"prize":    p.Value,
		"type":     p.Type,
		"required": g.RequiredBalance(p),
		"balance":  balance,
	}).Info("Казна не покрывает приз")
}
