// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: синхронизация казны,
// отклонение зависших покупок и алерт о низком балансе казны.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
)

const sweepBatch = 500

// TreasurySyncer: казна, которую можно сбросить в БД и перечитать.
type TreasurySyncer interface {
	Sync(ctx context.Context) error
	Balance() int64
}

// PendingSweeper отклоняет зависшие PENDING-транзакции.
type PendingSweeper interface {
	SweepStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// Notifier отправляет алерт администраторам.
type Notifier func(ctx context.Context, text string)

// Options: параметры планировщика.
type Options struct {
	TreasurySchedule string        // Расписание синхронизации казны
	SweepSchedule    string        // Расписание отклонения зависших покупок
	PendingTTL       time.Duration // Возраст, после которого PENDING отклоняется
	LowWatermark     int64         // Порог алерта о казне; 0 = выключен
	Location         *time.Location
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	opts     Options
	treasury TreasurySyncer
	sweeper  PendingSweeper
	notify   Notifier

	mu       sync.Mutex
	alerting bool // Алерт уже отправлен, ждём восстановления баланса
}

// NewScheduler создаёт планировщик задач. notify может быть nil.
func NewScheduler(tr TreasurySyncer, sweeper PendingSweeper, notify Notifier, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(opts.Location)),
		opts:     opts,
		treasury: tr,
		sweeper:  sweeper,
		notify:   notify,
	}
}

// Start регистрирует и запускает задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.opts.TreasurySchedule, func() {
		log.Debug("[CRON] Синхронизация казны")
		s.SyncTreasury(ctx)
	}); err != nil {
		return fmt.Errorf("расписание казны %q: %w", s.opts.TreasurySchedule, err)
	}

	if _, err := s.cron.AddFunc(s.opts.SweepSchedule, func() {
		log.Debug("[CRON] Отклонение зависших покупок")
		s.SweepPending(ctx)
	}); err != nil {
		return fmt.Errorf("расписание отклонения %q: %w", s.opts.SweepSchedule, err)
	}

	s.cron.Start()
	log.WithField("tz", s.opts.Location.String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// SyncTreasury сбрасывает казну в БД, перечитывает и проверяет порог.
func (s *Scheduler) SyncTreasury(ctx context.Context) {
	if err := s.treasury.Sync(ctx); err != nil {
		log.WithError(err).Error("[CRON] Ошибка синхронизации казны")
		return
	}
	s.checkWatermark(ctx, s.treasury.Balance())
}

// SweepPending отклоняет покупки, не подтверждённые за PendingTTL.
func (s *Scheduler) SweepPending(ctx context.Context) {
	n, err := s.sweeper.SweepStale(ctx, s.opts.PendingTTL, sweepBatch)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка отклонения зависших покупок")
		return
	}
	if n > 0 {
		log.WithField("count", n).Info("[CRON] Зависшие покупки отклонены")
	}
}

// checkWatermark шлёт один алерт при падении ниже порога
// и одно сообщение при восстановлении.
func (s *Scheduler) checkWatermark(ctx context.Context, balance int64) {
	if s.opts.LowWatermark <= 0 || s.notify == nil {
		return
	}

	s.mu.Lock()
	low := balance < s.opts.LowWatermark
	changed := low != s.alerting
	s.alerting = low
	s.mu.Unlock()

	if !changed {
		return
	}
	if low {
		log.WithFields(log.Fields{
			"balance":   balance,
			"watermark": s.opts.LowWatermark,
		}).Warn("Казна ниже порога")
		s.notify(ctx, fmt.Sprintf("⚠️ Казна ниже порога: %s (порог %s). Крупные призы будут аннулироваться.",
			common.FormatPoints(balance), common.FormatPoints(s.opts.LowWatermark)))
		return
	}
	s.notify(ctx, fmt.Sprintf("✅ Казна восстановлена: %s", common.FormatPoints(balance)))
}
