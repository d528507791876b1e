// Package game: service.go координирует раунд от ставки до выплаты.
//
// Поток раунда:
//  1. PlaceBet: лимит частоты, цена ставки по региону, списание BET
//  2. ResolveRound: розыгрыш карт, при выигрыше проверка казны
//  3. Списание казны и начисление WIN: в одной транзакции хранилища
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/features/ledger"
	"bingoo.app/core/internal/features/pricing"
	"bingoo.app/core/internal/features/prize"
	"bingoo.app/core/internal/features/treasury"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/models"
)

// Limiter ограничивает частоту ставок одного профиля.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Service: входные операции экономики.
type Service struct {
	ledger        *ledger.Service
	gate          *treasury.Gate
	calc          *pricing.Calculator
	gen           *prize.Generator
	limiter       Limiter
	configs       Configs
	defaultRegion models.Region
	stats         *Stats
}

// Options: зависимости сервиса.
type Options struct {
	Ledger        *ledger.Service
	Gate          *treasury.Gate
	Calculator    *pricing.Calculator // nil = таблица цен по умолчанию
	Generator     *prize.Generator    // nil = PCG со случайным зерном
	Limiter       Limiter             // nil = без ограничения
	Configs       Configs
	DefaultRegion models.Region // Регион для неизвестных регионов игроков
}

// NewService создаёт игровой сервис.
func NewService(opts Options) *Service {
	if opts.Calculator == nil {
		opts.Calculator = pricing.NewCalculator(nil)
	}
	if opts.Generator == nil {
		opts.Generator = prize.NewGenerator(nil)
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = models.RegionEurope
	}
	return &Service{
		ledger:        opts.Ledger,
		gate:          opts.Gate,
		calc:          opts.Calculator,
		gen:           opts.Generator,
		limiter:       opts.Limiter,
		configs:       opts.Configs,
		defaultRegion: opts.DefaultRegion,
		stats:         NewStats(),
	}
}

// Stats возвращает статистику игр.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Configs возвращает настройки включённых игр.
func (s *Service) Configs() Configs {
	return s.configs
}

// PlaceBet списывает ставку points очков с профиля.
// Стоимость ставки в валюте региона сохраняется в записи BET.
// Если регион неизвестен: используется регион по умолчанию.
//
// Ошибки:
//   - ErrInvalidAmount: points <= 0
//   - ErrRateLimited: слишком частые ставки
//   - ErrInsufficientBalance: очков меньше ставки
//   - ErrLedgerWriteFailed: сбой записи, ничего не списано
func (s *Service) PlaceBet(ctx context.Context, profileID uuid.UUID, region models.Region, points int64) (*BetReceipt, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: ставка %d", common.ErrInvalidAmount, points)
	}
	if err := s.checkRate(ctx, profileID); err != nil {
		return nil, err
	}

	charge, used, err := s.price(points, region)
	if err != nil {
		return nil, err
	}

	rec, err := s.ledger.Apply(ctx, ledger.Request{
		ProfileID:   profileID,
		Type:        models.TxBet,
		Points:      points,
		Amount:      decimal.NullDecimal{Decimal: charge.Amount, Valid: true},
		Currency:    charge.Currency,
		Description: "Ставка " + pricing.PointsToDisplayString(points),
	})
	if err != nil {
		return nil, err
	}

	return &BetReceipt{Transaction: rec, Charge: charge, Region: used}, nil
}

// ResolveRound разыгрывает раунд для уже принятой ставки bet.
//
// При выигрыше проверка казны и начисление WIN выполняются в одной
// транзакции хранилища. Если казна не покрывает приз: раунд аннулируется
// (OutcomeVoided, приз 0), это не ошибка. Если запись не удалась,
// ни казна, ни баланс игрока не меняются.
func (s *Service) ResolveRound(ctx context.Context, profileID uuid.UUID, bet int64, cfg prize.GameConfig) (*RoundResult, error) {
	if bet <= 0 {
		return nil, fmt.Errorf("%w: ставка %d", common.ErrInvalidAmount, bet)
	}

	round, err := s.gen.Draw(cfg, bet)
	if err != nil {
		return nil, err
	}

	res := &RoundResult{
		RoundID: uuid.New(),
		Outcome: OutcomeLost,
		Cards:   round.Cards,
		Pick:    round.Pick,
	}
	// Нулевой приз (потолок 0) платить нечем: это проигрыш
	if !round.Won || round.Prize.Value == 0 {
		return res, nil
	}

	var (
		rec     *models.Transaction
		created bool
		after   models.Treasury
	)
	err = s.ledger.Store().WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		after, err = s.gate.AuthorizeTx(ctx, tx, round.Prize)
		if err != nil {
			return err
		}
		rec, created, err = s.ledger.ApplyTx(ctx, tx, ledger.Request{
			ID:          res.RoundID,
			ProfileID:   profileID,
			Type:        models.TxWin,
			Points:      round.Prize.Value,
			Description: fmt.Sprintf("Выигрыш: %s", round.Prize.Name),
		})
		return err
	})

	if errors.Is(err, common.ErrTreasuryInsufficient) {
		log.WithFields(log.Fields{
			"profile": profileID,
			"round":   res.RoundID,
			"prize":   round.Prize.Value,
		}).Info("Раунд аннулирован: казна не покрывает приз")
		res.Outcome = OutcomeVoided
		res.Prize = models.Prize{Type: round.Prize.Type, Name: round.Prize.Name}
		return res, nil
	}
	if err != nil {
		if !common.IsDomainError(err) {
			log.WithFields(log.Fields{
				"profile": profileID,
				"round":   res.RoundID,
				"error":   err,
			}).Error("Ошибка записи выигрыша")
			err = fmt.Errorf("%w: %w", common.ErrLedgerWriteFailed, err)
		}
		return nil, err
	}

	// Транзакция зафиксирована: обновляем копию казны в памяти.
	// Более старое состояние параллельного раунда копия отбросит сама.
	s.gate.Observe(after)
	if created {
		s.ledger.Committed(ctx, *rec)
	}

	res.Outcome = OutcomeWon
	res.Prize = round.Prize
	res.Transaction = rec
	res.Balance = rec.BalanceAfter
	return res, nil
}

// ResolveGame разыгрывает раунд игры gt и учитывает его в статистике.
func (s *Service) ResolveGame(ctx context.Context, profileID uuid.UUID, gt GameType, bet int64) (*RoundResult, error) {
	cfg, err := s.configs.For(gt)
	if err != nil {
		return nil, err
	}
	res, err := s.ResolveRound(ctx, profileID, bet, cfg)
	if err != nil {
		return nil, err
	}

	s.stats.Record(gt, bet, res)
	metrics.Rounds.WithLabelValues(string(gt), string(res.Outcome)).Inc()
	return res, nil
}

// Play проводит полный раунд: проверка минимальной ставки, ставка и розыгрыш.
// Если ставка списана, а розыгрыш упал на записи: ставка уже в журнале,
// вызывающий код может повторить ResolveGame.
func (s *Service) Play(ctx context.Context, profileID uuid.UUID, region models.Region, gt GameType, points int64) (*PlayResult, error) {
	cfg, err := s.configs.For(gt)
	if err != nil {
		return nil, err
	}
	if points < cfg.MinBet {
		return nil, fmt.Errorf("%w: минимум %d", common.ErrBetBelowMinimum, cfg.MinBet)
	}

	bet, err := s.PlaceBet(ctx, profileID, region, points)
	if err != nil {
		return nil, err
	}
	round, err := s.ResolveGame(ctx, profileID, gt, points)
	if err != nil {
		return &PlayResult{Bet: bet}, err
	}
	return &PlayResult{Bet: bet, Round: round}, nil
}

// CreditPoints начисляет очки администратором (ADMIN_POINTS).
func (s *Service) CreditPoints(ctx context.Context, profileID uuid.UUID, points int64, reason string) (*models.Transaction, error) {
	return s.ledger.Apply(ctx, ledger.Request{
		ProfileID:   profileID,
		Type:        models.TxAdminPoints,
		Points:      points,
		Description: reason,
	})
}

// CreditBonus начисляет бонус платформы (BONUS).
func (s *Service) CreditBonus(ctx context.Context, profileID uuid.UUID, points int64, reason string) (*models.Transaction, error) {
	return s.ledger.Apply(ctx, ledger.Request{
		ProfileID:   profileID,
		Type:        models.TxBonus,
		Points:      points,
		Description: reason,
	})
}

// DebitPoints списывает очки при выводе (WITHDRAWAL).
// Очков меньше суммы: ErrInsufficientBalance, ничего не списано.
func (s *Service) DebitPoints(ctx context.Context, profileID uuid.UUID, points int64, reason string) (*models.Transaction, error) {
	return s.ledger.Apply(ctx, ledger.Request{
		ProfileID:   profileID,
		Type:        models.TxWithdrawal,
		Points:      points,
		Description: reason,
	})
}

// PurchasePoints создаёт ожидающую покупку очков по заказу платёжного шлюза.
// Очки начисляются, когда шлюз подтвердит оплату (ledger.Complete по orderID).
func (s *Service) PurchasePoints(ctx context.Context, profileID uuid.UUID, region models.Region, points int64, orderID string) (*models.Transaction, pricing.Charge, error) {
	if orderID == "" {
		return nil, pricing.Charge{}, fmt.Errorf("%w: пустой номер заказа", common.ErrInvalidAmount)
	}
	if points <= 0 {
		return nil, pricing.Charge{}, fmt.Errorf("%w: %d очков", common.ErrInvalidAmount, points)
	}

	charge, _, err := s.price(points, region)
	if err != nil {
		return nil, pricing.Charge{}, err
	}

	rec, err := s.ledger.CreatePending(ctx, ledger.Request{
		OrderID:     orderID,
		ProfileID:   profileID,
		Type:        models.TxPayment,
		Points:      points,
		Amount:      decimal.NullDecimal{Decimal: charge.Amount, Valid: true},
		Currency:    charge.Currency,
		Description: "Покупка " + pricing.PointsToDisplayString(points) + " за " + charge.String(),
	})
	if err != nil {
		return nil, pricing.Charge{}, err
	}
	return rec, charge, nil
}

// price считает стоимость, подставляя регион по умолчанию для неизвестного региона.
func (s *Service) price(points int64, region models.Region) (pricing.Charge, models.Region, error) {
	charge, err := s.calc.Cost(points, region)
	if err == nil {
		return charge, region, nil
	}
	if !errors.Is(err, common.ErrUnknownRegion) {
		return pricing.Charge{}, "", err
	}

	log.WithFields(log.Fields{
		"region":   region,
		"fallback": s.defaultRegion,
	}).Warn("Неизвестный регион, используем регион по умолчанию")

	charge, err = s.calc.Cost(points, s.defaultRegion)
	if err != nil {
		return pricing.Charge{}, "", err
	}
	return charge, s.defaultRegion, nil
}

// checkRate проверяет лимит ставок. Если лимитер недоступен: ставка пропускается.
func (s *Service) checkRate(ctx context.Context, profileID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "bet:"+profileID.String())
	if err != nil {
		log.WithError(err).Warn("Лимитер ставок недоступен, пропускаем проверку")
		return nil
	}
	if !ok {
		metrics.BetsRateLimited.Inc()
		return common.ErrRateLimited
	}
	return nil
}
