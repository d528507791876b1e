// Package app инициализирует все компоненты приложения.
// app.go собирает БД-пул, хранилище, казну, журнал, игры,
// шину событий, лимитер ставок, сервер метрик, админ-бот и планировщик.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/bot"
	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/config"
	"bingoo.app/core/internal/db/postgres"
	"bingoo.app/core/internal/events"
	"bingoo.app/core/internal/features/admin"
	"bingoo.app/core/internal/features/game"
	"bingoo.app/core/internal/features/ledger"
	"bingoo.app/core/internal/features/pricing"
	"bingoo.app/core/internal/features/treasury"
	"bingoo.app/core/internal/jobs"
	"bingoo.app/core/internal/metrics"
	"bingoo.app/core/internal/ratelimit"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Store     *postgres.Store
	Treasury  *treasury.Treasury
	Gate      *treasury.Gate
	Ledger    *ledger.Service
	Game      *game.Service
	Admins    *admin.Service
	Bot       *bot.Bot // nil, если TELEGRAM_BOT_TOKEN не задан
	Scheduler *jobs.Scheduler
	Payments  *events.PaymentConsumer // nil без Kafka

	metricsServer *http.Server
	limiter       *ratelimit.Memory
	redis         *redis.Client
	ledgerWriter  *kafka.Writer
	paymentReader *kafka.Reader
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	defaultRegion, err := pricing.ParseRegion(cfg.EconomyDefaultRegion)
	if err != nil {
		return nil, fmt.Errorf("ECONOMY_DEFAULT_REGION: %w", err)
	}
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 1. База данных ===
	a.DB, err = postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, a.DB); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	a.Store = postgres.NewStore(a.DB)

	// === 2. Казна ===
	// Close сбрасывает казну в БД, поэтому a.Treasury задаётся только после Load
	tr := treasury.New(a.Store)
	if err := tr.Load(ctx, cfg.EconomyInitialTreasury); err != nil {
		return nil, fmt.Errorf("ошибка загрузки казны: %w", err)
	}
	a.Treasury = tr
	a.Gate = treasury.NewGate(a.Treasury, cfg.EconomyReserveMultiplier)

	// === 3. Шина событий ===
	var publisher ledger.Publisher = ledger.NopPublisher{}
	if brokers := events.Brokers(cfg.KafkaBrokers); len(brokers) > 0 {
		a.ledgerWriter = events.NewWriter(brokers, cfg.KafkaTopicLedger)
		publisher = events.NewKafkaPublisher(a.ledgerWriter)
		a.paymentReader = events.NewReader(brokers, cfg.KafkaTopicPayments, cfg.KafkaGroupID)
		log.WithField("brokers", brokers).Info("Kafka подключена")
	} else {
		log.Info("KAFKA_BROKERS не задан, события журнала не публикуются")
	}

	// === 4. Журнал ===
	a.Ledger = ledger.NewService(a.Store, publisher)
	if a.paymentReader != nil {
		a.Payments = events.NewPaymentConsumer(a.paymentReader, a.Ledger)
	}

	// === 5. Лимит ставок ===
	var limiter game.Limiter
	if cfg.RedisAddr != "" {
		a.redis, err = ratelimit.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		limiter = ratelimit.NewRedis(a.redis, "bingoo:bets", cfg.RateLimitRequests, cfg.RateLimitWindow)
		log.WithField("addr", cfg.RedisAddr).Info("Лимит ставок в Redis")
	} else {
		a.limiter = ratelimit.NewMemory(cfg.RateLimitRequests, cfg.RateLimitWindow)
		limiter = a.limiter
	}

	// === 6. Игры ===
	a.Game = game.NewService(game.Options{
		Ledger:        a.Ledger,
		Gate:          a.Gate,
		Limiter:       limiter,
		Configs:       game.NewConfigs(cfg),
		DefaultRegion: defaultRegion,
	})

	// === 7. Админ-бот ===
	a.Admins = admin.NewService(admin.NewRepository(a.DB), cfg.AdminIDs, cfg.AdminPasswordHash)
	var notify jobs.Notifier
	if cfg.BotEnabled() {
		api, err := bot.NewAPI(ctx, cfg.TelegramBotToken)
		if err != nil {
			return nil, err
		}
		commands := bot.NewCommands(a.Admins, a.Game, a.Ledger, a.Treasury, loc)
		a.Bot = bot.New(api, cfg, a.Admins, commands)
		notify = a.Bot.Notify
	} else {
		log.Info("TELEGRAM_BOT_TOKEN не задан, админ-бот выключен")
	}

	// === 8. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(a.Treasury, a.Ledger, notify, jobs.Options{
		TreasurySchedule: cfg.TreasurySyncSchedule,
		SweepSchedule:    cfg.PendingSweepSchedule,
		PendingTTL:       cfg.EconomyPendingTTL,
		LowWatermark:     cfg.TreasuryLowWatermark,
		Location:         loc,
	})

	// === 9. Метрики ===
	a.metricsServer = metrics.StartServer(cfg.MetricsPort, a.Store.Ping)

	ok = true
	return a, nil
}

// Run запускает фоновые компоненты и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if a.Payments != nil {
		go func() {
			if err := a.Payments.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Потребитель оплат остановлен")
			}
		}()
	}
	if a.Bot != nil {
		go a.Bot.Start(ctx)
	}

	<-ctx.Done()
	return nil
}

// Close останавливает компоненты и сбрасывает казну в БД.
func (a *App) Close(ctx context.Context) {
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Ошибка остановки сервера метрик")
		}
		cancel()
	}
	if a.Treasury != nil {
		if err := a.Treasury.Flush(ctx); err != nil {
			log.WithError(err).Error("Не удалось сохранить казну при остановке")
		}
	}
	if a.paymentReader != nil {
		_ = a.paymentReader.Close()
	}
	if a.ledgerWriter != nil {
		_ = a.ledgerWriter.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
