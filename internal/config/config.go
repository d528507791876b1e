// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"bingoo"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"bingoo"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Africa/Abidjan"`

	// --- Economy ---
	// Регион по умолчанию, если регион игрока не найден в таблице цен
	EconomyDefaultRegion string `envconfig:"ECONOMY_DEFAULT_REGION" default:"EUROPE"`
	// Казна должна покрывать приз с этим запасом (приз × 4)
	EconomyReserveMultiplier int64 `envconfig:"ECONOMY_RESERVE_MULTIPLIER" default:"4"`
	// Начальный баланс казны, если записи в БД ещё нет
	EconomyInitialTreasury int64 `envconfig:"ECONOMY_INITIAL_TREASURY" default:"0"`
	// Через сколько PENDING-транзакция считается брошенной
	EconomyPendingTTL time.Duration `envconfig:"ECONOMY_PENDING_TTL" default:"24h"`
	// Порог казны, ниже которого админы получают предупреждение
	TreasuryLowWatermark int64 `envconfig:"TREASURY_LOW_WATERMARK" default:"10000"`

	// --- Games ---
	GameClassicEnabled   bool    `envconfig:"GAME_CLASSIC_ENABLED" default:"true"`
	GameClassicMinBet    int64   `envconfig:"GAME_CLASSIC_MIN_BET" default:"10"`
	GameClassicCards     int     `envconfig:"GAME_CLASSIC_CARDS" default:"9"`
	GameClassicWinChance float64 `envconfig:"GAME_CLASSIC_WIN_CHANCE" default:"0.30"`
	GameClassicMaxPrize  int64   `envconfig:"GAME_CLASSIC_MAX_PRIZE" default:"1500"`

	GameMagicEnabled   bool    `envconfig:"GAME_MAGIC_ENABLED" default:"true"`
	GameMagicMinBet    int64   `envconfig:"GAME_MAGIC_MIN_BET" default:"50"`
	GameMagicCards     int     `envconfig:"GAME_MAGIC_CARDS" default:"12"`
	GameMagicWinChance float64 `envconfig:"GAME_MAGIC_WIN_CHANCE" default:"0.20"`
	GameMagicMaxPrize  int64   `envconfig:"GAME_MAGIC_MAX_PRIZE" default:"5000"`

	GameGoldEnabled   bool    `envconfig:"GAME_GOLD_ENABLED" default:"true"`
	GameGoldMinBet    int64   `envconfig:"GAME_GOLD_MIN_BET" default:"200"`
	GameGoldCards     int     `envconfig:"GAME_GOLD_CARDS" default:"16"`
	GameGoldWinChance float64 `envconfig:"GAME_GOLD_WIN_CHANCE" default:"0.10"`
	GameGoldMaxPrize  int64   `envconfig:"GAME_GOLD_MAX_PRIZE" default:"20000"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Redis (общий лимит ставок между инстансами; пусто = лимит в памяти) ---
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// --- Kafka (пусто = события не публикуются, платежи не слушаем) ---
	KafkaBrokers       string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopicLedger   string `envconfig:"KAFKA_TOPIC_LEDGER" default:"bingoo.ledger.transactions"`
	KafkaTopicPayments string `envconfig:"KAFKA_TOPIC_PAYMENTS" default:"bingoo.payments.results"`
	KafkaGroupID       string `envconfig:"KAFKA_GROUP_ID" default:"bingoo-economy"`

	// --- Metrics ---
	MetricsPort string `envconfig:"METRICS_PORT" default:"9100"`

	// --- Admin bot (пусто = бот не запускается) ---
	TelegramBotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	AdminIDsRaw             string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs                []int64 `envconfig:"-"` // заполним вручную
	AdminPasswordHash       string  `envconfig:"ADMIN_PASSWORD_HASH" default:""`
	BotMaxInflight          int     `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int     `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Jobs ---
	TreasurySyncSchedule string `envconfig:"TREASURY_SYNC_SCHEDULE" default:"@every 1m"`
	PendingSweepSchedule string `envconfig:"PENDING_SWEEP_SCHEDULE" default:"0 * * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// BotEnabled сообщает, нужно ли запускать админ-бота.
func (c *Config) BotEnabled() bool {
	return c.TelegramBotToken != ""
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.EconomyReserveMultiplier < 1 {
		return fmt.Errorf("ECONOMY_RESERVE_MULTIPLIER должен быть >= 1")
	}
	if c.EconomyInitialTreasury < 0 {
		return fmt.Errorf("ECONOMY_INITIAL_TREASURY не может быть отрицательным")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS должен быть > 0")
	}
	for name, chance := range map[string]float64{
		"GAME_CLASSIC_WIN_CHANCE": c.GameClassicWinChance,
		"GAME_MAGIC_WIN_CHANCE":   c.GameMagicWinChance,
		"GAME_GOLD_WIN_CHANCE":    c.GameGoldWinChance,
	} {
		if chance < 0 || chance > 1 {
			return fmt.Errorf("%s должен быть в диапазоне [0, 1]", name)
		}
	}
	if c.BotEnabled() {
		if len(c.AdminIDs) == 0 {
			return fmt.Errorf("ADMIN_IDS обязателен, если задан TELEGRAM_BOT_TOKEN")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH обязателен, если задан TELEGRAM_BOT_TOKEN")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
