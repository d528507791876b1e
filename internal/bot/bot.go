// Package bot содержит админ-бота Telegram: приём апдейтов, фильтр доступа
// и рассылку алертов казны администраторам.
package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/bot/filters"
	"bingoo.app/core/internal/bot/middleware"
	"bingoo.app/core/internal/config"
	"bingoo.app/core/internal/features/admin"
	"bingoo.app/core/internal/ratelimit"
)

// Bot: админ-бот поверх telego.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	filter      *filters.AdminFilter
	rateLimiter *ratelimit.Memory
	commands    *Commands
	admins      *admin.Service

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// NewAPI создаёт клиент Telegram Bot API и проверяет токен.
func NewAPI(ctx context.Context, token string) (*telego.Bot, error) {
	api, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)
	return api, nil
}

// New создаёт бота.
func New(api *telego.Bot, cfg *config.Config, admins *admin.Service, commands *Commands) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		filter:      filters.NewAdminFilter(admins),
		rateLimiter: ratelimit.NewMemory(cfg.RateLimitRequests, cfg.RateLimitWindow),
		commands:    commands,
		admins:      admins,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling. Возвращается после отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.rateLimiter.Close()

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
	})
	if err != nil {
		log.WithError(err).Error("Не удалось запустить получение апдейтов")
		return
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Админ-бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd telego.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.filter.CheckAccess(message) {
		return
	}

	userID := message.From.ID
	if !b.rateLimiter.AllowKey(fmt.Sprintf("bot:%d", userID)) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	reply, handled := b.commands.Handle(ctx, userID, message.Text)
	if !handled {
		return
	}
	if reply.DeleteInput {
		b.deleteMessage(ctx, chatID, message.MessageID)
	}
	if reply.Text != "" {
		b.sendMessage(ctx, chatID, reply.Text)
	}
}

// Notify отправляет сообщение всем администраторам.
func (b *Bot) Notify(ctx context.Context, text string) {
	for _, id := range b.admins.AdminIDs() {
		b.sendMessage(ctx, id, text)
	}
}

// sendMessage: утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// deleteMessage удаляет сообщение с паролем. Ошибка не критична.
func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	err := b.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Debug("Не удалось удалить сообщение")
	}
}
