// Package filters решает, принимать ли сообщение админ-ботом.
package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/features/admin"
)

// AdminFilter пропускает только личные сообщения от администраторов из белого списка.
type AdminFilter struct {
	admins *admin.Service
}

// NewAdminFilter создаёт фильтр.
func NewAdminFilter(admins *admin.Service) *AdminFilter {
	return &AdminFilter{admins: admins}
}

// CheckAccess проверяет, можно ли обработать сообщение.
func (f *AdminFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "AdminFilter").Warn("nil message")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "AdminFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "AdminFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// Пароли вводятся в чат, поэтому только личка
	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: not a private chat")
		return false
	}
	if !f.admins.IsAdmin(message.From.ID) {
		logger.Info("deny: not in admin allowlist")
		return false
	}

	logger.Debug("allow: admin")
	return true
}
