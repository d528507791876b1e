// Package middleware содержит промежуточные обработчики для логирования
// и восстановления после паники.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение.
// Текст не пишется: в нём может быть пароль. Только команда и длина.
func LogMessage(message *telego.Message) {
	if message == nil {
		return
	}

	fields := log.Fields{
		"chat_id": message.Chat.ID,
		"length":  len(message.Text),
	}
	if message.From != nil {
		fields["user_id"] = message.From.ID
		fields["username"] = message.From.Username
	}
	if len(message.Text) > 0 && message.Text[0] == '/' {
		fields["command"] = commandOf(message.Text)
	}

	log.WithFields(fields).Debug("Входящее сообщение")
}

func commandOf(text string) string {
	for i, r := range text {
		if r == ' ' || r == '\n' {
			return text[:i]
		}
	}
	return text
}
