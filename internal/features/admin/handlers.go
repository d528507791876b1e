// Package admin: handlers.go ведёт диалог входа в личных сообщениях.
// Поток: /login → запрос пароля → проверка → сессия на 24 часа.
package admin

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
)

// Reply: ответ на сообщение админа.
type Reply struct {
	Text        string
	DeleteInput bool // Удалить сообщение пользователя (в нём пароль)
}

// Handler обрабатывает команды входа.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик входа.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleMessage обрабатывает /login, /logout и ввод пароля.
// Возвращает false, если сообщение не относится ко входу.
func (h *Handler) HandleMessage(ctx context.Context, userID int64, text string) (Reply, bool) {
	if !h.service.IsAdmin(userID) {
		return Reply{}, false
	}
	text = strings.TrimSpace(text)

	if state := h.service.GetState(userID); state != nil && state.Name == StateAwaitingPassword {
		if strings.HasPrefix(text, "/") && !strings.HasPrefix(text, "/login") {
			// Админ передумал: любая другая команда сбрасывает ожидание
			h.service.ClearState(userID)
			return Reply{}, false
		}
		return h.handlePasswordInput(ctx, userID, strings.TrimSpace(strings.TrimPrefix(text, "/login"))), true
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Reply{}, false
	}

	switch strings.ToLower(fields[0]) {
	case "/login":
		if len(fields) > 1 {
			return h.handlePasswordInput(ctx, userID, strings.Join(fields[1:], " ")), true
		}
		if h.service.HasActiveSession(ctx, userID) {
			return Reply{Text: "✅ Вы уже авторизованы"}, true
		}
		h.service.SetState(userID, StateAwaitingPassword)
		return Reply{Text: "🔐 Введите пароль для доступа к админ-панели:"}, true

	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка выхода")
			return Reply{Text: "❌ Не удалось завершить сессию"}, true
		}
		return Reply{Text: "👋 Сессия завершена"}, true
	}
	return Reply{}, false
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, userID int64, password string) Reply {
	h.service.ClearState(userID)

	err := h.service.VerifyPassword(ctx, userID, password)
	switch {
	case err == nil:
		return Reply{Text: "✅ Аутентификация успешна! /help — список команд", DeleteInput: true}
	case errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts), errors.Is(err, common.ErrNotAdmin):
		return Reply{Text: "❌ " + err.Error(), DeleteInput: true}
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка входа администратора")
		return Reply{Text: "❌ Внутренняя ошибка, попробуйте позже", DeleteInput: true}
	}
}
