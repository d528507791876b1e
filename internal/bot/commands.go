// Package bot: commands.go разбирает и выполняет команды админ-бота.
// Команды не зависят от Telegram: на входе текст, на выходе ответ.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/features/admin"
	"bingoo.app/core/internal/features/game"
	"bingoo.app/core/internal/features/ledger"
	"bingoo.app/core/internal/features/treasury"
	"bingoo.app/core/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

const helpText = `Команды администратора:
/login — вход по паролю
/logout — выход
/treasury — баланс казны
/deposit <очки> — пополнить казну
/balance <profile_id> — баланс игрока
/history <profile_id> [N] — последние операции игрока
/grant <profile_id> <очки> [причина] — начислить очки
/stats — статистика игр (RTP)`

// Commands выполняет команды администратора.
type Commands struct {
	admins   *admin.Service
	login    *admin.Handler
	game     *game.Service
	ledger   *ledger.Service
	treasury *treasury.Treasury
	loc      *time.Location
	parser   *CommandParser
}

// NewCommands создаёт маршрутизатор команд.
func NewCommands(admins *admin.Service, gameSvc *game.Service, ledgerSvc *ledger.Service, tr *treasury.Treasury, loc *time.Location) *Commands {
	if loc == nil {
		loc = time.UTC
	}
	return &Commands{
		admins:   admins,
		login:    admin.NewHandler(admins),
		game:     gameSvc,
		ledger:   ledgerSvc,
		treasury: tr,
		loc:      loc,
		parser:   NewCommandParser(),
	}
}

// Handle обрабатывает текст от пользователя userID.
// Возвращает false, если сообщение не команда и не часть диалога входа.
func (c *Commands) Handle(ctx context.Context, userID int64, text string) (admin.Reply, bool) {
	if reply, handled := c.login.HandleMessage(ctx, userID, text); handled {
		return reply, true
	}

	cmd, args, isCommand := c.parser.ParseCommand(text)
	if !isCommand {
		return admin.Reply{}, false
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("routing command")

	if cmd == "start" || cmd == "help" {
		return admin.Reply{Text: helpText}, true
	}

	if err := c.admins.RequireSession(ctx, userID); err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			return admin.Reply{Text: "🔐 " + err.Error() + " (/login)"}, true
		}
		return admin.Reply{Text: "❌ " + err.Error()}, true
	}

	var (
		out string
		err error
	)
	switch cmd {
	case "treasury":
		out = c.handleTreasury()
	case "deposit":
		out, err = c.handleDeposit(ctx, args)
	case "balance":
		out, err = c.handleBalance(ctx, args)
	case "history":
		out, err = c.handleHistory(ctx, args)
	case "grant":
		out, err = c.handleGrant(ctx, userID, args)
	case "stats":
		out = c.handleStats()
	default:
		out = "❓ Неизвестная команда. /help — список команд"
	}

	if err != nil {
		return admin.Reply{Text: c.errorText(cmd, err)}, true
	}
	return admin.Reply{Text: out}, true
}

func (c *Commands) handleTreasury() string {
	snap := c.treasury.Snapshot()
	return fmt.Sprintf("🏦 Казна: %s\nОбновлено: %s",
		common.FormatPoints(snap.Balance), common.FormatDateTime(snap.LastUpdated, c.loc))
}

func (c *Commands) handleDeposit(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errUsage("/deposit <очки>")
	}
	amount, err := parsePoints(args[0])
	if err != nil {
		return "", err
	}
	updated, err := c.treasury.Deposit(ctx, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Казна пополнена на %s\n🏦 Баланс: %s",
		common.FormatPoints(amount), common.FormatPoints(updated.Balance)), nil
}

func (c *Commands) handleBalance(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errUsage("/balance <profile_id>")
	}
	profileID, err := parseProfile(args[0])
	if err != nil {
		return "", err
	}
	bal, err := c.ledger.Balance(ctx, profileID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👤 %s\n💰 Очки: %s\n🪙 Монеты: %s",
		profileID, common.FormatPoints(bal.Points), common.FormatNumber(bal.Coins)), nil
}

func (c *Commands) handleHistory(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", errUsage("/history <profile_id> [N]")
	}
	profileID, err := parseProfile(args[0])
	if err != nil {
		return "", err
	}
	limit := defaultHistoryLimit
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "", errUsage("/history <profile_id> [N]")
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := c.ledger.History(ctx, profileID, limit)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "📭 Операций нет", nil
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние операции:\n")
	for _, t := range history {
		delta := t.Delta()
		if t.Status != models.StatusCompleted {
			delta = 0
		}
		fmt.Fprintf(&sb, "%s  %-14s %s  %s  → %s\n",
			common.FormatDateTime(t.CreatedAt, c.loc), t.Type, t.Status,
			common.FormatSignedPoints(delta), common.FormatNumber(t.BalanceAfter))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (c *Commands) handleGrant(ctx context.Context, adminID int64, args []string) (string, error) {
	if len(args) < 2 {
		return "", errUsage("/grant <profile_id> <очки> [причина]")
	}
	profileID, err := parseProfile(args[0])
	if err != nil {
		return "", err
	}
	amount, err := parsePoints(args[1])
	if err != nil {
		return "", err
	}
	reason := strings.Join(args[2:], " ")
	if reason == "" {
		reason = fmt.Sprintf("Начисление администратором %d", adminID)
	}

	rec, err := c.game.CreditPoints(ctx, profileID, amount, reason)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"admin":   adminID,
		"profile": profileID,
		"points":  amount,
	}).Info("Администратор начислил очки")
	return fmt.Sprintf("✅ Начислено %s\n💰 Баланс: %s",
		common.FormatPoints(amount), common.FormatPoints(rec.BalanceAfter)), nil
}

func (c *Commands) handleStats() string {
	snap := c.game.Stats().Snapshot()
	if len(snap) == 0 {
		return "📊 Раундов ещё не было"
	}
	var sb strings.Builder
	sb.WriteString("📊 Статистика игр:\n")
	for _, st := range snap {
		fmt.Fprintf(&sb, "%s: раундов %d, выигрышей %d, аннулировано %d, RTP %.1f%%, макс. %s\n",
			st.Game, st.Rounds, st.Wins, st.Voided, st.RTP(), common.FormatPoints(st.BiggestWin))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// errorText переводит ошибку в ответ админу. Неожиданные ошибки логируются.
func (c *Commands) errorText(cmd string, err error) string {
	var u usageError
	switch {
	case errors.As(err, &u):
		return "ℹ️ Использование: " + string(u)
	case errors.Is(err, common.ErrInvalidAmount), errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrProfileNotFound):
		return "❌ " + err.Error()
	default:
		log.WithError(err).WithField("cmd", cmd).Error("Ошибка выполнения команды")
		return "❌ Внутренняя ошибка, попробуйте позже"
	}
}

type usageError string

func (e usageError) Error() string { return "использование: " + string(e) }

func errUsage(s string) error { return usageError(s) }

func parseProfile(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: некорректный profile_id %q", common.ErrProfileNotFound, s)
	}
	return id, nil
}

func parsePoints(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidAmount, s)
	}
	return n, nil
}

// CommandParser разбирает команды с префиксами / и !
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @botname у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
