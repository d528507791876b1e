// Package common: errors.go определяет ошибки экономики,
// которые используются во всех модулях.
// Вызывающий код (API-слой) различает их через errors.Is
// и сообщает игроку, какое именно правило заблокировало операцию.
package common

import "errors"

// Ошибки экономики (очки, баланс, журнал)
var (
	// ErrInvalidAmount: сумма не положительная или не конечная
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrUnknownRegion: региона нет в таблице цен
	ErrUnknownRegion = errors.New("неизвестный регион")
	// ErrInsufficientBalance: списание больше доступного баланса
	ErrInsufficientBalance = errors.New("недостаточно очков на счёте")
	// ErrLedgerWriteFailed: атомарная запись не прошла, ничего не записано, можно повторить
	ErrLedgerWriteFailed = errors.New("не удалось записать операцию в журнал")
	// ErrTransactionNotFound: транзакция не найдена
	ErrTransactionNotFound = errors.New("транзакция не найдена")
	// ErrInvalidTransition: недопустимый переход статуса (например FAILED → COMPLETED)
	ErrInvalidTransition = errors.New("недопустимый переход статуса транзакции")
	// ErrProfileNotFound: профиль не найден
	ErrProfileNotFound = errors.New("профиль не найден")
)

// Ошибки казначейства
var (
	// ErrTreasuryInsufficient: казна не покрывает приз с учётом резерва.
	// Это бизнес-решение, а не сбой: раунд аннулируется.
	ErrTreasuryInsufficient = errors.New("казна не может покрыть приз")
)

// Ошибки игр
var (
	// ErrGameDisabled: игра отключена или не существует
	ErrGameDisabled = errors.New("игра недоступна")
	// ErrBetBelowMinimum: ставка меньше минимальной для игры
	ErrBetBelowMinimum = errors.New("ставка меньше минимальной")
	// ErrRateLimited: слишком много ставок за короткое время
	ErrRateLimited = errors.New("слишком много ставок, подождите")
)

// Ошибки админки
var (
	// ErrNotAdmin: пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword: неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired: сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// IsDomainError сообщает, является ли ошибка одной из ошибок таксономии.
// Такие ошибки пробрасываются как есть и повторно не оборачиваются.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrUnknownRegion,
		ErrInsufficientBalance,
		ErrTreasuryInsufficient,
		ErrTransactionNotFound,
		ErrInvalidTransition,
		ErrProfileNotFound,
		ErrLedgerWriteFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
