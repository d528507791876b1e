// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование очков и чисел, работа с часовыми поясами.
package common

import (
	"fmt"
	"time"
)

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Рекурсивно добавляем разделители
	rest := n / 1000
	last := n % 1000
	return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
}

// FormatPoints форматирует количество очков для отображения.
//
// Примеры:
//
//	FormatPoints(1)    → "1 pt"
//	FormatPoints(1500) → "1 500 pts"
func FormatPoints(points int64) string {
	if points == 1 || points == -1 {
		return FormatNumber(points) + " pt"
	}
	return FormatNumber(points) + " pts"
}

// FormatSignedPoints создаёт строку вида "+100 pts" или "-50 pts".
func FormatSignedPoints(delta int64) string {
	if delta >= 0 {
		return "+" + FormatPoints(delta)
	}
	return FormatPoints(delta)
}

// LoadLocation загружает часовой пояс по имени.
// Если зона недоступна (нет tzdata в контейнере): возвращает UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в заданном поясе.
// Используется для отображения дат транзакций в админ-боте.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
