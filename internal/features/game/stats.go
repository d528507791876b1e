// Package game: stats.go ведёт статистику возврата игроку (RTP) по играм.
// Статистика живёт в памяти процесса и нужна для админки и метрик.
package game

import (
	"sort"
	"sync"
)

// GameStats: накопленная статистика одной игры.
type GameStats struct {
	Game         GameType
	Rounds       int64 // Сыгранные раунды
	Wins         int64 // Выплаченные призы
	Voided       int64 // Выигрыши, аннулированные казной
	TotalWagered int64 // Сумма ставок
	TotalWon     int64 // Сумма выплат
	BiggestWin   int64 // Самый крупный приз
}

// RTP возвращает процент возврата игроку.
func (s GameStats) RTP() float64 {
	return CalculateRTP(s.TotalWagered, s.TotalWon)
}

// CalculateRTP вычисляет RTP = (всего выиграно / всего поставлено) × 100%.
// Если ставок ещё не было: 0.
func CalculateRTP(totalWagered, totalWon int64) float64 {
	if totalWagered == 0 {
		return 0
	}
	return (float64(totalWon) / float64(totalWagered)) * 100
}

// Stats: потокобезопасная статистика по всем играм.
type Stats struct {
	mu    sync.RWMutex
	games map[GameType]*GameStats
}

// NewStats создаёт пустую статистику.
func NewStats() *Stats {
	return &Stats{games: make(map[GameType]*GameStats)}
}

// Record учитывает один раунд.
func (s *Stats) Record(gt GameType, bet int64, res *RoundResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.games[gt]
	if !ok {
		st = &GameStats{Game: gt}
		s.games[gt] = st
	}

	st.Rounds++
	st.TotalWagered += bet
	switch res.Outcome {
	case OutcomeWon:
		st.Wins++
		st.TotalWon += res.Prize.Value
		if res.Prize.Value > st.BiggestWin {
			st.BiggestWin = res.Prize.Value
		}
	case OutcomeVoided:
		st.Voided++
	}
}

// Snapshot возвращает копию статистики, отсортированную по игре.
func (s *Stats) Snapshot() []GameStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GameStats, 0, len(s.games))
	for _, st := range s.games {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out
}
