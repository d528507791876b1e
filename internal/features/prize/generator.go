// Package prize генерирует призы карточной игры.
// generator.go считает кандидатов призов: floor(ставка × множитель), где
// множитель равномерно распределён в [2, 10), с жёстким потолком maxPrize.
package prize

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"bingoo.app/core/internal/common"
)

const (
	minMultiplier = 2.0  // Нижняя граница множителя (включительно)
	maxMultiplier = 10.0 // Верхняя граница множителя (не включительно)
)

// RandSource: источник случайности. Float64 возвращает число в [0, 1).
// В тестах подменяется детерминированной последовательностью.
type RandSource interface {
	Float64() float64
}

// lockedRand защищает *rand.Rand мьютексом: генератор общий на все раунды.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

// Generator создаёт кандидатов призов.
type Generator struct {
	rnd RandSource
}

// NewGenerator создаёт генератор. Если src == nil: используется PCG,
// засеянный текущим временем.
func NewGenerator(src RandSource) *Generator {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = &lockedRand{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	}
	return &Generator{rnd: src}
}

// Generate возвращает count кандидатов призов для ставки betAmount.
// Каждое значение = floor(betAmount × U[2, 10)), но не больше maxPrize.
// Если уже betAmount × 2 > maxPrize, все значения равны maxPrize:
// это штатное поведение потолка, а не ошибка.
//
// Ошибки:
//   - ErrInvalidAmount: betAmount <= 0, count < 0 или maxPrize < 0
func (g *Generator) Generate(count int, betAmount, maxPrize int64) ([]int64, error) {
	if betAmount <= 0 {
		return nil, fmt.Errorf("%w: ставка %d", common.ErrInvalidAmount, betAmount)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: количество призов %d", common.ErrInvalidAmount, count)
	}
	if maxPrize < 0 {
		return nil, fmt.Errorf("%w: потолок приза %d", common.ErrInvalidAmount, maxPrize)
	}

	values := make([]int64, count)
	for i := range values {
		values[i] = g.candidate(betAmount, maxPrize)
	}
	return values, nil
}

// candidate считает один приз. Вычисление в float64 ограничено сверху
// maxPrize до приведения к int64, так что переполнения нет.
func (g *Generator) candidate(bet, maxPrize int64) int64 {
	r := g.rnd.Float64()
	if r < 0 || r >= 1 || math.IsNaN(r) {
		r = 0
	}
	multiplier := minMultiplier + r*(maxMultiplier-minMultiplier)
	value := math.Floor(float64(bet) * multiplier)
	if value >= float64(maxPrize) {
		return maxPrize
	}
	return int64(value)
}
