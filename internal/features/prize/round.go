// Package prize, round.go разыгрывает раунд: раскладывает карты,
// решает, выиграл ли игрок, и определяет категорию приза.
package prize

import (
	"fmt"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/models"
)

// PrizeTier: категория приза и порог, начиная с которого она присваивается.
// Порог задаётся в ставках: MinMultiple = 8 значит "приз >= 8 × ставка".
type PrizeTier struct {
	Type        models.PrizeType
	Name        string
	MinMultiple int64
}

// DefaultTiers содержит стандартные категории (золото от 8×, магия от 5×, иначе классика).
// Порядок важен: от самой дорогой к самой дешёвой.
var DefaultTiers = []PrizeTier{
	{Type: models.PrizeGold, Name: "Gold", MinMultiple: 8},
	{Type: models.PrizeMagic, Name: "Magic", MinMultiple: 5},
	{Type: models.PrizeClassic, Name: "Classic", MinMultiple: 0},
}

// GameConfig: параметры одной игры. Приходят из конфигурации,
// ядро их только читает.
type GameConfig struct {
	MinBet    int64       // Минимальная ставка в очках
	CardCount int         // Сколько карт на столе
	Prizes    []PrizeTier // Категории призов; пусто = DefaultTiers
	WinChance float64     // Вероятность выигрыша, [0, 1]
	MaxPrize  int64       // Потолок приза
}

// Validate проверяет параметры игры.
func (c GameConfig) Validate() error {
	if c.MinBet <= 0 || c.CardCount <= 0 || c.MaxPrize < 0 {
		return fmt.Errorf("%w: некорректные параметры игры", common.ErrInvalidAmount)
	}
	if c.WinChance < 0 || c.WinChance > 1 {
		return fmt.Errorf("%w: шанс выигрыша %v вне [0, 1]", common.ErrInvalidAmount, c.WinChance)
	}
	return nil
}

// Round: результат розыгрыша (ещё до проверки казны).
type Round struct {
	Cards []int64      // Значения всех карт на столе
	Won   bool         // Выиграл ли игрок
	Pick  int          // Индекс выигравшей карты, -1 при проигрыше
	Prize models.Prize // Приз; Value == 0 при проигрыше
}

// Classify определяет категорию приза по его отношению к ставке.
func Classify(value, bet int64, tiers []PrizeTier) models.Prize {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	for _, tier := range tiers {
		if value >= tier.MinMultiple*bet {
			return models.Prize{Value: value, Type: tier.Type, Name: tier.Name}
		}
	}
	last := tiers[len(tiers)-1]
	return models.Prize{Value: value, Type: last.Type, Name: last.Name}
}

// Draw разыгрывает раунд для ставки bet.
//
// Алгоритм:
//  1. Генерируем cfg.CardCount карт с потолком cfg.MaxPrize
//  2. С вероятностью cfg.WinChance игрок выигрывает
//  3. При выигрыше равновероятно выбираем одну из карт, она и есть приз
func (g *Generator) Draw(cfg GameConfig, bet int64) (Round, error) {
	if err := cfg.Validate(); err != nil {
		return Round{}, err
	}
	cards, err := g.Generate(cfg.CardCount, bet, cfg.MaxPrize)
	if err != nil {
		return Round{}, err
	}

	round := Round{Cards: cards, Pick: -1}
	if g.rnd.Float64() >= cfg.WinChance {
		return round, nil
	}

	pick := int(g.rnd.Float64() * float64(len(cards)))
	if pick >= len(cards) {
		pick = len(cards) - 1
	}
	round.Won = true
	round.Pick = pick
	round.Prize = Classify(cards[pick], bet, cfg.Prizes)
	return round, nil
}
