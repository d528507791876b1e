package models

// PrizeType: категория приза карточной игры.
type PrizeType string

const (
	PrizeClassic PrizeType = "classic"
	PrizeMagic   PrizeType = "magic"
	PrizeGold    PrizeType = "gold"
)

// Prize: приз одного раунда.
// Создаётся генератором и сразу уходит на проверку казначейства,
// отдельно в БД не хранится (остаётся только WIN-транзакция).
type Prize struct {
	Value int64     // Размер приза в очках (>= 0)
	Type  PrizeType // classic, magic, gold
	Name  string    // Название для отображения
}
