// Package game реализует входные операции экономики карточной игры:
// ставка, розыгрыш раунда с проверкой казны, начисление и списание очков.
// models.go описывает типы игр, их настройки и результаты раундов.
package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/config"
	"bingoo.app/core/internal/features/pricing"
	"bingoo.app/core/internal/features/prize"
	"bingoo.app/core/internal/models"
)

// GameType: вид карточной игры.
type GameType string

const (
	GameClassic GameType = "classic"
	GameMagic   GameType = "magic"
	GameGold    GameType = "gold"
)

// GameTypes: все игры в порядке отображения.
var GameTypes = []GameType{GameClassic, GameMagic, GameGold}

// ParseGameType приводит строку к типу игры.
func ParseGameType(s string) (GameType, error) {
	gt := GameType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range GameTypes {
		if gt == known {
			return gt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrGameDisabled, s)
}

// Configs: настройки включённых игр.
type Configs map[GameType]prize.GameConfig

// For возвращает настройки игры. Выключенная или неизвестная игра: ErrGameDisabled.
func (c Configs) For(gt GameType) (prize.GameConfig, error) {
	cfg, ok := c[gt]
	if !ok {
		return prize.GameConfig{}, fmt.Errorf("%w: %s", common.ErrGameDisabled, gt)
	}
	return cfg, nil
}

// NewConfigs собирает настройки игр из конфигурации приложения.
// Выключенные игры в результат не попадают.
func NewConfigs(cfg *config.Config) Configs {
	out := make(Configs)
	add := func(gt GameType, enabled bool, minBet int64, cards int, chance float64, maxPrize int64) {
		if !enabled {
			return
		}
		out[gt] = prize.GameConfig{
			MinBet:    minBet,
			CardCount: cards,
			Prizes:    prize.DefaultTiers,
			WinChance: chance,
			MaxPrize:  maxPrize,
		}
	}

	add(GameClassic, cfg.GameClassicEnabled, cfg.GameClassicMinBet, cfg.GameClassicCards, cfg.GameClassicWinChance, cfg.GameClassicMaxPrize)
	add(GameMagic, cfg.GameMagicEnabled, cfg.GameMagicMinBet, cfg.GameMagicCards, cfg.GameMagicWinChance, cfg.GameMagicMaxPrize)
	add(GameGold, cfg.GameGoldEnabled, cfg.GameGoldMinBet, cfg.GameGoldCards, cfg.GameGoldWinChance, cfg.GameGoldMaxPrize)
	return out
}

// Outcome: исход раунда.
type Outcome string

const (
	OutcomeWon    Outcome = "won"    // Приз выплачен
	OutcomeLost   Outcome = "lost"   // Игрок не выиграл
	OutcomeVoided Outcome = "voided" // Выиграл, но казна не покрывает приз: приз обнулён
)

// BetReceipt: результат ставки.
type BetReceipt struct {
	Transaction *models.Transaction // Запись BET в журнале
	Charge      pricing.Charge      // Стоимость ставки в валюте региона
	Region      models.Region       // Регион, по курсу которого посчитано
}

// RoundResult: результат раунда.
type RoundResult struct {
	RoundID     uuid.UUID           // ID раунда (он же ID транзакции WIN)
	Outcome     Outcome             // won, lost, voided
	Cards       []int64             // Карты на столе
	Pick        int                 // Выигравшая карта, -1 при проигрыше
	Prize       models.Prize        // Выплаченный приз; Value == 0, если не выплачен
	Transaction *models.Transaction // Запись WIN, только при OutcomeWon
	Balance     int64               // Баланс игрока после раунда (только при OutcomeWon)
}

// PlayResult: ставка и раунд вместе.
type PlayResult struct {
	Bet   *BetReceipt
	Round *RoundResult
}
