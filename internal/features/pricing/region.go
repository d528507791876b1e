// Package pricing определяет стоимость очков в валюте региона игрока.
// region.go хранит единую таблицу регионов: каноническое значение, второе
// (витринное) имя, валюта, символ валюты и названия на разных языках.
package pricing

import (
	"strings"

	"bingoo.app/core/internal/models"
)

// Locale: язык отображения названий регионов.
type Locale string

const (
	LocaleFR Locale = "fr"
	LocaleEN Locale = "en"
)

// regionInfo: всё, что нужно знать о регионе для отображения.
type regionInfo struct {
	alias    string            // Имя из витринной схемы (AFRICA_SUB и т.д.)
	currency models.Currency   // Валюта региона
	names    map[Locale]string // Названия по языкам
}

// regions: единственная таблица соответствий.
// Витринная схема (AFRICA_SUB, AMERICA...) здесь же, отдельного enum нет.
var regions = map[models.Region]regionInfo{
	models.RegionBlackAfrica: {
		alias:    "AFRICA_SUB",
		currency: models.CurrencyXOF,
		names:    map[Locale]string{LocaleFR: "Afrique subsaharienne", LocaleEN: "Sub-Saharan Africa"},
	},
	models.RegionNorthAfrica: {
		alias:    "AFRICA_NORTH",
		currency: models.CurrencyMAD,
		names:    map[Locale]string{LocaleFR: "Afrique du Nord", LocaleEN: "North Africa"},
	},
	models.RegionEurope: {
		alias:    "EUROPE",
		currency: models.CurrencyEUR,
		names:    map[Locale]string{LocaleFR: "Europe", LocaleEN: "Europe"},
	},
	models.RegionAmericas: {
		alias:    "AMERICA",
		currency: models.CurrencyUSD,
		names:    map[Locale]string{LocaleFR: "Amériques", LocaleEN: "Americas"},
	},
	models.RegionAsia: {
		alias:    "ASIA",
		currency: models.CurrencyUSD,
		names:    map[Locale]string{LocaleFR: "Asie", LocaleEN: "Asia"},
	},
}

// currencySymbols: символы валют для отображения сумм.
var currencySymbols = map[models.Currency]string{
	models.CurrencyXOF: "FCFA",
	models.CurrencyMAD: "DH",
	models.CurrencyEUR: "€",
	models.CurrencyUSD: "$",
}

// ParseRegion приводит строку из любой схемы именования к каноническому региону.
// Регистр и пробелы по краям не важны.
//
// Пример:
//
//	ParseRegion("africa_sub") → RegionBlackAfrica
//	ParseRegion("AMERICAS")   → RegionAmericas
func ParseRegion(s string) (models.Region, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := regions[models.Region(key)]; ok {
		return models.Region(key), nil
	}
	for r, info := range regions {
		if info.alias == key {
			return r, nil
		}
	}
	return "", errUnknownRegion(s)
}

// DisplayAlias возвращает имя региона во витринной схеме.
func DisplayAlias(r models.Region) string {
	if info, ok := regions[r]; ok {
		return info.alias
	}
	return string(r)
}

// DisplayName возвращает название региона на заданном языке.
// Для неизвестного языка используется английский.
func DisplayName(r models.Region, loc Locale) string {
	info, ok := regions[r]
	if !ok {
		return string(r)
	}
	if name, ok := info.names[loc]; ok {
		return name
	}
	return info.names[LocaleEN]
}

// CurrencyOf возвращает валюту региона.
func CurrencyOf(r models.Region) (models.Currency, bool) {
	info, ok := regions[r]
	return info.currency, ok
}

// CurrencySymbol возвращает символ валюты (FCFA, DH, €, $).
func CurrencySymbol(c models.Currency) string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}
