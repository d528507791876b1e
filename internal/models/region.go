// Package models содержит общие типы данных экономики Bingoo.
// Типы вынесены в отдельный пакет, чтобы их могли использовать
// и хранилище (internal/db), и сервисы (internal/features) без циклов импорта.
package models

// Region: географическая зона, определяющая валюту и стоимость очков.
// Это каноническое значение, которое хранится в БД.
type Region string

const (
	RegionBlackAfrica Region = "BLACK_AFRICA" // Африка южнее Сахары (XOF)
	RegionNorthAfrica Region = "NORTH_AFRICA" // Магриб (MAD)
	RegionEurope      Region = "EUROPE"       // Еврозона (EUR)
	RegionAmericas    Region = "AMERICAS"     // Америка (USD)
	RegionAsia        Region = "ASIA"         // Азия (USD)
)

// Regions: все канонические регионы в порядке отображения.
var Regions = []Region{
	RegionBlackAfrica,
	RegionNorthAfrica,
	RegionEurope,
	RegionAmericas,
	RegionAsia,
}

// Currency: валюта, в которой игрок платит за очки.
type Currency string

const (
	CurrencyXOF Currency = "XOF"
	CurrencyMAD Currency = "MAD"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)
