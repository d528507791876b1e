package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/models"
)

func TestRateForDefaultTable(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		region   models.Region
		currency models.Currency
		cost     int64
	}{
		{models.RegionBlackAfrica, models.CurrencyXOF, 500},
		{models.RegionNorthAfrica, models.CurrencyMAD, 10},
		{models.RegionEurope, models.CurrencyEUR, 1},
		{models.RegionAmericas, models.CurrencyUSD, 1},
		{models.RegionAsia, models.CurrencyUSD, 1},
	}

	for _, tc := range tests {
		t.Run(string(tc.region), func(t *testing.T) {
			rate, err := table.RateFor(tc.region)
			if err != nil {
				t.Fatalf("RateFor(%s): %v", tc.region, err)
			}
			if rate.Currency != tc.currency {
				t.Fatalf("expected currency %s, got %s", tc.currency, rate.Currency)
			}
			if !rate.PointCost.Equal(decimal.NewFromInt(tc.cost)) {
				t.Fatalf("expected point cost %d, got %s", tc.cost, rate.PointCost)
			}
		})
	}
}

func TestEveryRegionHasExactlyOneRate(t *testing.T) {
	table := DefaultTable()
	for _, r := range models.Regions {
		if _, err := table.RateFor(r); err != nil {
			t.Fatalf("region %s has no rate: %v", r, err)
		}
	}
	if len(table.rates) != len(models.Regions) {
		t.Fatalf("expected %d rates, got %d", len(models.Regions), len(table.rates))
	}
}

func TestRateForUnknownRegionDoesNotDefault(t *testing.T) {
	_, err := DefaultTable().RateFor("OCEANIA")
	if !errors.Is(err, common.ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestRateOrDefault(t *testing.T) {
	table := DefaultTable()

	rate, used, err := table.RateOrDefault("OCEANIA", models.RegionEurope)
	if err != nil {
		t.Fatalf("RateOrDefault: %v", err)
	}
	if used != models.RegionEurope || rate.Currency != models.CurrencyEUR {
		t.Fatalf("expected EUROPE/EUR fallback, got %s/%s", used, rate.Currency)
	}

	_, used, err = table.RateOrDefault(models.RegionAsia, models.RegionEurope)
	if err != nil || used != models.RegionAsia {
		t.Fatalf("expected own region ASIA, got %s (err=%v)", used, err)
	}

	if _, _, err := table.RateOrDefault("OCEANIA", "MARS"); !errors.Is(err, common.ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion for unknown fallback, got %v", err)
	}
}

func TestParseRegionBothSchemes(t *testing.T) {
	tests := []struct {
		in   string
		want models.Region
	}{
		{"BLACK_AFRICA", models.RegionBlackAfrica},
		{"AFRICA_SUB", models.RegionBlackAfrica},
		{"NORTH_AFRICA", models.RegionNorthAfrica},
		{"africa_north", models.RegionNorthAfrica},
		{"EUROPE", models.RegionEurope},
		{" AMERICA ", models.RegionAmericas},
		{"AMERICAS", models.RegionAmericas},
		{"ASIA", models.RegionAsia},
	}

	table := DefaultTable()
	for _, tc := range tests {
		got, err := ParseRegion(tc.in)
		if err != nil {
			t.Fatalf("ParseRegion(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRegion(%q) = %s, want %s", tc.in, got, tc.want)
		}
		if _, err := table.RateFor(got); err != nil {
			t.Fatalf("parsed region %s has no rate: %v", got, err)
		}
	}

	if _, err := ParseRegion("ANTARCTICA"); !errors.Is(err, common.ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestDisplayHelpers(t *testing.T) {
	if got := DisplayAlias(models.RegionBlackAfrica); got != "AFRICA_SUB" {
		t.Fatalf("DisplayAlias = %q", got)
	}
	if got := DisplayName(models.RegionAmericas, LocaleFR); got != "Amériques" {
		t.Fatalf("DisplayName fr = %q", got)
	}
	if got := DisplayName(models.RegionAmericas, "de"); got != "Americas" {
		t.Fatalf("DisplayName fallback = %q", got)
	}
	if got := CurrencySymbol(models.CurrencyXOF); got != "FCFA" {
		t.Fatalf("CurrencySymbol = %q", got)
	}
	if got := CurrencySymbol(models.CurrencyMAD); got != "DH" {
		t.Fatalf("CurrencySymbol = %q", got)
	}
}

func TestCostIsLinear(t *testing.T) {
	calc := NewCalculator(nil)
	table := calc.Table()

	for _, r := range models.Regions {
		rate, _ := table.RateFor(r)
		for _, points := range []int64{0, 1, 2, 3, 10, 999, 1_000_000} {
			charge, err := calc.Cost(points, r)
			if err != nil {
				t.Fatalf("Cost(%d, %s): %v", points, r, err)
			}
			want := decimal.NewFromInt(points).Mul(rate.PointCost).Div(decimal.NewFromInt(2))
			if !charge.Amount.Equal(want) {
				t.Fatalf("Cost(%d, %s) = %s, want %s", points, r, charge.Amount, want)
			}
			if charge.Amount.IsNegative() {
				t.Fatalf("Cost(%d, %s) is negative", points, r)
			}
			if charge.Currency != rate.Currency {
				t.Fatalf("Cost currency %s, want %s", charge.Currency, rate.Currency)
			}
		}
	}
}

func TestCostPerRegion(t *testing.T) {
	calc := NewCalculator(nil)

	tests := []struct {
		points int64
		region models.Region
		want   string
	}{
		{10, models.RegionBlackAfrica, "2500"},
		{10, models.RegionNorthAfrica, "50"},
		{3, models.RegionEurope, "1.5"},
		{1, models.RegionAmericas, "0.5"},
	}

	for _, tc := range tests {
		charge, err := calc.Cost(tc.points, tc.region)
		if err != nil {
			t.Fatalf("Cost: %v", err)
		}
		if charge.Amount.String() != tc.want {
			t.Fatalf("Cost(%d, %s) = %s, want %s", tc.points, tc.region, charge.Amount, tc.want)
		}
	}
}

func TestCostRejectsInvalidInput(t *testing.T) {
	calc := NewCalculator(nil)

	if _, err := calc.Cost(-1, models.RegionEurope); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := calc.Cost(10, "OCEANIA"); !errors.Is(err, common.ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion, got %v", err)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.5, 1e19} {
		if _, err := calc.CostFloat(v, models.RegionEurope); !errors.Is(err, common.ErrInvalidAmount) {
			t.Fatalf("CostFloat(%v): expected ErrInvalidAmount, got %v", v, err)
		}
	}

	charge, err := calc.CostFloat(4.9, models.RegionEurope)
	if err != nil {
		t.Fatalf("CostFloat: %v", err)
	}
	if !charge.Amount.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("CostFloat(4.9) = %s, want 2", charge.Amount)
	}
}

func TestFormatting(t *testing.T) {
	if got := PointsToDisplayString(1500); got != "1 500 pts" {
		t.Fatalf("PointsToDisplayString = %q", got)
	}
	if got := PointsToDisplayString(1); got != "1 pt" {
		t.Fatalf("PointsToDisplayString = %q", got)
	}

	tests := []struct {
		amount decimal.Decimal
		cur    models.Currency
		want   string
	}{
		{decimal.NewFromInt(2500), models.CurrencyXOF, "2 500 FCFA"},
		{decimal.NewFromInt(50), models.CurrencyMAD, "50 DH"},
		{decimal.RequireFromString("1.5"), models.CurrencyEUR, "1.50 €"},
		{decimal.RequireFromString("0.5"), models.CurrencyUSD, "$0.50"},
	}
	for _, tc := range tests {
		if got := FormatMoney(tc.amount, tc.cur); got != tc.want {
			t.Fatalf("FormatMoney(%s, %s) = %q, want %q", tc.amount, tc.cur, got, tc.want)
		}
	}
}
