package domain

import (
	"sort"

	"github.com/shopspring/decimal"

	"example.com/carbonledger/internal/emissions"
)

// monthlySeriesLength bounds the monthly series to the most recent populated months.
const monthlySeriesLength = 6

// MonthlyEmission is the emission total of one calendar month (YYYY-MM, UTC).
type MonthlyEmission struct {
	Month     string
	Emissions float64
}

// DashboardStats summarises a user's activity history.
type DashboardStats struct {
	TotalEmissions     float64
	TransportEmissions float64
	EnergyEmissions    float64
	FoodEmissions      float64
	WasteEmissions     float64
	MonthlyEmissions   []MonthlyEmission
}

// Aggregate rolls a user's full history into dashboard totals. No date window is
// applied. Products count toward the total only. Records without an activity date
// are left out of the monthly series, and months without activity are absent
// rather than zero.
func Aggregate(records []ActivityRecord) DashboardStats {
	var total, transport, energy, food, waste decimal.Decimal
	monthly := make(map[string]decimal.Decimal)

	for _, rec := range records {
		emission := rec.CarbonEmission.Decimal()
		total = total.Add(emission)

		switch rec.Category {
		case emissions.CategoryTransport:
			transport = transport.Add(emission)
		case emissions.CategoryEnergy:
			energy = energy.Add(emission)
		case emissions.CategoryFood:
			food = food.Add(emission)
		case emissions.CategoryWaste:
			waste = waste.Add(emission)
		}

		if rec.ActivityDate.IsZero() {
			continue
		}
		key := rec.ActivityDate.UTC().Format("2006-01")
		monthly[key] = monthly[key].Add(emission)
	}

	months := make([]string, 0, len(monthly))
	for month := range monthly {
		months = append(months, month)
	}
	sort.Strings(months)
	if len(months) > monthlySeriesLength {
		months = months[len(months)-monthlySeriesLength:]
	}

	series := make([]MonthlyEmission, 0, len(months))
	for _, month := range months {
		series = append(series, MonthlyEmission{Month: month, Emissions: monthly[month].InexactFloat64()})
	}

	return DashboardStats{
		TotalEmissions:     total.InexactFloat64(),
		TransportEmissions: transport.InexactFloat64(),
		EnergyEmissions:    energy.InexactFloat64(),
		FoodEmissions:      food.InexactFloat64(),
		WasteEmissions:     waste.InexactFloat64(),
		MonthlyEmissions:   series,
	}
}

// TotalOffsets sums the offset amounts in kg CO2.
func TotalOffsets(offsets []CarbonOffset) float64 {
	var total decimal.Decimal
	for _, offset := range offsets {
		total = total.Add(offset.OffsetAmount.Decimal())
	}
	return total.InexactFloat64()
}
