package emissions

// Resolution describes how a factor was chosen for a (category, type) pair.
type Resolution string

const (
	// ResolutionExact means the type was declared for the category.
	ResolutionExact Resolution = "exact"
	// ResolutionFallback means the type was missing or unknown and the
	// category's first declared factor was used.
	ResolutionFallback Resolution = "fallback"
	// ResolutionNone means the category has no factors; the emission is zero.
	ResolutionNone Resolution = "none"
)

// Resolve picks the factor applied to an activity. Unknown types degrade to the
// first declared factor of the category; categories without factors resolve to
// ResolutionNone and a zero Factor.
func Resolve(category Category, typ string) (Factor, Resolution) {
	if f, ok := LookupFactor(category, typ); ok {
		return f, ResolutionExact
	}
	declared := factorsByCategory[category]
	if len(declared) == 0 {
		return Factor{Category: category, Type: typ}, ResolutionNone
	}
	return declared[0], ResolutionFallback
}

// ComputeEmission returns kg CO2 for quantity units of the given activity.
// It never fails: quantity is not validated and no rounding is applied.
func ComputeEmission(category Category, typ string, quantity float64) float64 {
	f, _ := Resolve(category, typ)
	return quantity * f.KgCO2PerUnit
}

// UnitFor returns the unit of the factor that would be applied, or "" when the
// category has no factors.
func UnitFor(category Category, typ string) string {
	f, _ := Resolve(category, typ)
	return f.Unit
}
