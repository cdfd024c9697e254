// Package emissions holds the static emission factor table and the calculator
// that turns logged quantities into kilograms of CO2.
package emissions

// Category classifies a logged activity.
type Category string

const (
	CategoryTransport Category = "transport"
	CategoryEnergy    Category = "energy"
	CategoryFood      Category = "food"
	CategoryWaste     Category = "waste"
	CategoryProducts  Category = "products"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryTransport,
	CategoryEnergy,
	CategoryFood,
	CategoryWaste,
	CategoryProducts,
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTransport, CategoryEnergy, CategoryFood, CategoryWaste, CategoryProducts:
		return true
	}
	return false
}

// Factor is the emission intensity of one activity type.
type Factor struct {
	Category     Category `json:"category" yaml:"category"`
	Type         string   `json:"type" yaml:"type"`
	KgCO2PerUnit float64  `json:"factor" yaml:"factor"`
	Unit         string   `json:"unit" yaml:"unit"`
}

// factorTable is kg CO2 per unit. Order within a category is significant: the
// first entry is the fallback for unrecognised types.
var factorTable = []Factor{
	{CategoryTransport, "car_gasoline", 0.21, "km"},
	{CategoryTransport, "car_electric", 0.05, "km"},
	{CategoryTransport, "flight_domestic", 0.25, "km"},
	{CategoryTransport, "flight_international", 0.30, "km"},
	{CategoryTransport, "train", 0.04, "km"},
	{CategoryTransport, "bus", 0.08, "km"},
	{CategoryTransport, "motorcycle", 0.15, "km"},

	{CategoryEnergy, "electricity", 0.50, "kWh"},
	{CategoryEnergy, "natural_gas", 0.20, "kWh"},
	{CategoryEnergy, "heating_oil", 0.30, "L"},

	{CategoryFood, "beef", 27, "kg"},
	{CategoryFood, "pork", 12, "kg"},
	{CategoryFood, "chicken", 6, "kg"},
	{CategoryFood, "fish", 6, "kg"},
	{CategoryFood, "dairy", 3.2, "kg"},
	{CategoryFood, "vegetables", 2, "kg"},
	{CategoryFood, "grains", 1.4, "kg"},

	{CategoryWaste, "general", 0.5, "kg"},
	{CategoryWaste, "recycled", 0.1, "kg"},
	{CategoryWaste, "organic", 0.3, "kg"},
}

var (
	factorsByCategory = make(map[Category][]Factor)
	factorsByKey      = make(map[factorKey]Factor)
)

type factorKey struct {
	category Category
	typ      string
}

func init() {
	for _, f := range factorTable {
		factorsByCategory[f.Category] = append(factorsByCategory[f.Category], f)
		factorsByKey[factorKey{f.Category, f.Type}] = f
	}
}

// Factors returns a copy of the full table in declared order.
func Factors() []Factor {
	out := make([]Factor, len(factorTable))
	copy(out, factorTable)
	return out
}

// FactorsFor returns the declared factors of a category, or nil when it has none.
func FactorsFor(category Category) []Factor {
	declared := factorsByCategory[category]
	if len(declared) == 0 {
		return nil
	}
	out := make([]Factor, len(declared))
	copy(out, declared)
	return out
}

// LookupFactor finds the exact (category, type) entry.
func LookupFactor(category Category, typ string) (Factor, bool) {
	f, ok := factorsByKey[factorKey{category, typ}]
	return f, ok
}
