package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/carbonledger/internal/emissions"
)

// Amount is a decimal value in the textual form the database returns it in.
// Values that do not parse count as zero wherever they are summed.
type Amount string

// AmountFromDecimal formats d without loss.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.String())
}

// AmountFromFloat formats f using the shortest representation that round-trips.
// NaN and infinities have no decimal form and format as zero.
func AmountFromFloat(f float64) Amount {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return Amount(decimal.NewFromFloat(f).String())
}

// Decimal parses the amount, returning zero for empty or malformed values.
func (a Amount) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(string(a)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Float64 is Decimal converted to float64.
func (a Amount) Float64() float64 {
	return a.Decimal().InexactFloat64()
}

// ActivityRecord is one logged activity with the emission computed when it was created.
type ActivityRecord struct {
	ID             string
	UserID         string
	Category       emissions.Category
	Type           string
	Description    string
	Quantity       Amount
	Unit           string
	CarbonEmission Amount
	ActivityDate   time.Time
	CreatedAt      time.Time
}

// CarbonOffset is a purchased carbon credit.
type CarbonOffset struct {
	ID             string
	UserID         string
	OffsetAmount   Amount
	Project        string
	VerificationID string
	Cost           Amount
	Currency       string
	PurchaseDate   time.Time
	CreatedAt      time.Time
}

// Role values stored on users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors the identity provider profile of a signed-in account.
type User struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
	Role            string
	OrganizationID  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Organization groups users.
type Organization struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cursor models the activity pagination token.
type Cursor struct {
	ActivityDate time.Time
	ID           string
}
