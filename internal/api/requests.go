package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/carbonledger/internal/emissions"
)

// Date accepts either an RFC 3339 timestamp or a bare YYYY-MM-DD date.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			d.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", raw)
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Category     emissions.Category  `json:"category"`
	Type         string              `json:"type"`
	Description  string              `json:"description"`
	Quantity     decimal.NullDecimal `json:"quantity"`
	Unit         string              `json:"unit"`
	ActivityDate Date                `json:"activityDate"`
}

// Validate ensures request correctness. A missing type is accepted and resolved
// by the calculator fallback.
func (r CreateActivityRequest) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("category must be one of %s", categoryList())
	}
	if typ := strings.TrimSpace(r.Type); typ != "" && len(emissions.FactorsFor(r.Category)) > 0 {
		if _, ok := emissions.LookupFactor(r.Category, typ); !ok {
			return fmt.Errorf("type %q is not defined for category %s", typ, r.Category)
		}
	}
	if !r.Quantity.Valid {
		return errors.New("quantity is required")
	}
	if r.Quantity.Decimal.IsNegative() {
		return errors.New("quantity must be >= 0")
	}
	if outOfRange(r.Quantity.Decimal) {
		return errors.New("quantity out of range")
	}
	return nil
}

// CreateOffsetRequest is the payload for POST /v1/offsets.
type CreateOffsetRequest struct {
	OffsetAmount   decimal.NullDecimal `json:"offsetAmount"`
	Project        string              `json:"project"`
	VerificationID string              `json:"verificationId"`
	Cost           decimal.NullDecimal `json:"cost"`
	Currency       string              `json:"currency"`
	PurchaseDate   Date                `json:"purchaseDate"`
}

// Validate ensures request correctness.
func (r CreateOffsetRequest) Validate() error {
	if !r.OffsetAmount.Valid {
		return errors.New("offsetAmount is required")
	}
	if r.OffsetAmount.Decimal.IsNegative() {
		return errors.New("offsetAmount must be >= 0")
	}
	if outOfRange(r.OffsetAmount.Decimal) {
		return errors.New("offsetAmount out of range")
	}
	if r.Cost.Valid && r.Cost.Decimal.IsNegative() {
		return errors.New("cost must be >= 0")
	}
	if r.Cost.Valid && outOfRange(r.Cost.Decimal) {
		return errors.New("cost out of range")
	}
	if strings.TrimSpace(r.Project) == "" {
		return errors.New("project is required")
	}
	if c := strings.TrimSpace(r.Currency); c != "" && len(c) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	return nil
}

// CreateOrganizationRequest is the payload for POST /v1/organizations.
type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate ensures request correctness.
func (r CreateOrganizationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// outOfRange reports whether d overflows float64, which totals are summed in.
func outOfRange(d decimal.Decimal) bool {
	return math.IsInf(d.InexactFloat64(), 0)
}

func categoryList() string {
	names := make([]string, 0, len(emissions.Categories))
	for _, c := range emissions.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
