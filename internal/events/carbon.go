// Package events defines the payloads published on the carbon event topics.
package events

import "time"

// Event type identifiers carried in the event_type header.
const (
	TypeActivityLogged  = "activity.logged"
	TypeOffsetPurchased = "offset.purchased"
)

// ActivityLogged is emitted when an activity is accepted and its emission computed.
type ActivityLogged struct {
	ActivityID     string    `json:"activity_id"`
	UserID         string    `json:"user_id"`
	Category       string    `json:"category"`
	Type           string    `json:"type"`
	Quantity       string    `json:"quantity"`
	Unit           string    `json:"unit"`
	CarbonEmission string    `json:"carbon_emission"`
	ActivityDate   time.Time `json:"activity_date"`
	Version        string    `json:"version"`
}

// OffsetPurchased is emitted when a user records an offset purchase.
type OffsetPurchased struct {
	OffsetID     string    `json:"offset_id"`
	UserID       string    `json:"user_id"`
	OffsetAmount string    `json:"offset_amount"`
	Project      string    `json:"project"`
	Cost         string    `json:"cost"`
	Currency     string    `json:"currency"`
	PurchaseDate time.Time `json:"purchase_date"`
	Version      string    `json:"version"`
}
