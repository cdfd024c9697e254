package api

import (
	"time"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
)

// ActivityView exposes an activity record. Decimal columns are rendered as
// strings so no precision is lost.
type ActivityView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Category       string    `json:"category"`
	Type           string    `json:"type"`
	Description    string    `json:"description,omitempty"`
	Quantity       string    `json:"quantity"`
	Unit           string    `json:"unit"`
	CarbonEmission string    `json:"carbonEmission"`
	ActivityDate   time.Time `json:"activityDate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// MonthlyEmissionView is one point of the monthly series.
type MonthlyEmissionView struct {
	Month     string  `json:"month"`
	Emissions float64 `json:"emissions"`
}

// DashboardStatsResponse is the body of GET /v1/dashboard/stats.
type DashboardStatsResponse struct {
	TotalEmissions     float64               `json:"totalEmissions"`
	TransportEmissions float64               `json:"transportEmissions"`
	EnergyEmissions    float64               `json:"energyEmissions"`
	FoodEmissions      float64               `json:"foodEmissions"`
	WasteEmissions     float64               `json:"wasteEmissions"`
	TotalOffsets       float64               `json:"totalOffsets"`
	MonthlyEmissions   []MonthlyEmissionView `json:"monthlyEmissions"`
	RecentActivities   []ActivityView        `json:"recentActivities"`
}

// OffsetView exposes a carbon offset.
type OffsetView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	OffsetAmount   string    `json:"offsetAmount"`
	Project        string    `json:"project"`
	VerificationID string    `json:"verificationId,omitempty"`
	Cost           string    `json:"cost"`
	Currency       string    `json:"currency"`
	PurchaseDate   time.Time `json:"purchaseDate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListOffsetsResponse packages offset results.
type ListOffsetsResponse struct {
	Items []OffsetView `json:"items"`
}

// EmissionFactorsResponse lists the factor table in declared order.
type EmissionFactorsResponse struct {
	Items []emissions.Factor `json:"items"`
}

// UserView exposes a user profile.
type UserView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Role            string    `json:"role"`
	OrganizationID  string    `json:"organizationId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ListUsersResponse packages user results.
type ListUsersResponse struct {
	Items []UserView `json:"items"`
}

// OrganizationView exposes an organization.
type OrganizationView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListOrganizationsResponse packages organization results.
type ListOrganizationsResponse struct {
	Items []OrganizationView `json:"items"`
}

// AdminStatsResponse is the body of GET /v1/admin/stats. TotalEmissions is in tonnes.
type AdminStatsResponse struct {
	TotalUsers         int     `json:"totalUsers"`
	TotalOrganizations int     `json:"totalOrganizations"`
	TotalActivities    int     `json:"totalActivities"`
	TotalEmissions     float64 `json:"totalEmissions"`
}

func toActivityView(rec domain.ActivityRecord) ActivityView {
	return ActivityView{
		ID:             rec.ID,
		UserID:         rec.UserID,
		Category:       string(rec.Category),
		Type:           rec.Type,
		Description:    rec.Description,
		Quantity:       string(rec.Quantity),
		Unit:           rec.Unit,
		CarbonEmission: string(rec.CarbonEmission),
		ActivityDate:   rec.ActivityDate,
		CreatedAt:      rec.CreatedAt,
	}
}

func toActivityViews(records []domain.ActivityRecord) []ActivityView {
	out := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		out = append(out, toActivityView(rec))
	}
	return out
}

func toOffsetView(o domain.CarbonOffset) OffsetView {
	return OffsetView{
		ID:             o.ID,
		UserID:         o.UserID,
		OffsetAmount:   string(o.OffsetAmount),
		Project:        o.Project,
		VerificationID: o.VerificationID,
		Cost:           string(o.Cost),
		Currency:       o.Currency,
		PurchaseDate:   o.PurchaseDate,
		CreatedAt:      o.CreatedAt,
	}
}

func toUserView(u domain.User) UserView {
	return UserView{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		Role:            u.Role,
		OrganizationID:  u.OrganizationID,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func toOrganizationView(o domain.Organization) OrganizationView {
	return OrganizationView{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
