// Package domain defines the business logic of the carbon ledger.
package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"example.com/carbonledger/internal/emissions"
	"example.com/carbonledger/internal/observability"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdempotencyKey is returned by stores when another record already
	// holds the user's idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrOutOfRange is returned when a quantity or its emission does not fit a float64.
	ErrOutOfRange = errors.New("out of range")
)

// ActivityStore persists activity records.
type ActivityStore interface {
	FindActivityByIdempotency(ctx context.Context, userID, idempotencyKey string) (*ActivityRecord, error)
	CreateActivity(ctx context.Context, record ActivityRecord, idempotencyKey string) error
	ListActivitiesByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error)
	AllActivitiesByUser(ctx context.Context, userID string) ([]ActivityRecord, error)
	CountActivities(ctx context.Context) (int, error)
	SumEmissions(ctx context.Context) (Amount, error)
}

// OffsetStore persists carbon offsets.
type OffsetStore interface {
	CreateOffset(ctx context.Context, offset CarbonOffset) error
	ListOffsetsByUser(ctx context.Context, userID string) ([]CarbonOffset, error)
}

// UserStore persists user profiles.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, user User) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
}

// OrganizationStore persists organizations.
type OrganizationStore interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	CreateOrganization(ctx context.Context, org Organization) error
	CountOrganizations(ctx context.Context) (int, error)
}

// Repository is the full storage capability injected into the Service.
type Repository interface {
	ActivityStore
	OffsetStore
	UserStore
	OrganizationStore
}

// Service orchestrates carbon ledger workflows.
type Service struct {
	repo Repository
	now  func() time.Time
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithClock overrides the wall clock used for defaults and timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivityInput captures a validated activity from the API layer.
type CreateActivityInput struct {
	UserID         string
	Category       emissions.Category
	Type           string
	Description    string
	Quantity       Amount
	Unit           string
	ActivityDate   time.Time
	IdempotencyKey string
}

// CreateActivity computes the emission of the activity and stores it. When the
// idempotency key matches an earlier record, that record is returned with replay=true.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*ActivityRecord, bool, error) {
	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindActivityByIdempotency(ctx, input.UserID, input.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	factor, resolution := emissions.Resolve(input.Category, input.Type)
	emission := emissions.ComputeEmission(input.Category, input.Type, input.Quantity.Float64())
	if math.IsInf(emission, 0) || math.IsNaN(emission) {
		return nil, false, fmt.Errorf("emission for quantity %s: %w", input.Quantity, ErrOutOfRange)
	}

	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		unit = factor.Unit
	}

	now := s.now().UTC()
	activityDate := input.ActivityDate
	if activityDate.IsZero() {
		activityDate = now
	}

	record := ActivityRecord{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		Category:       input.Category,
		Type:           input.Type,
		Description:    input.Description,
		Quantity:       AmountFromDecimal(input.Quantity.Decimal()),
		Unit:           unit,
		CarbonEmission: AmountFromFloat(emission),
		ActivityDate:   activityDate.UTC(),
		CreatedAt:      now,
	}

	if err := s.repo.CreateActivity(ctx, record, input.IdempotencyKey); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key committed first.
			existing, findErr := s.repo.FindActivityByIdempotency(ctx, input.UserID, input.IdempotencyKey)
			if findErr != nil {
				return nil, false, fmt.Errorf("lookup idempotency key: %w", findErr)
			}
			if existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("create activity: %w", err)
	}

	observability.RecordFactorResolution(string(input.Category), string(resolution))
	observability.RecordEmissionLogged(string(input.Category), emission)
	return &record, false, nil
}

// ListActivities returns the user's activities, newest first.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error) {
	return s.repo.ListActivitiesByUser(ctx, userID, cursor, limit)
}

// Dashboard bundles the data behind the user dashboard.
type Dashboard struct {
	Stats            DashboardStats
	TotalOffsets     float64
	RecentActivities []ActivityRecord
}

// GetDashboard loads history, recent activities and offsets concurrently and
// aggregates them.
func (s *Service) GetDashboard(ctx context.Context, userID string, recentLimit int) (*Dashboard, error) {
	var (
		history []ActivityRecord
		recent  []ActivityRecord
		offsets []CarbonOffset
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.repo.AllActivitiesByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, _, err = s.repo.ListActivitiesByUser(gctx, userID, nil, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		offsets, err = s.repo.ListOffsetsByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}

	return &Dashboard{
		Stats:            Aggregate(history),
		TotalOffsets:     TotalOffsets(offsets),
		RecentActivities: recent,
	}, nil
}

// CreateOffsetInput captures a validated offset purchase.
type CreateOffsetInput struct {
	UserID         string
	OffsetAmount   Amount
	Project        string
	VerificationID string
	Cost           Amount
	Currency       string
	PurchaseDate   time.Time
}

// CreateOffset records a carbon offset purchase.
func (s *Service) CreateOffset(ctx context.Context, input CreateOffsetInput) (*CarbonOffset, error) {
	now := s.now().UTC()
	purchaseDate := input.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = now
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	offset := CarbonOffset{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		OffsetAmount:   AmountFromDecimal(input.OffsetAmount.Decimal()),
		Project:        input.Project,
		VerificationID: input.VerificationID,
		Cost:           AmountFromDecimal(input.Cost.Decimal()),
		Currency:       currency,
		PurchaseDate:   purchaseDate.UTC(),
		CreatedAt:      now,
	}
	if err := s.repo.CreateOffset(ctx, offset); err != nil {
		return nil, fmt.Errorf("create offset: %w", err)
	}
	return &offset, nil
}

// ListOffsets returns the user's offsets, most recent purchase first.
func (s *Service) ListOffsets(ctx context.Context, userID string) ([]CarbonOffset, error) {
	return s.repo.ListOffsetsByUser(ctx, userID)
}

// SyncUser upserts the profile reported by the identity provider. Role and
// organization are kept from the stored row unless the profile sets them.
func (s *Service) SyncUser(ctx context.Context, profile User) (*User, error) {
	if strings.TrimSpace(profile.ID) == "" {
		return nil, errors.New("user id is required")
	}
	now := s.now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	user, err := s.repo.UpsertUser(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// ListOrganizations returns organizations ordered by name.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// GetOrganization fetches an organization by id.
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	org, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}
	return org, nil
}

// CreateOrganization stores a new organization.
func (s *Service) CreateOrganization(ctx context.Context, name, description string) (*Organization, error) {
	now := s.now().UTC()
	org := Organization{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return &org, nil
}

// AdminStats is the global rollup shown on the admin panel.
type AdminStats struct {
	TotalUsers         int
	TotalOrganizations int
	TotalActivities    int
	TotalEmissionsKg   float64
}

// TotalEmissionsTonnes converts the global emission sum to tonnes.
func (a AdminStats) TotalEmissionsTonnes() float64 {
	return a.TotalEmissionsKg / 1000
}

// GetAdminStats runs the four global counts concurrently.
func (s *Service) GetAdminStats(ctx context.Context) (AdminStats, error) {
	var stats AdminStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.TotalUsers, err = s.repo.CountUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TotalOrganizations, err = s.repo.CountOrganizations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TotalActivities, err = s.repo.CountActivities(gctx)
		return err
	})
	g.Go(func() error {
		sum, err := s.repo.SumEmissions(gctx)
		if err != nil {
			return err
		}
		stats.TotalEmissionsKg = sum.Float64()
		return nil
	})
	if err := g.Wait(); err != nil {
		return AdminStats{}, fmt.Errorf("load admin stats: %w", err)
	}
	return stats, nil
}
