// Package memory provides an in-process Repository for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/observability"
)

// Repository stores ledger data in maps guarded by a RWMutex.
type Repository struct {
	mu            sync.RWMutex
	activities    []domain.ActivityRecord
	idempotency   map[string]string
	offsets       []domain.CarbonOffset
	users         map[string]domain.User
	organizations map[string]domain.Organization
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		idempotency:   make(map[string]string),
		users:         make(map[string]domain.User),
		organizations: make(map[string]domain.Organization),
	}
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

// FindActivityByIdempotency implements domain.ActivityStore.
func (r *Repository) FindActivityByIdempotency(_ context.Context, userID, idempotencyKey string) (*domain.ActivityRecord, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idempotency[idempotencyIndex(userID, idempotencyKey)]
	if !ok {
		return nil, nil
	}
	for _, rec := range r.activities {
		if rec.ID == id {
			found := rec
			return &found, nil
		}
	}
	return nil, nil
}

// CreateActivity implements domain.ActivityStore.
func (r *Repository) CreateActivity(_ context.Context, record domain.ActivityRecord, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idempotencyKey != "" {
		idx := idempotencyIndex(record.UserID, idempotencyKey)
		if _, taken := r.idempotency[idx]; taken {
			return domain.ErrDuplicateIdempotencyKey
		}
		r.idempotency[idx] = record.ID
	}
	r.activities = append(r.activities, record)
	observability.RecordActivityPersisted(record.CreatedAt)
	return nil
}

// ListActivitiesByUser implements domain.ActivityStore. A non-positive limit
// returns every remaining record.
func (r *Repository) ListActivitiesByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	r.mu.RLock()
	owned := r.userActivities(userID)
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return sortsBefore(owned[i].ActivityDate, owned[i].ID, owned[j].ActivityDate, owned[j].ID)
	})

	results := make([]domain.ActivityRecord, 0)
	for _, rec := range owned {
		if cursor != nil && !sortsBefore(cursor.ActivityDate, cursor.ID, rec.ActivityDate, rec.ID) {
			continue
		}
		results = append(results, rec)
		if limit > 0 && len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{ActivityDate: last.ActivityDate, ID: last.ID}
	}
	return results, next, nil
}

// sortsBefore orders by activity date then id, both descending.
func sortsBefore(aDate time.Time, aID string, bDate time.Time, bID string) bool {
	if aDate.Equal(bDate) {
		return aID > bID
	}
	return aDate.After(bDate)
}

// AllActivitiesByUser implements domain.ActivityStore.
func (r *Repository) AllActivitiesByUser(_ context.Context, userID string) ([]domain.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userActivities(userID), nil
}

// CountActivities implements domain.ActivityStore.
func (r *Repository) CountActivities(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activities), nil
}

// SumEmissions implements domain.ActivityStore.
func (r *Repository) SumEmissions(context.Context) (domain.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total decimal.Decimal
	for _, rec := range r.activities {
		total = total.Add(rec.CarbonEmission.Decimal())
	}
	return domain.AmountFromDecimal(total), nil
}

// CreateOffset implements domain.OffsetStore.
func (r *Repository) CreateOffset(_ context.Context, offset domain.CarbonOffset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offsets = append(r.offsets, offset)
	observability.RecordOffsetPersisted(offset.CreatedAt)
	return nil
}

// ListOffsetsByUser implements domain.OffsetStore.
func (r *Repository) ListOffsetsByUser(_ context.Context, userID string) ([]domain.CarbonOffset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CarbonOffset, 0)
	for _, offset := range r.offsets {
		if offset.UserID == userID {
			out = append(out, offset)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchaseDate.After(out[j].PurchaseDate)
	})
	return out, nil
}

// GetUser implements domain.UserStore.
func (r *Repository) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// UpsertUser implements domain.UserStore.
func (r *Repository) UpsertUser(_ context.Context, user domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
		if user.Role == "" {
			user.Role = existing.Role
		}
		if user.OrganizationID == "" {
			user.OrganizationID = existing.OrganizationID
		}
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	r.users[user.ID] = user
	return &user, nil
}

// ListUsers implements domain.UserStore.
func (r *Repository) ListUsers(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountUsers implements domain.UserStore.
func (r *Repository) CountUsers(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

// ListOrganizations implements domain.OrganizationStore.
func (r *Repository) ListOrganizations(context.Context) ([]domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Organization, 0, len(r.organizations))
	for _, org := range r.organizations {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetOrganization implements domain.OrganizationStore.
func (r *Repository) GetOrganization(_ context.Context, id string) (*domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.organizations[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

// CreateOrganization implements domain.OrganizationStore.
func (r *Repository) CreateOrganization(_ context.Context, org domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.organizations[org.ID] = org
	return nil
}

// CountOrganizations implements domain.OrganizationStore.
func (r *Repository) CountOrganizations(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.organizations), nil
}

// userActivities copies the user's records; callers hold at least a read lock.
func (r *Repository) userActivities(userID string) []domain.ActivityRecord {
	out := make([]domain.ActivityRecord, 0)
	for _, rec := range r.activities {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}
