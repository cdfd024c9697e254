package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestActivitiesRoundTripAndPaginate(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2025, time.January, 10, 8, 30, 0, 0, time.UTC)

	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		key := ""
		if id == "b" {
			key = "retry-b"
		}
		require.NoError(t, repo.CreateActivity(ctx, domain.ActivityRecord{
			ID:             id,
			UserID:         "user-1",
			Category:       emissions.CategoryEnergy,
			Type:           "electricity",
			Quantity:       "10.25",
			Unit:           "kWh",
			CarbonEmission: "5.125",
			ActivityDate:   base.Add(time.Duration(i) * time.Hour),
			CreatedAt:      base,
		}, key))
	}
	require.NoError(t, repo.CreateActivity(ctx, domain.ActivityRecord{
		ID: "z", UserID: "user-2", Category: emissions.CategoryFood, Quantity: "1", CarbonEmission: "27", ActivityDate: base, CreatedAt: base,
	}, ""))

	found, err := repo.FindActivityByIdempotency(ctx, "user-1", "retry-b")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "b", found.ID)
	assert.Equal(t, domain.Amount("10.25"), found.Quantity)
	assert.Equal(t, base.Add(time.Hour), found.ActivityDate)

	none, err := repo.FindActivityByIdempotency(ctx, "user-2", "retry-b")
	require.NoError(t, err)
	assert.Nil(t, none)

	page, next, err := repo.ListActivitiesByUser(ctx, "user-1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)
	require.NotNil(t, next)

	page, next, err = repo.ListActivitiesByUser(ctx, "user-1", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
	assert.Nil(t, next)

	all, err := repo.AllActivitiesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	count, err := repo.CountActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	sum, err := repo.SumEmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount("42.375"), sum)
}

func TestCreateActivityRejectsTakenIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	at := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	record := func(id string) domain.ActivityRecord {
		return domain.ActivityRecord{ID: id, UserID: "user-1", Category: emissions.CategoryFood, Quantity: "1", CarbonEmission: "27", ActivityDate: at, CreatedAt: at}
	}

	require.NoError(t, repo.CreateActivity(ctx, record("first"), "retry-1"))
	err := repo.CreateActivity(ctx, record("second"), "retry-1")
	require.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

	// Records without a key never collide.
	require.NoError(t, repo.CreateActivity(ctx, record("third"), ""))
	require.NoError(t, repo.CreateActivity(ctx, record("fourth"), ""))

	count, err := repo.CountActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUsersOffsetsAndOrganizations(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.UpsertUser(ctx, domain.User{ID: "u1", Email: "a@example.com", Role: domain.RoleAdmin, OrganizationID: "org-1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	later := now.Add(time.Hour)
	user, err := repo.UpsertUser(ctx, domain.User{ID: "u1", Email: "b@example.com", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", user.Email)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, "org-1", user.OrganizationID)
	assert.Equal(t, now, user.CreatedAt)
	assert.Equal(t, later, user.UpdatedAt)

	fresh, err := repo.UpsertUser(ctx, domain.User{ID: "u2", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, fresh.Role)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u2", users[0].ID)

	missing, err := repo.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for i, amount := range []domain.Amount{"1.5", "2"} {
		require.NoError(t, repo.CreateOffset(ctx, domain.CarbonOffset{
			ID: string(rune('x' + i)), UserID: "u1", OffsetAmount: amount, Project: "kelp", Cost: "3", Currency: "USD",
			PurchaseDate: now.AddDate(0, 0, i), CreatedAt: now,
		}))
	}
	offsets, err := repo.ListOffsetsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, offsets, 2)
	assert.Equal(t, domain.Amount("2"), offsets[0].OffsetAmount)
	assert.Equal(t, 3.5, domain.TotalOffsets(offsets))

	require.NoError(t, repo.CreateOrganization(ctx, domain.Organization{ID: "o2", Name: "Zeta", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.CreateOrganization(ctx, domain.Organization{ID: "o1", Name: "Alpha", CreatedAt: now, UpdatedAt: now}))
	orgs, err := repo.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Alpha", orgs[0].Name)

	org, err := repo.GetOrganization(ctx, "o2")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, "Zeta", org.Name)

	n, err := repo.CountOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	svc := domain.NewService(openTestRepo(t))

	_, _, err := svc.CreateActivity(ctx, domain.CreateActivityInput{
		UserID: "u1", Category: emissions.CategoryWaste, Type: "general", Quantity: "4",
		ActivityDate: time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	dash, err := svc.GetDashboard(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, dash.Stats.WasteEmissions)
	require.Len(t, dash.Stats.MonthlyEmissions, 1)
	assert.Equal(t, "2024-12", dash.Stats.MonthlyEmissions[0].Month)
}
