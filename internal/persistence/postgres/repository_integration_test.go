//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("carbonledger"),
		postgrescontainer.WithUsername("carbon"),
		postgrescontainer.WithPassword("carbon"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init", "0002_outbox"}, applied)

	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again)
	return pool
}

func TestRepositoryActivitiesAndOutbox(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := domain.ActivityRecord{
			ID:             uuid.NewString(),
			UserID:         userID,
			Category:       emissions.CategoryTransport,
			Type:           "train",
			Quantity:       "12.5",
			Unit:           "km",
			CarbonEmission: "0.5",
			ActivityDate:   base.AddDate(0, 0, i),
			CreatedAt:      base,
		}
		key := ""
		if i == 0 {
			key = "key-1"
		}
		require.NoError(t, repo.CreateActivity(ctx, rec, key))
	}

	found, err := repo.FindActivityByIdempotency(ctx, userID, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, domain.Amount("12.5"), found.Quantity)
	require.Equal(t, base, found.ActivityDate)

	dup := *found
	dup.ID = uuid.NewString()
	err = repo.CreateActivity(ctx, dup, "key-1")
	require.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

	missing, err := repo.FindActivityByIdempotency(ctx, userID, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	page, next, err := repo.ListActivitiesByUser(ctx, userID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, base.AddDate(0, 0, 2), page[0].ActivityDate)
	require.NotNil(t, next)

	rest, next, err := repo.ListActivitiesByUser(ctx, userID, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, next)

	sum, err := repo.SumEmissions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.5, sum.Float64())

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = 'carbon_activity_events' AND published_at IS NULL`).Scan(&pending))
	require.Equal(t, 3, pending)
}

func TestRepositoryUsersOffsetsOrganizations(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	repo := NewRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := repo.UpsertUser(ctx, domain.User{ID: "u1", Email: "a@example.com", Role: domain.RoleAdmin, OrganizationID: "org-1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	updated, err := repo.UpsertUser(ctx, domain.User{ID: "u1", Email: "b@example.com", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	require.Equal(t, "b@example.com", updated.Email)
	require.Equal(t, domain.RoleAdmin, updated.Role)
	require.Equal(t, "org-1", updated.OrganizationID)

	fresh, err := repo.UpsertUser(ctx, domain.User{ID: "u2", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, fresh.Role)

	users, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, users)

	require.NoError(t, repo.CreateOffset(ctx, domain.CarbonOffset{
		ID: uuid.NewString(), UserID: "u1", OffsetAmount: "2.50", Project: "peat", Cost: "10", Currency: "USD",
		PurchaseDate: now, CreatedAt: now,
	}))
	offsets, err := repo.ListOffsetsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, offsets, 1)
	require.Equal(t, 2.5, offsets[0].OffsetAmount.Float64())

	require.NoError(t, repo.CreateOrganization(ctx, domain.Organization{ID: "org-1", Name: "Acme", CreatedAt: now, UpdatedAt: now}))
	org, err := repo.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, "Acme", org.Name)

	none, err := repo.GetOrganization(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, none)

	user, err := repo.GetUser(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, user)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
