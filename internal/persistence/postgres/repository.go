// Package postgres provides Postgres-backed persistence for the ledger and its outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
	"example.com/carbonledger/internal/events"
	"example.com/carbonledger/internal/observability"
	"example.com/carbonledger/internal/outbox"
)

const eventVersion = "v1"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const activityColumns = `id, user_id, category, type, description, quantity::text, unit, carbon_emission::text, activity_date, created_at`

const offsetColumns = `id, user_id, offset_amount::text, project, verification_id, cost::text, currency, purchase_date, created_at`

const userColumns = `id, email, first_name, last_name, profile_image_url, role, COALESCE(organization_id, ''), created_at, updated_at`

const organizationColumns = `id, name, description, created_at, updated_at`

// Repository implements domain.Repository on Postgres. Activity and offset
// writes enqueue their outbox events in the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActivityByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindActivityByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.ActivityRecord, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id=$1 AND idempotency_key=$2`, userID, idempotencyKey)
	rec, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateActivity persists the record and its activity.logged event inside a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, record domain.ActivityRecord, idempotencyKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO activities (id, user_id, category, type, description, quantity, unit, carbon_emission, activity_date, idempotency_key, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		record.ID,
		record.UserID,
		string(record.Category),
		record.Type,
		record.Description,
		string(record.Quantity),
		record.Unit,
		string(record.CarbonEmission),
		record.ActivityDate,
		nullIfEmpty(idempotencyKey),
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if idempotencyKey != "" && errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateIdempotencyKey
		}
		return err
	}

	if err = insertOutbox(ctx, tx, "activity", record.ID, record.UserID, events.TypeActivityLogged, events.ActivityLogged{
		ActivityID:     record.ID,
		UserID:         record.UserID,
		Category:       string(record.Category),
		Type:           record.Type,
		Quantity:       string(record.Quantity),
		Unit:           record.Unit,
		CarbonEmission: string(record.CarbonEmission),
		ActivityDate:   record.ActivityDate,
		Version:        eventVersion,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(record.CreatedAt)
	return nil
}

// ListActivitiesByUser returns activities ordered by activity date then id, newest first.
func (r *Repository) ListActivitiesByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	args := []interface{}{userID}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (activity_date, id) < ($2, $3)`
		args = append(args, cursor.ActivityDate, cursor.ID)
	}
	query += ` ORDER BY activity_date DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	results, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{ActivityDate: last.ActivityDate, ID: last.ID}
	}
	return results, nextCursor, nil
}

// AllActivitiesByUser returns the user's complete history.
func (r *Repository) AllActivitiesByUser(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id=$1 ORDER BY activity_date`, userID)
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...interface{}) ([]domain.ActivityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountActivities implements domain.ActivityStore.
func (r *Repository) CountActivities(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM activities`)
}

// SumEmissions totals carbon_emission over every activity.
func (r *Repository) SumEmissions(ctx context.Context) (domain.Amount, error) {
	var sum string
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(carbon_emission), 0)::text FROM activities`).Scan(&sum); err != nil {
		return "", err
	}
	return domain.Amount(sum), nil
}

// CreateOffset persists the offset and its offset.purchased event inside a single transaction.
func (r *Repository) CreateOffset(ctx context.Context, offset domain.CarbonOffset) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO carbon_offsets (id, user_id, offset_amount, project, verification_id, cost, currency, purchase_date, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		offset.ID,
		offset.UserID,
		string(offset.OffsetAmount),
		offset.Project,
		offset.VerificationID,
		string(offset.Cost),
		offset.Currency,
		offset.PurchaseDate,
		offset.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, "offset", offset.ID, offset.UserID, events.TypeOffsetPurchased, events.OffsetPurchased{
		OffsetID:     offset.ID,
		UserID:       offset.UserID,
		OffsetAmount: string(offset.OffsetAmount),
		Project:      offset.Project,
		Cost:         string(offset.Cost),
		Currency:     offset.Currency,
		PurchaseDate: offset.PurchaseDate,
		Version:      eventVersion,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordOffsetPersisted(offset.CreatedAt)
	return nil
}

// ListOffsetsByUser returns the user's offsets, most recent purchase first.
func (r *Repository) ListOffsetsByUser(ctx context.Context, userID string) ([]domain.CarbonOffset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+offsetColumns+` FROM carbon_offsets WHERE user_id=$1 ORDER BY purchase_date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.CarbonOffset, 0)
	for rows.Next() {
		var o domain.CarbonOffset
		var amount, cost string
		if err := rows.Scan(&o.ID, &o.UserID, &amount, &o.Project, &o.VerificationID, &cost, &o.Currency, &o.PurchaseDate, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.OffsetAmount = domain.Amount(amount)
		o.Cost = domain.Amount(cost)
		o.PurchaseDate = o.PurchaseDate.UTC()
		o.CreatedAt = o.CreatedAt.UTC()
		results = append(results, o)
	}
	return results, rows.Err()
}

// GetUser returns nil when the user does not exist.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpsertUser inserts the profile or refreshes it. An empty role or
// organization keeps the stored value.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, first_name, last_name, profile_image_url, role, organization_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,COALESCE(NULLIF($6,''),'user'),NULLIF($7,''),$8,$9)
        ON CONFLICT (id) DO UPDATE SET
            email = EXCLUDED.email,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            profile_image_url = EXCLUDED.profile_image_url,
            role = CASE WHEN $6 = '' THEN users.role ELSE EXCLUDED.role END,
            organization_id = COALESCE(EXCLUDED.organization_id, users.organization_id),
            updated_at = EXCLUDED.updated_at
        RETURNING `+userColumns,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.ProfileImageURL,
		user.Role,
		user.OrganizationID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	stored, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListUsers returns every user, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, user)
	}
	return results, rows.Err()
}

// CountUsers implements domain.UserStore.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

// ListOrganizations returns organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, org)
	}
	return results, rows.Err()
}

// GetOrganization returns nil when the organization does not exist.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	org, err := scanOrganization(r.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

// CreateOrganization implements domain.OrganizationStore.
func (r *Repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, description, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		org.ID, org.Name, org.Description, org.CreatedAt, org.UpdatedAt,
	)
	return err
}

// CountOrganizations implements domain.OrganizationStore.
func (r *Repository) CountOrganizations(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM organizations`)
}

func (r *Repository) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, userID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	route, ok := outbox.RouteFor(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		userID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

func scanActivity(row pgx.Row) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var category, quantity, emission string
	if err := row.Scan(&rec.ID, &rec.UserID, &category, &rec.Type, &rec.Description, &quantity, &rec.Unit, &emission, &rec.ActivityDate, &rec.CreatedAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.Category = emissions.Category(category)
	rec.Quantity = domain.Amount(quantity)
	rec.CarbonEmission = domain.Amount(emission)
	rec.ActivityDate = rec.ActivityDate.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL, &u.Role, &u.OrganizationID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var o domain.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Organization{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
