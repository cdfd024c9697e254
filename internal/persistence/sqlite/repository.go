// Package sqlite provides a single-file Repository for local development.
// It has no outbox; events are only published from the Postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
	"example.com/carbonledger/internal/observability"
)

// timeLayout is fixed width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	profile_image_url TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user',
	organization_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	quantity TEXT NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	carbon_emission TEXT NOT NULL,
	activity_date TEXT NOT NULL,
	idempotency_key TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(user_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS idx_activities_user_date ON activities(user_id, activity_date DESC, id DESC);
CREATE TABLE IF NOT EXISTS carbon_offsets (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	offset_amount TEXT NOT NULL,
	project TEXT NOT NULL,
	verification_id TEXT NOT NULL DEFAULT '',
	cost TEXT NOT NULL DEFAULT '0',
	currency TEXT NOT NULL DEFAULT 'USD',
	purchase_date TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offsets_user ON carbon_offsets(user_id, purchase_date DESC);
`

const activityColumns = `id, user_id, category, type, description, quantity, unit, carbon_emission, activity_date, created_at`

const offsetColumns = `id, user_id, offset_amount, project, verification_id, cost, currency, purchase_date, created_at`

const userColumns = `id, email, first_name, last_name, profile_image_url, role, organization_id, created_at, updated_at`

// Repository implements domain.Repository on SQLite.
type Repository struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database at path and initialises the schema.
func Open(path string) (*Repository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases coherent.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Repository{conn: conn}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.conn.Close()
}

// FindActivityByIdempotency implements domain.ActivityStore.
func (r *Repository) FindActivityByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.ActivityRecord, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	row := r.conn.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id = ? AND idempotency_key = ?`, userID, idempotencyKey)
	rec, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	return &rec, nil
}

// CreateActivity implements domain.ActivityStore.
func (r *Repository) CreateActivity(ctx context.Context, record domain.ActivityRecord, idempotencyKey string) error {
	var key sql.NullString
	if idempotencyKey != "" {
		key = sql.NullString{String: idempotencyKey, Valid: true}
	}
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO activities (`+activityColumns+`, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		string(record.Category),
		record.Type,
		record.Description,
		string(record.Quantity),
		record.Unit,
		string(record.CarbonEmission),
		formatTime(record.ActivityDate),
		formatTime(record.CreatedAt),
		key,
	)
	if err != nil {
		if key.Valid && isUniqueViolation(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("inserting activity: %w", err)
	}
	observability.RecordActivityPersisted(record.CreatedAt)
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
}

// ListActivitiesByUser implements domain.ActivityStore.
func (r *Repository) ListActivitiesByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = ?`
	args := []any{userID}
	if cursor != nil {
		date := formatTime(cursor.ActivityDate)
		query += ` AND (activity_date < ? OR (activity_date = ? AND id < ?))`
		args = append(args, date, date, cursor.ID)
	}
	query += ` ORDER BY activity_date DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	results, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{ActivityDate: last.ActivityDate, ID: last.ID}
	}
	return results, next, nil
}

// AllActivitiesByUser implements domain.ActivityStore.
func (r *Repository) AllActivitiesByUser(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id = ? ORDER BY activity_date`, userID)
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...any) ([]domain.ActivityRecord, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountActivities implements domain.ActivityStore.
func (r *Repository) CountActivities(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM activities`)
}

// SumEmissions adds the stored decimal strings exactly; SQLite has no decimal type.
func (r *Repository) SumEmissions(ctx context.Context) (domain.Amount, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT carbon_emission FROM activities`)
	if err != nil {
		return "", fmt.Errorf("querying emissions: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return "", err
		}
		total = total.Add(domain.Amount(raw).Decimal())
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return domain.AmountFromDecimal(total), nil
}

// CreateOffset implements domain.OffsetStore.
func (r *Repository) CreateOffset(ctx context.Context, offset domain.CarbonOffset) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO carbon_offsets (`+offsetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offset.ID,
		offset.UserID,
		string(offset.OffsetAmount),
		offset.Project,
		offset.VerificationID,
		string(offset.Cost),
		offset.Currency,
		formatTime(offset.PurchaseDate),
		formatTime(offset.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting offset: %w", err)
	}
	observability.RecordOffsetPersisted(offset.CreatedAt)
	return nil
}

// ListOffsetsByUser implements domain.OffsetStore.
func (r *Repository) ListOffsetsByUser(ctx context.Context, userID string) ([]domain.CarbonOffset, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT `+offsetColumns+` FROM carbon_offsets WHERE user_id = ? ORDER BY purchase_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying offsets: %w", err)
	}
	defer rows.Close()

	results := make([]domain.CarbonOffset, 0)
	for rows.Next() {
		var o domain.CarbonOffset
		var amount, cost, purchased, created string
		if err := rows.Scan(&o.ID, &o.UserID, &amount, &o.Project, &o.VerificationID, &cost, &o.Currency, &purchased, &created); err != nil {
			return nil, fmt.Errorf("scanning offset: %w", err)
		}
		o.OffsetAmount = domain.Amount(amount)
		o.Cost = domain.Amount(cost)
		if o.PurchaseDate, err = parseTime(purchased); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

// GetUser implements domain.UserStore.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(r.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// UpsertUser implements domain.UserStore. An empty role or organization keeps
// the stored value.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) (*domain.User, error) {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''), 'user'), ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			profile_image_url = excluded.profile_image_url,
			role = CASE WHEN ? = '' THEN users.role ELSE excluded.role END,
			organization_id = CASE WHEN excluded.organization_id = '' THEN users.organization_id ELSE excluded.organization_id END,
			updated_at = excluded.updated_at`,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.ProfileImageURL,
		user.Role,
		user.OrganizationID,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
		user.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return r.GetUser(ctx, user.ID)
}

// ListUsers implements domain.UserStore.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	results := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		results = append(results, user)
	}
	return results, rows.Err()
}

// CountUsers implements domain.UserStore.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

// ListOrganizations implements domain.OrganizationStore.
func (r *Repository) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying organizations: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		results = append(results, org)
	}
	return results, rows.Err()
}

// GetOrganization implements domain.OrganizationStore.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	org, err := scanOrganization(r.conn.QueryRowContext(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying organization: %w", err)
	}
	return &org, nil
}

// CreateOrganization implements domain.OrganizationStore.
func (r *Repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO organizations (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Description, formatTime(org.CreatedAt), formatTime(org.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}
	return nil
}

// CountOrganizations implements domain.OrganizationStore.
func (r *Repository) CountOrganizations(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM organizations`)
}

func (r *Repository) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(row scanner) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var category, quantity, emission, activityDate, createdAt string
	if err := row.Scan(&rec.ID, &rec.UserID, &category, &rec.Type, &rec.Description, &quantity, &rec.Unit, &emission, &activityDate, &createdAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.Category = emissions.Category(category)
	rec.Quantity = domain.Amount(quantity)
	rec.CarbonEmission = domain.Amount(emission)

	var err error
	if rec.ActivityDate, err = parseTime(activityDate); err != nil {
		return domain.ActivityRecord{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	return rec, nil
}

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL, &u.Role, &u.OrganizationID, &createdAt, &updatedAt); err != nil {
		return domain.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func scanOrganization(row scanner) (domain.Organization, error) {
	var o domain.Organization
	var createdAt, updatedAt string
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &createdAt, &updatedAt); err != nil {
		return domain.Organization{}, err
	}
	var err error
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Organization{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", value, err)
	}
	return t.UTC(), nil
}
