package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Organizations & Profiles ---

func (s *PostgresStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (id, name) VALUES ($1, $2) RETURNING created_at`,
		org.ID, org.Name,
	).Scan(&org.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, created_at FROM profiles WHERE id = $1`, userID,
	).Scan(&p.ID, &p.OrgID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// --- API Keys ---

const apiKeyColumns = `id, org_id, user_id, name, key_prefix, hashed_key, revoked_at, created_at`

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.OrgID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE hashed_key = $1 AND revoked_at IS NULL`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) GetLatestAPIKeyForUser(ctx context.Context, userID uuid.UUID) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE user_id = $1 AND revoked_at IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest api key for user: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, org_id, user_id, name, key_prefix, hashed_key)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		key.ID, key.OrgID, key.UserID, key.Name, key.KeyPrefix, key.KeyHash,
	).Scan(&key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE org_id = $1 AND revoked_at IS NULL ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW()
		 WHERE id = $1 AND org_id = $2 AND revoked_at IS NULL`, id, orgID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Reference data ---

func (s *PostgresStore) ListEmissionCategories(ctx context.Context) ([]*models.EmissionCategory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, scope_type, created_at FROM emission_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list emission categories: %w", err)
	}
	defer rows.Close()

	categories := []*models.EmissionCategory{}
	for rows.Next() {
		var c models.EmissionCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.ScopeType, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan emission category: %w", err)
		}
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

const factorColumns = `id, name, unit, co2_factor, category_id, created_at`

func scanFactor(row pgx.Row) (*models.EmissionFactor, error) {
	var f models.EmissionFactor
	if err := row.Scan(&f.ID, &f.Name, &f.Unit, &f.CO2Factor, &f.CategoryID, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) ListEmissionFactors(ctx context.Context) ([]*models.EmissionFactor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+factorColumns+` FROM emission_factors ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list emission factors: %w", err)
	}
	defer rows.Close()

	factors := []*models.EmissionFactor{}
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan emission factor: %w", err)
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (s *PostgresStore) GetEmissionFactor(ctx context.Context, id uuid.UUID) (*models.EmissionFactor, error) {
	f, err := scanFactor(s.pool.QueryRow(ctx,
		`SELECT `+factorColumns+` FROM emission_factors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get emission factor: %w", err)
	}
	return f, nil
}

// UpsertEmissionCategory inserts or updates a category keyed by name; c.ID is set to the stored id.
func (s *PostgresStore) UpsertEmissionCategory(ctx context.Context, c *models.EmissionCategory) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO emission_categories (id, name, scope_type) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET scope_type = EXCLUDED.scope_type
		 RETURNING id, created_at`,
		c.ID, c.Name, c.ScopeType,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert emission category: %w", err)
	}
	return nil
}

// UpsertEmissionFactor inserts or updates a factor keyed by name; f.ID is set to the stored id.
// Existing activity entries keep the emissions computed when they were ingested.
func (s *PostgresStore) UpsertEmissionFactor(ctx context.Context, f *models.EmissionFactor) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO emission_factors (id, name, unit, co2_factor, category_id) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET unit = EXCLUDED.unit, co2_factor = EXCLUDED.co2_factor,
		   category_id = EXCLUDED.category_id
		 RETURNING id, created_at`,
		f.ID, f.Name, f.Unit, f.CO2Factor, f.CategoryID,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert emission factor: %w", err)
	}
	return nil
}

// --- Activity Entries ---

// CreateActivityEntry inserts the entry in a single statement; entry.ID and entry.CreatedAt are set from the stored row.
func (s *PostgresStore) CreateActivityEntry(ctx context.Context, entry *models.ActivityEntry) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO activity_entries (org_id, factor_id, activity_value, co2_emissions, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		entry.OrgID, entry.FactorID, entry.ActivityValue, entry.CO2Emissions,
		entry.StartDate.Time, entry.EndDate.Time,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create activity entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivityEntries(ctx context.Context, filter EntryFilter) ([]*models.ActivityEntryDetail, error) {
	// Build WHERE clause dynamically
	conditions := []string{"e.org_id = $1"}
	args := []any{filter.OrgID}
	argIdx := 2

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("e.start_date >= $%d", argIdx))
		args = append(args, filter.From.Time)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("e.end_date <= $%d", argIdx))
		args = append(args, filter.To.Time)
		argIdx++
	}

	query := `SELECT e.id, e.org_id, e.factor_id, e.activity_value, e.co2_emissions, e.start_date, e.end_date, e.created_at,
		  f.name, f.unit, c.scope_type
		 FROM activity_entries e
		 LEFT JOIN emission_factors f ON f.id = e.factor_id
		 LEFT JOIN emission_categories c ON c.id = f.category_id
		 WHERE ` + strings.Join(conditions, " AND ") + `
		 ORDER BY e.created_at, e.id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.ActivityEntryDetail{}
	for rows.Next() {
		var (
			d                models.ActivityEntryDetail
			start, end       time.Time
			factorName, unit *string
			scopeType        *string
		)
		if err := rows.Scan(&d.ID, &d.OrgID, &d.FactorID, &d.ActivityValue, &d.CO2Emissions,
			&start, &end, &d.CreatedAt, &factorName, &unit, &scopeType); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		d.StartDate = models.NewDate(start)
		d.EndDate = models.NewDate(end)
		if factorName != nil {
			d.Factor = &models.EntryFactor{Name: *factorName}
			if unit != nil {
				d.Factor.Unit = *unit
			}
			if scopeType != nil {
				d.Factor.ScopeType = *scopeType
			}
		}
		entries = append(entries, &d)
	}
	return entries, rows.Err()
}

// DeleteActivityEntry removes the entry only when it belongs to orgID and reports the affected row count.
func (s *PostgresStore) DeleteActivityEntry(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM activity_entries WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return 0, fmt.Errorf("delete activity entry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
