package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/shared"
)

const credentialColumns = `id, key, flow, access_token, refresh_token, scopes, expires_at, created_at, updated_at`

// CredentialRepository implements [models.Repository] for [models.Credential] persistence.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential with a generated ID
func (r *CredentialRepository) Create(c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	c.SetID(shared.GenerateID())

	query := `
		INSERT INTO credentials (` + credentialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, c.ID(), c.Key(), c.Flow(), c.AccessToken(), c.RefreshToken(), c.ScopeString(),
		nullTime(c.ExpiresAt()), c.CreatedAt(), c.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// Get retrieves a credential by ID
func (r *CredentialRepository) Get(id string) (*models.Credential, error) {
	row := r.db.QueryRow(`SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialsNotFound, id)
	}
	return c, err
}

// GetByKey retrieves the credential stored under key
func (r *CredentialRepository) GetByKey(ctx context.Context, key string) (*models.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE key = ?`, key)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialsNotFound, key)
	}
	return c, err
}

// Update replaces the token values of an existing credential
func (r *CredentialRepository) Update(c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	c.SetUpdatedAt(now)

	query := `
		UPDATE credentials
		SET flow = ?, access_token = ?, refresh_token = ?, scopes = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query, c.Flow(), c.AccessToken(), c.RefreshToken(), c.ScopeString(),
		nullTime(c.ExpiresAt()), now, c.ID())
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return expectOne(result, c.ID())
}

// Upsert inserts c or, when its key already exists, overwrites the stored token values. The stored ID is kept.
func (r *CredentialRepository) Upsert(ctx context.Context, c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.ID() == "" {
		c.SetID(shared.GenerateID())
	}

	query := `
		INSERT INTO credentials (` + credentialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			flow = excluded.flow,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scopes = excluded.scopes,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, c.ID(), c.Key(), c.Flow(), c.AccessToken(), c.RefreshToken(),
		c.ScopeString(), nullTime(c.ExpiresAt()), c.CreatedAt(), c.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Delete removes a credential by ID
func (r *CredentialRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return expectOne(result, id)
}

// DeleteByKey removes the credential stored under key
func (r *CredentialRepository) DeleteByKey(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return expectOne(result, key)
}

// List retrieves credentials matching the given criteria ("flow", "expired_before"), ordered by key
func (r *CredentialRepository) List(criteria map[string]any) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE 1 = 1`
	args := []any{}

	if flow, ok := criteria["flow"].(string); ok && flow != "" {
		query += " AND flow = ?"
		args = append(args, flow)
	}
	if before, ok := criteria["expired_before"].(time.Time); ok {
		query += " AND expires_at IS NOT NULL AND expires_at < ?"
		args = append(args, before)
	}
	query += " ORDER BY key ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return creds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*models.Credential, error) {
	var (
		id, key, flow, access, refresh, scopes string
		expiresAt                              sql.NullTime
		createdAt, updatedAt                   time.Time
	)

	err := s.Scan(&id, &key, &flow, &access, &refresh, &scopes, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}

	var expires time.Time
	if expiresAt.Valid {
		expires = expiresAt.Time
	}

	c := models.NewCredential(key, flow, access, refresh, strings.Fields(scopes), expires)
	c.SetID(id)
	c.SetCreatedAt(createdAt)
	c.SetUpdatedAt(updatedAt)
	return c, nil
}

func expectOne(result sql.Result, ref string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialsNotFound, ref)
	}
	return nil
}

// CredentialStore implements auth.Store on top of a [CredentialRepository].
type CredentialStore struct {
	repo *CredentialRepository
	flow string
}

// NewCredentialStore creates a store recording flow alongside every saved token
func NewCredentialStore(repo *CredentialRepository, flow string) *CredentialStore {
	return &CredentialStore{repo: repo, flow: flow}
}

func (s *CredentialStore) Load(ctx context.Context, key string) (*auth.Token, error) {
	c, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return tokenFromCredential(c), nil
}

func (s *CredentialStore) Save(ctx context.Context, key string, tok *auth.Token) error {
	return s.repo.Upsert(ctx, credentialFromToken(key, s.flow, tok))
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteByKey(ctx, key)
}
