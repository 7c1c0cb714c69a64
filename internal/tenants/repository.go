package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asiria/asiriapos/internal/platform/db"
)

// Repository is the tenant persistence port.
type Repository interface {
	Create(ctx context.Context, account UserClient) (UserClient, error)
	GetByID(ctx context.Context, id uuid.UUID) (UserClient, error)
	GetByUsername(ctx context.Context, username string) (UserClient, error)
	UpdateProfile(ctx context.Context, account UserClient) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed tenant repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, username, business_name, COALESCE(email, ''), password_hash, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (UserClient, error) {
	var a UserClient
	err := row.Scan(&a.ID, &a.Username, &a.BusinessName, &a.Email, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserClient{}, ErrNotFound
	}
	return a, err
}

func (r *repository) Create(ctx context.Context, account UserClient) (UserClient, error) {
	account.ID = uuid.New()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_clients (id, username, business_name, email, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, TRUE, $6, $6)`,
		account.ID, account.Username, account.BusinessName, account.Email, account.PasswordHash, now,
	)
	if db.IsUniqueViolation(err) {
		return UserClient{}, ErrDuplicateUsername
	}
	if err != nil {
		return UserClient{}, err
	}
	account.IsActive = true
	account.CreatedAt = now
	account.UpdatedAt = now
	return account, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (UserClient, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM user_clients WHERE id = $1`, id))
}

func (r *repository) GetByUsername(ctx context.Context, username string) (UserClient, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM user_clients WHERE username = $1`, username))
}

func (r *repository) UpdateProfile(ctx context.Context, account UserClient) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_clients SET business_name = $1, email = NULLIF($2, ''), updated_at = NOW() WHERE id = $3`,
		account.BusinessName, account.Email, account.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_clients SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_clients SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
