package postgres

import (
	"context"
	"database/sql"

	"mediagate/internal/model"
	"mediagate/internal/repository"
)

// AccountPostgres stores admins and users in PostgreSQL.
type AccountPostgres struct {
	db *sql.DB
}

// NewAccountPostgres creates a new AccountPostgres repository.
func NewAccountPostgres(db *sql.DB) *AccountPostgres {
	return &AccountPostgres{db: db}
}

var _ repository.AccountRepository = (*AccountPostgres)(nil)

// CreateUser inserts a user. A duplicate email surfaces as a pgconn unique violation.
func (r *AccountPostgres) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, created_at
	`
	var out model.User
	if err := r.db.QueryRowContext(ctx, q, u.ID, u.Email, u.PasswordHash, u.CreatedAt).
		Scan(&out.ID, &out.Email, &out.PasswordHash, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindUserByEmail returns sql.ErrNoRows when no user matches.
func (r *AccountPostgres) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	var out model.User
	if err := r.db.QueryRowContext(ctx, q, email).
		Scan(&out.ID, &out.Email, &out.PasswordHash, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountPostgres) CreateAdmin(ctx context.Context, a *model.Admin) (*model.Admin, error) {
	const q = `
		INSERT INTO admins (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, password_hash, role, created_at
	`
	var out model.Admin
	var role string
	if err := r.db.QueryRowContext(ctx, q, a.ID, a.Username, a.PasswordHash, string(a.Role), a.CreatedAt).
		Scan(&out.ID, &out.Username, &out.PasswordHash, &role, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.Role = model.Role(role)
	return &out, nil
}

// FindAdminByUsername returns sql.ErrNoRows when no admin matches.
func (r *AccountPostgres) FindAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	const q = `SELECT id, username, password_hash, role, created_at FROM admins WHERE username = $1`
	var out model.Admin
	var role string
	if err := r.db.QueryRowContext(ctx, q, username).
		Scan(&out.ID, &out.Username, &out.PasswordHash, &role, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.Role = model.Role(role)
	return &out, nil
}

func (r *AccountPostgres) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
