package auth

import (
	"context"
	"errors"
	"strings"

	"frontdesk/db"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrSupervisorNotFound signals that the supervisor does not exist.
	ErrSupervisorNotFound = errors.New("auth: supervisor not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
)

// Repository handles data access for supervisor accounts.
type Repository interface {
	CreateSupervisor(ctx context.Context, params CreateSupervisorParams) (Supervisor, error)
	GetByEmail(ctx context.Context, email string) (Supervisor, error)
	GetByID(ctx context.Context, id string) (Supervisor, error)
}

// CreateSupervisorParams contains write parameters for creating supervisors.
type CreateSupervisorParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

const supervisorColumns = `id::text, email, full_name, password_hash, role, created_at, updated_at`

// CreateSupervisor inserts a supervisor with an already hashed password.
// Emails are stored lowercased so lookups are case-insensitive.
func (r *PGRepository) CreateSupervisor(ctx context.Context, params CreateSupervisorParams) (Supervisor, error) {
	const insertSQL = `
		INSERT INTO supervisors (email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + supervisorColumns

	sup, err := scanSupervisor(r.q.QueryRow(ctx, insertSQL,
		strings.ToLower(params.Email), params.FullName, params.PasswordHash, params.Role))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Supervisor{}, ErrDuplicateEmail
		}
		return Supervisor{}, db.Wrap("auth: create supervisor", err)
	}
	return sup, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Supervisor, error) {
	const selectSQL = `SELECT ` + supervisorColumns + ` FROM supervisors WHERE email = $1`

	sup, err := scanSupervisor(r.q.QueryRow(ctx, selectSQL, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supervisor{}, ErrSupervisorNotFound
		}
		return Supervisor{}, db.Wrap("auth: get supervisor by email", err)
	}
	return sup, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Supervisor, error) {
	const selectSQL = `SELECT ` + supervisorColumns + ` FROM supervisors WHERE id = $1::uuid`

	sup, err := scanSupervisor(r.q.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supervisor{}, ErrSupervisorNotFound
		}
		return Supervisor{}, db.Wrap("auth: get supervisor by id", err)
	}
	return sup, nil
}

func scanSupervisor(row pgx.Row) (Supervisor, error) {
	var sup Supervisor
	err := row.Scan(
		&sup.ID,
		&sup.Email,
		&sup.FullName,
		&sup.PasswordHash,
		&sup.Role,
		&sup.CreatedAt,
		&sup.UpdatedAt,
	)
	if err != nil {
		return Supervisor{}, err
	}
	return sup, nil
}
