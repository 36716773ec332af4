package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles instructor persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const instructorColumns = `id, email, password_hash, full_name, created_at, updated_at`

// GetByID returns an instructor by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Instructor, error) {
	var i models.Instructor
	err := r.pool.QueryRow(ctx,
		`SELECT `+instructorColumns+` FROM instructors WHERE id = $1`, id).
		Scan(&i.ID, &i.Email, &i.Password, &i.FullName, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByEmail returns an instructor by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Instructor, error) {
	var i models.Instructor
	err := r.pool.QueryRow(ctx,
		`SELECT `+instructorColumns+` FROM instructors WHERE email = $1`, email).
		Scan(&i.ID, &i.Email, &i.Password, &i.FullName, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Create inserts a new instructor.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string) (*models.Instructor, error) {
	const q = `INSERT INTO instructors (id, email, password_hash, full_name)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING ` + instructorColumns
	var i models.Instructor
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName).
		Scan(&i.ID, &i.Email, &i.Password, &i.FullName, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
