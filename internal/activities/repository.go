package activities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles activity persistence and implements Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activities repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `id, course_id, type, title, is_active, has_been_activated, started_at, expires_at, config, created_at, updated_at`

func scanActivity(row pgx.Row, a *models.Activity) error {
	return row.Scan(&a.ID, &a.CourseID, &a.Type, &a.Title, &a.IsActive, &a.HasBeenActivated,
		&a.StartedAt, &a.ExpiresAt, &a.Config, &a.CreatedAt, &a.UpdatedAt)
}

// Create inserts a new activity in the Inactive state.
func (r *Repository) Create(ctx context.Context, a *models.Activity) error {
	const q = `INSERT INTO activities (id, course_id, type, title, config, is_active, has_been_activated)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, FALSE, FALSE)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, a.CourseID, a.Type, a.Title, a.Config).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns an activity by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	var a models.Activity
	err := scanActivity(r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id), &a)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListByCourse returns all activities of a course, newest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	return r.list(ctx, `SELECT `+activityColumns+` FROM activities WHERE course_id = $1 ORDER BY created_at DESC`, courseID)
}

// ListActiveByCourse returns the currently active activities of a course.
func (r *Repository) ListActiveByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	return r.list(ctx, `SELECT `+activityColumns+` FROM activities WHERE course_id = $1 AND is_active ORDER BY created_at DESC`, courseID)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.Activity, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := scanActivity(rows, &a); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Update persists title and config edits.
func (r *Repository) Update(ctx context.Context, a *models.Activity) error {
	const q = `UPDATE activities SET title = $2, config = $3, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, a.ID, a.Title, a.Config).Scan(&a.UpdatedAt)
}

// SetActive marks the activity active, permanently flags it as having
// been activated and stamps the activation window.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, startedAt time.Time, expiresAt *time.Time) error {
	const q = `UPDATE activities SET is_active = TRUE, has_been_activated = TRUE,
		started_at = $2, expires_at = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, startedAt, expiresAt)
	return err
}

// SetInactive marks the activity inactive; has_been_activated is never
// reset.
func (r *Repository) SetInactive(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE activities SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// Delete removes the activity; submissions go with it via the foreign key
// cascade, so the removal is atomic.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	return err
}
