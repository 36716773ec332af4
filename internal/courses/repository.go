// Package courses manages the course catalogue and its rosters: the
// join codes students type, the verification policy each course
// enforces, and the pre-enrolled students a roster-gated course matches
// against.
package courses

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

var (
	ErrNotFound           = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

const uniqueViolation = "23505"

// joinCodeAlphabet omits 0/O/1/I/L so a code read off a projector types
// back unambiguously.
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const joinCodeLength = 6

// Repository handles course and enrollment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a courses repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const courseColumns = `id, instructor_id, name, join_code, verification_policy, created_at, updated_at`

func scanCourse(row pgx.Row, c *models.Course) error {
	return row.Scan(&c.ID, &c.InstructorID, &c.Name, &c.JoinCode, &c.Policy, &c.CreatedAt, &c.UpdatedAt)
}

// Create inserts a course with a freshly generated join code, retrying
// on the unlikely code collision.
func (r *Repository) Create(ctx context.Context, c *models.Course) error {
	const q = `INSERT INTO courses (id, instructor_id, name, join_code, verification_policy)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, join_code, created_at, updated_at`
	for attempt := 0; attempt < 5; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return err
		}
		err = r.pool.QueryRow(ctx, q, c.InstructorID, c.Name, code, c.Policy).
			Scan(&c.ID, &c.JoinCode, &c.CreatedAt, &c.UpdatedAt)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return fmt.Errorf("create course: %w", err)
	}
	return errors.New("could not allocate a unique join code")
}

// GetByID returns a course by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var c models.Course
	err := scanCourse(r.pool.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByJoinCode resolves the code a student typed.
func (r *Repository) GetByJoinCode(ctx context.Context, code string) (*models.Course, error) {
	var c models.Course
	err := scanCourse(r.pool.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE join_code = $1`, code), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetCourseName returns just the display name, for the instructor
// socket greeting.
func (r *Repository) GetCourseName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM courses WHERE id = $1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return name, nil
}

// ListByInstructor returns an instructor's courses, newest first.
func (r *Repository) ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE instructor_id = $1 ORDER BY created_at DESC`,
		instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Course
	for rows.Next() {
		var c models.Course
		if err := scanCourse(rows, &c); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Update renames a course and replaces its verification policy.
func (r *Repository) Update(ctx context.Context, c *models.Course) error {
	const q = `UPDATE courses SET name = $1, verification_policy = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, c.Name, c.Policy, c.ID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a course; activities, submissions and enrollments go
// with it via cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsOwner reports whether the instructor owns the course.
func (r *Repository) IsOwner(ctx context.Context, courseID, instructorID uuid.UUID) (bool, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT instructor_id FROM courses WHERE id = $1`, courseID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return owner == instructorID, nil
}

// AddEnrollment adds or refreshes one roster entry.
func (r *Repository) AddEnrollment(ctx context.Context, e *models.Enrollment) error {
	const q = `INSERT INTO enrollments (course_id, student_id, display_name, email, pin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (course_id, student_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			pin = EXCLUDED.pin
		RETURNING added_at`
	return r.pool.QueryRow(ctx, q, e.CourseID, e.StudentID, e.DisplayName, e.Email, e.PIN).Scan(&e.AddedAt)
}

// GetEnrollment returns one roster entry, nil when the student is not
// enrolled.
func (r *Repository) GetEnrollment(ctx context.Context, courseID uuid.UUID, studentID string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.pool.QueryRow(ctx,
		`SELECT course_id, student_id, display_name, email, pin, added_at
			FROM enrollments WHERE course_id = $1 AND student_id = $2`,
		courseID, studentID).
		Scan(&e.CourseID, &e.StudentID, &e.DisplayName, &e.Email, &e.PIN, &e.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// FindEnrollmentByEmail matches a roster entry by email,
// case-insensitively. Nil when no entry matches.
func (r *Repository) FindEnrollmentByEmail(ctx context.Context, courseID uuid.UUID, email string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.pool.QueryRow(ctx,
		`SELECT course_id, student_id, display_name, email, pin, added_at
			FROM enrollments WHERE course_id = $1 AND LOWER(email) = LOWER($2)`,
		courseID, email).
		Scan(&e.CourseID, &e.StudentID, &e.DisplayName, &e.Email, &e.PIN, &e.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListEnrollments returns the full roster for a course.
func (r *Repository) ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]models.Enrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id, student_id, display_name, email, pin, added_at
			FROM enrollments WHERE course_id = $1 ORDER BY student_id`,
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.CourseID, &e.StudentID, &e.DisplayName, &e.Email, &e.PIN, &e.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// RemoveEnrollment drops one roster entry.
func (r *Repository) RemoveEnrollment(ctx context.Context, courseID uuid.UUID, studentID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

func newJoinCode() (string, error) {
	code := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
