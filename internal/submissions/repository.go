package submissions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// Repository handles submission persistence and implements Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a submissions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const submissionColumns = `id, activity_id, student_id, type, answers, score, time_spent_seconds,
	selected_options, text, anonymous, approved, submitted_at`

func scanSubmission(row pgx.Row, s *models.Submission) error {
	return row.Scan(&s.ID, &s.ActivityID, &s.StudentID, &s.Type, &s.Answers, &s.Score, &s.TimeSpentSeconds,
		&s.SelectedOptions, &s.Text, &s.Anonymous, &s.Approved, &s.SubmittedAt)
}

// UpsertQuiz writes a quiz submission, overwriting any prior record for
// the same (activity, student) pair: last write wins, no duplicate rows.
func (r *Repository) UpsertQuiz(ctx context.Context, s *models.Submission) error {
	const q = `INSERT INTO submissions (id, activity_id, student_id, type, answers, score, time_spent_seconds, approved, submitted_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (activity_id, student_id) DO UPDATE SET
			answers = EXCLUDED.answers,
			score = EXCLUDED.score,
			time_spent_seconds = EXCLUDED.time_spent_seconds,
			submitted_at = EXCLUDED.submitted_at
		RETURNING id`
	return r.pool.QueryRow(ctx, q, s.ActivityID, s.StudentID, s.Type, s.Answers, s.Score, s.TimeSpentSeconds, s.SubmittedAt).
		Scan(&s.ID)
}

// Insert writes a poll or discussion submission. The unique constraint on
// (activity_id, student_id) makes the first write win; a duplicate maps
// to ErrAlreadySubmitted.
func (r *Repository) Insert(ctx context.Context, s *models.Submission) error {
	const q = `INSERT INTO submissions (id, activity_id, student_id, type, selected_options, text, anonymous, approved, submitted_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.pool.QueryRow(ctx, q, s.ActivityID, s.StudentID, s.Type, s.SelectedOptions, s.Text, s.Anonymous, s.Approved, s.SubmittedAt).
		Scan(&s.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadySubmitted
		}
		return err
	}
	return nil
}

// GetByActivityAndStudent returns one student's submission, nil when none
// exists.
func (r *Repository) GetByActivityAndStudent(ctx context.Context, activityID uuid.UUID, studentID string) (*models.Submission, error) {
	var s models.Submission
	err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE activity_id = $1 AND student_id = $2`,
		activityID, studentID), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByActivity returns all submissions for an activity, oldest first.
func (r *Repository) ListByActivity(ctx context.Context, activityID uuid.UUID) ([]models.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE activity_id = $1 ORDER BY submitted_at`,
		activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := scanSubmission(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Approve marks a discussion entry approved.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE submissions SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
