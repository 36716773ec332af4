// Package submissions accepts student answers exactly once per activity
// (with quiz autosave as the deliberate exception), computes derived
// scores and tallies, and announces accepted submissions on the course's
// live session.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/protocol"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrNotAccepting     = errors.New("activity is not accepting submissions")
	ErrAlreadySubmitted = errors.New("submission already recorded for this activity")
	ErrWrongType        = errors.New("submission does not match the activity type")
	ErrInvalidPayload   = errors.New("invalid submission payload")
	ErrNotFound         = errors.New("submission not found")
)

// Store is the persistence boundary. Insert must fail with
// ErrAlreadySubmitted when the (activity, student) pair exists, so a race
// between two tabs resolves as first write wins.
type Store interface {
	UpsertQuiz(ctx context.Context, sub *models.Submission) error
	Insert(ctx context.Context, sub *models.Submission) error
	GetByActivityAndStudent(ctx context.Context, activityID uuid.UUID, studentID string) (*models.Submission, error)
	ListByActivity(ctx context.Context, activityID uuid.UUID) ([]models.Submission, error)
	Approve(ctx context.Context, id uuid.UUID) error
}

// ActivitySource resolves the activity a submission targets.
type ActivitySource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
}

// Broadcaster announces accepted submissions to the course session.
type Broadcaster interface {
	Broadcast(courseID uuid.UUID, ev protocol.Event)
}

// Service enforces the acceptance rules per activity type.
type Service struct {
	store      Store
	activities ActivitySource
	broadcast  Broadcaster
	logger     *zap.Logger
}

// NewService creates a submissions service.
func NewService(store Store, activities ActivitySource, broadcast Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, activities: activities, broadcast: broadcast, logger: logger}
}

// SubmitQuiz records or overwrites a student's quiz answers. Overwriting
// supports incremental autosave while the student answers and a final
// authoritative write at time-up; the stored score always reflects the
// latest answers. Late writes after expiry are tolerated so an in-flight
// final save is never lost.
func (s *Service) SubmitQuiz(ctx context.Context, activityID uuid.UUID, studentID string, answers []int, timeSpentSeconds int) (*models.Submission, error) {
	a, cfg, err := s.quizActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !a.HasBeenActivated {
		return nil, ErrNotAccepting
	}
	if len(answers) != len(cfg.Questions) {
		return nil, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidPayload, len(answers), len(cfg.Questions))
	}
	for i, ans := range answers {
		if ans < -1 || ans >= len(cfg.Questions[i].Options) {
			return nil, fmt.Errorf("%w: answer %d out of range", ErrInvalidPayload, i)
		}
	}

	sub := &models.Submission{
		ActivityID:       activityID,
		StudentID:        studentID,
		Type:             models.ActivityQuiz,
		Answers:          answers,
		Score:            ScoreQuiz(cfg, answers),
		TimeSpentSeconds: timeSpentSeconds,
		Approved:         true,
		SubmittedAt:      time.Now(),
	}
	if err := s.store.UpsertQuiz(ctx, sub); err != nil {
		return nil, fmt.Errorf("store quiz submission: %w", err)
	}
	s.announce(a, sub)
	return sub, nil
}

// SubmitPoll records a student's vote. A vote, once cast, is final: a
// second attempt is rejected and the first vote is left unchanged.
func (s *Service) SubmitPoll(ctx context.Context, activityID uuid.UUID, studentID string, selected []int) (*models.Submission, error) {
	a, err := s.activityOfType(ctx, activityID, models.ActivityPoll)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrNotAccepting
	}
	cfg, err := a.Poll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no option selected", ErrInvalidPayload)
	}
	if !cfg.AllowMultiple && len(selected) > 1 {
		return nil, fmt.Errorf("%w: poll allows a single option", ErrInvalidPayload)
	}
	seen := make(map[int]struct{}, len(selected))
	for _, opt := range selected {
		if opt < 0 || opt >= len(cfg.Options) {
			return nil, fmt.Errorf("%w: option %d out of range", ErrInvalidPayload, opt)
		}
		if _, dup := seen[opt]; dup {
			return nil, fmt.Errorf("%w: option %d selected twice", ErrInvalidPayload, opt)
		}
		seen[opt] = struct{}{}
	}

	sub := &models.Submission{
		ActivityID:      activityID,
		StudentID:       studentID,
		Type:            models.ActivityPoll,
		SelectedOptions: selected,
		Approved:        true,
		SubmittedAt:     time.Now(),
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("store poll submission: %w", err)
	}
	s.announce(a, sub)
	return sub, nil
}

// SubmitDiscussion records a student's discussion entry, once. When the
// activity requires moderation the entry starts pending and stays out of
// the public listing until an instructor approves it.
func (s *Service) SubmitDiscussion(ctx context.Context, activityID uuid.UUID, studentID, text string, anonymous bool) (*models.Submission, error) {
	a, err := s.activityOfType(ctx, activityID, models.ActivityDiscussion)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrNotAccepting
	}
	cfg, err := a.Discussion()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidPayload)
	}
	if len([]rune(text)) > cfg.MaxLength {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidPayload, cfg.MaxLength)
	}
	if anonymous && !cfg.AllowAnonymous {
		anonymous = false
	}

	sub := &models.Submission{
		ActivityID:  activityID,
		StudentID:   studentID,
		Type:        models.ActivityDiscussion,
		Text:        text,
		Anonymous:   anonymous,
		Approved:    !cfg.RequireApproval,
		SubmittedAt: time.Now(),
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("store discussion submission: %w", err)
	}
	s.announce(a, sub)
	return sub, nil
}

// Get returns one student's submission for an activity.
func (s *Service) Get(ctx context.Context, activityID uuid.UUID, studentID string) (*models.Submission, error) {
	if _, err := s.activities.GetByID(ctx, activityID); err != nil {
		return nil, ErrActivityNotFound
	}
	sub, err := s.store.GetByActivityAndStudent(ctx, activityID, studentID)
	if err != nil || sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

// ListByActivity returns all submissions for an activity (instructor
// view, pending entries included). Querying a deleted activity reports
// not-found rather than an empty list.
func (s *Service) ListByActivity(ctx context.Context, activityID uuid.UUID) ([]models.Submission, error) {
	if _, err := s.activities.GetByID(ctx, activityID); err != nil {
		return nil, ErrActivityNotFound
	}
	return s.store.ListByActivity(ctx, activityID)
}

// Tally aggregates accepted poll votes per option index.
func (s *Service) Tally(ctx context.Context, activityID uuid.UUID) (*models.PollTally, error) {
	a, err := s.activityOfType(ctx, activityID, models.ActivityPoll)
	if err != nil {
		return nil, err
	}
	cfg, err := a.Poll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	subs, err := s.store.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	tally := &models.PollTally{ActivityID: activityID, Counts: make([]int, len(cfg.Options))}
	for _, sub := range subs {
		tally.Total++
		for _, opt := range sub.SelectedOptions {
			if opt >= 0 && opt < len(tally.Counts) {
				tally.Counts[opt]++
			}
		}
	}
	return tally, nil
}

// ListDiscussion returns discussion entries. The public view hides
// pending entries and blanks the author of anonymous ones; instructors
// see everything.
func (s *Service) ListDiscussion(ctx context.Context, activityID uuid.UUID, instructorView bool) ([]models.Submission, error) {
	if _, err := s.activityOfType(ctx, activityID, models.ActivityDiscussion); err != nil {
		return nil, err
	}
	subs, err := s.store.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if instructorView {
		return subs, nil
	}
	visible := make([]models.Submission, 0, len(subs))
	for _, sub := range subs {
		if !sub.Approved {
			continue
		}
		if sub.Anonymous {
			sub.StudentID = ""
		}
		visible = append(visible, sub)
	}
	return visible, nil
}

// Approve marks a pending discussion entry as approved (instructor
// moderation).
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.store.Approve(ctx, id)
}

func (s *Service) announce(a *models.Activity, sub *models.Submission) {
	s.broadcast.Broadcast(a.CourseID, protocol.NewSubmission(sub.ActivityID, sub.StudentID, string(sub.Type), sub.SubmittedAt))
	s.logger.Info("submission accepted",
		zap.String("activity_id", sub.ActivityID.String()),
		zap.String("student_id", sub.StudentID),
		zap.String("type", string(sub.Type)))
}

func (s *Service) activityOfType(ctx context.Context, activityID uuid.UUID, want models.ActivityType) (*models.Activity, error) {
	a, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, ErrActivityNotFound
	}
	if a.Type != want {
		return nil, ErrWrongType
	}
	return a, nil
}

func (s *Service) quizActivity(ctx context.Context, activityID uuid.UUID) (*models.Activity, models.QuizConfig, error) {
	a, err := s.activityOfType(ctx, activityID, models.ActivityQuiz)
	if err != nil {
		return nil, models.QuizConfig{}, err
	}
	cfg, err := a.Quiz()
	if err != nil {
		return nil, models.QuizConfig{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return a, cfg, nil
}
