// Package activities governs the activity lifecycle: Inactive → Active →
// Deactivated (re-activatable), with deletion as the absorbing state that
// cascades submissions. Every transition is announced on the course's
// live session.
package activities

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
	ErrNotFound      = errors.New("activity not found")
	ErrNotActive     = errors.New("activity is not active")
	ErrInvalidConfig = errors.New("invalid activity configuration")
)

// Store is the persistence boundary the lifecycle consumes. Implemented
// by the pgx repository.
type Store interface {
	Create(ctx context.Context, a *models.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error)
	ListActiveByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error)
	Update(ctx context.Context, a *models.Activity) error
	SetActive(ctx context.Context, id uuid.UUID, startedAt time.Time, expiresAt *time.Time) error
	SetInactive(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Broadcaster fans lifecycle events out to the course's live session.
type Broadcaster interface {
	Broadcast(courseID uuid.UUID, ev protocol.Event)
}

// Service implements the activity state machine over the store.
type Service struct {
	store     Store
	broadcast Broadcaster
	logger    *zap.Logger
}

// NewService creates an activities service.
func NewService(store Store, broadcast Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, broadcast: broadcast, logger: logger}
}

// Create persists a new activity in the Inactive state and broadcasts
// ACTIVITY_CREATED with the student-safe view.
func (s *Service) Create(ctx context.Context, a *models.Activity) error {
	if err := validateConfig(a); err != nil {
		return err
	}
	a.IsActive = false
	a.HasBeenActivated = false
	if err := s.store.Create(ctx, a); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	s.broadcast.Broadcast(a.CourseID, protocol.ActivityCreated(a.StudentView()))
	s.logger.Info("activity created",
		zap.String("activity_id", a.ID.String()),
		zap.String("course_id", a.CourseID.String()),
		zap.String("type", string(a.Type)))
	return nil
}

// Activate transitions Inactive/Deactivated → Active. It stamps the start
// time that anchors the client-side quiz countdown, permanently sets
// has_been_activated, and deactivates any other active activity in the
// course first: clients assume a single current activity.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if a.IsActive {
		return a, nil
	}

	active, err := s.store.ListActiveByCourse(ctx, a.CourseID)
	if err != nil {
		return nil, fmt.Errorf("list active activities: %w", err)
	}
	for _, other := range active {
		if err := s.store.SetInactive(ctx, other.ID); err != nil {
			return nil, fmt.Errorf("deactivate %s: %w", other.ID, err)
		}
		s.broadcast.Broadcast(a.CourseID, protocol.ActivityDeactivated(other.ID))
	}

	startedAt := time.Now()
	var expiresAt *time.Time
	if a.Type == models.ActivityQuiz {
		if cfg, err := a.Quiz(); err == nil && cfg.TimeLimitSeconds > 0 {
			t := startedAt.Add(time.Duration(cfg.TimeLimitSeconds) * time.Second)
			expiresAt = &t
		}
	}
	if err := s.store.SetActive(ctx, id, startedAt, expiresAt); err != nil {
		return nil, fmt.Errorf("activate activity: %w", err)
	}
	a.IsActive = true
	a.HasBeenActivated = true
	a.StartedAt = &startedAt
	a.ExpiresAt = expiresAt

	s.broadcast.Broadcast(a.CourseID, protocol.ActivityUpdated(a.StudentView()))
	s.logger.Info("activity activated", zap.String("activity_id", id.String()))
	return a, nil
}

// Deactivate transitions Active → Deactivated. has_been_activated stays
// set; the activity may be activated again later.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !a.IsActive {
		return nil, ErrNotActive
	}
	if err := s.store.SetInactive(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivate activity: %w", err)
	}
	a.IsActive = false

	s.broadcast.Broadcast(a.CourseID, protocol.ActivityDeactivated(id))
	s.logger.Info("activity deactivated", zap.String("activity_id", id.String()))
	return a, nil
}

// Edit applies non-state-affecting changes (title, config) and broadcasts
// ACTIVITY_UPDATED.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, title string, config []byte) (*models.Activity, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if title != "" {
		a.Title = title
	}
	if len(config) > 0 {
		a.Config = config
		if err := validateConfig(a); err != nil {
			return nil, err
		}
	}
	if err := s.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	s.broadcast.Broadcast(a.CourseID, protocol.ActivityUpdated(a.StudentView()))
	return a, nil
}

// Delete removes the activity and, by cascade, all of its submissions,
// then broadcasts ACTIVITY_DELETED.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	s.broadcast.Broadcast(a.CourseID, protocol.ActivityDeleted(id))
	s.logger.Info("activity deleted",
		zap.String("activity_id", id.String()),
		zap.Bool("had_been_activated", a.HasBeenActivated))
	return nil
}

// Get returns one activity.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// ListForInstructor returns all of a course's activities.
func (s *Service) ListForInstructor(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	return s.store.ListByCourse(ctx, courseID)
}

// ListForStudents returns the activities a student may see: those that
// have been activated at least once, with quiz answer keys stripped.
func (s *Service) ListForStudents(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	all, err := s.store.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	visible := make([]models.Activity, 0, len(all))
	for i := range all {
		if all[i].HasBeenActivated {
			visible = append(visible, all[i].StudentView())
		}
	}
	return visible, nil
}

func validateConfig(a *models.Activity) error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, a.Type)
	}
	switch a.Type {
	case models.ActivityQuiz:
		cfg, err := a.Quiz()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if len(cfg.Questions) == 0 {
			return fmt.Errorf("%w: quiz needs at least one question", ErrInvalidConfig)
		}
		for i, q := range cfg.Questions {
			if len(q.Options) < 2 {
				return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidConfig, i)
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				return fmt.Errorf("%w: question %d correct index out of range", ErrInvalidConfig, i)
			}
			if q.Points <= 0 {
				return fmt.Errorf("%w: question %d needs positive points", ErrInvalidConfig, i)
			}
		}
	case models.ActivityPoll:
		cfg, err := a.Poll()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if len(cfg.Options) < 2 {
			return fmt.Errorf("%w: poll needs at least two options", ErrInvalidConfig)
		}
	case models.ActivityDiscussion:
		cfg, err := a.Discussion()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if cfg.MaxLength <= 0 {
			return fmt.Errorf("%w: discussion needs a positive max length", ErrInvalidConfig)
		}
	}
	return nil
}
