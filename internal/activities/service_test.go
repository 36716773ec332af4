package activities

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/protocol"
)

type fakeStore struct {
	mu         sync.Mutex
	activities map[uuid.UUID]*models.Activity
}

func newFakeStore() *fakeStore {
	return &fakeStore{activities: make(map[uuid.UUID]*models.Activity)}
}

func (s *fakeStore) Create(ctx context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	s.activities[a.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Activity
	for _, a := range s.activities {
		if a.CourseID == courseID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActiveByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Activity, error) {
	all, _ := s.ListByCourse(ctx, courseID)
	var out []models.Activity
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.activities[a.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Title = a.Title
	stored.Config = a.Config
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) SetActive(ctx context.Context, id uuid.UUID, startedAt time.Time, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = true
	a.HasBeenActivated = true
	a.StartedAt = &startedAt
	a.ExpiresAt = expiresAt
	return nil
}

func (s *fakeStore) SetInactive(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = false
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activities, id)
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (b *fakeBroadcaster) Broadcast(courseID uuid.UUID, ev protocol.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) types() []protocol.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.EventType, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

func quizActivity(courseID uuid.UUID, timeLimit int) *models.Activity {
	cfg, _ := json.Marshal(models.QuizConfig{
		Questions: []models.QuizQuestion{
			{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1, Points: 1},
		},
		TimeLimitSeconds: timeLimit,
	})
	return &models.Activity{CourseID: courseID, Type: models.ActivityQuiz, Title: "Quiz", Config: cfg}
}

func pollActivity(courseID uuid.UUID) *models.Activity {
	cfg, _ := json.Marshal(models.PollConfig{Options: []string{"yes", "no"}})
	return &models.Activity{CourseID: courseID, Type: models.ActivityPoll, Title: "Poll", Config: cfg}
}

func TestCreateStartsInactive(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	a := quizActivity(uuid.New(), 0)

	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.IsActive || a.HasBeenActivated {
		t.Fatal("new activity must start inactive and never-activated")
	}
	if got := bc.types(); len(got) != 1 || got[0] != protocol.EventActivityCreated {
		t.Fatalf("broadcasts = %v, want [ACTIVITY_CREATED]", got)
	}
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeBroadcaster{}, nil)
	courseID := uuid.New()

	badQuiz, _ := json.Marshal(models.QuizConfig{Questions: []models.QuizQuestion{
		{Prompt: "?", Options: []string{"a", "b"}, CorrectIndex: 5, Points: 1},
	}})
	tests := []struct {
		name string
		a    *models.Activity
	}{
		{"unknown type", &models.Activity{CourseID: courseID, Type: "debate", Config: []byte(`{}`)}},
		{"quiz without questions", &models.Activity{CourseID: courseID, Type: models.ActivityQuiz, Config: []byte(`{"questions":[]}`)}},
		{"correct index out of range", &models.Activity{CourseID: courseID, Type: models.ActivityQuiz, Config: badQuiz}},
		{"poll with one option", &models.Activity{CourseID: courseID, Type: models.ActivityPoll, Config: []byte(`{"options":["only"]}`)}},
		{"discussion without max length", &models.Activity{CourseID: courseID, Type: models.ActivityDiscussion, Config: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Create(context.Background(), tt.a); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestActivateStampsStartAndExpiry(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	a := quizActivity(uuid.New(), 120)
	_ = svc.Create(context.Background(), a)

	activated, err := svc.Activate(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated.IsActive || !activated.HasBeenActivated {
		t.Fatal("activation must set is_active and has_been_activated")
	}
	if activated.StartedAt == nil {
		t.Fatal("activation must stamp the countdown anchor")
	}
	if activated.ExpiresAt == nil {
		t.Fatal("timed quiz activation must stamp expiry")
	}
	if got := activated.ExpiresAt.Sub(*activated.StartedAt); got != 2*time.Minute {
		t.Fatalf("expiry window = %v, want 2m", got)
	}
}

func TestActivationIsExclusivePerCourse(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	courseID := uuid.New()

	quiz := quizActivity(courseID, 0)
	poll := pollActivity(courseID)
	_ = svc.Create(context.Background(), quiz)
	_ = svc.Create(context.Background(), poll)

	if _, err := svc.Activate(context.Background(), quiz.ID); err != nil {
		t.Fatalf("activate quiz: %v", err)
	}
	if _, err := svc.Activate(context.Background(), poll.ID); err != nil {
		t.Fatalf("activate poll: %v", err)
	}

	stored, _ := store.GetByID(context.Background(), quiz.ID)
	if stored.IsActive {
		t.Fatal("activating the poll must deactivate the quiz")
	}
	if !stored.HasBeenActivated {
		t.Fatal("implicit deactivation must not reset has_been_activated")
	}

	// CREATED, CREATED, UPDATED(quiz), DEACTIVATED(quiz), UPDATED(poll)
	types := bc.types()
	wantTail := []protocol.EventType{protocol.EventActivityUpdated, protocol.EventActivityDeactivated, protocol.EventActivityUpdated}
	if len(types) != 5 {
		t.Fatalf("broadcasts = %v", types)
	}
	for i, want := range wantTail {
		if types[2+i] != want {
			t.Fatalf("broadcast %d = %s, want %s", 2+i, types[2+i], want)
		}
	}
}

func TestDeactivateKeepsActivatedFlag(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	a := pollActivity(uuid.New())
	_ = svc.Create(context.Background(), a)

	if _, err := svc.Deactivate(context.Background(), a.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("deactivating inactive activity: got %v, want ErrNotActive", err)
	}

	_, _ = svc.Activate(context.Background(), a.ID)
	deactivated, err := svc.Deactivate(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.IsActive {
		t.Fatal("deactivation must clear is_active")
	}
	if !deactivated.HasBeenActivated {
		t.Fatal("has_been_activated is permanent")
	}

	// Deactivated activities can be activated again.
	if _, err := svc.Activate(context.Background(), a.ID); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
}

func TestStudentViewHidesAnswerKeysAndDrafts(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	courseID := uuid.New()

	shown := quizActivity(courseID, 0)
	draft := pollActivity(courseID)
	_ = svc.Create(context.Background(), shown)
	_ = svc.Create(context.Background(), draft)
	_, _ = svc.Activate(context.Background(), shown.ID)

	visible, err := svc.ListForStudents(context.Background(), courseID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != shown.ID {
		t.Fatalf("students must only see activated activities, got %d", len(visible))
	}
	cfg, err := visible[0].Quiz()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, q := range cfg.Questions {
		if q.CorrectIndex != -1 {
			t.Fatal("student view must strip quiz answer keys")
		}
	}
}

func TestDeleteBroadcastsReference(t *testing.T) {
	store, bc := newFakeStore(), &fakeBroadcaster{}
	svc := NewService(store, bc, nil)
	a := pollActivity(uuid.New())
	_ = svc.Create(context.Background(), a)

	if err := svc.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: got %v, want ErrNotFound", err)
	}
	types := bc.types()
	if types[len(types)-1] != protocol.EventActivityDeleted {
		t.Fatalf("last broadcast = %s, want ACTIVITY_DELETED", types[len(types)-1])
	}
}
