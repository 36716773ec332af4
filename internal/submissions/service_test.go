package submissions

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
	mu   sync.Mutex
	subs map[string]*models.Submission // activityID|studentID
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[string]*models.Submission)}
}

func key(activityID uuid.UUID, studentID string) string {
	return activityID.String() + "|" + studentID
}

func (s *fakeStore) UpsertQuiz(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(sub.ActivityID, sub.StudentID)
	if prior, ok := s.subs[k]; ok {
		sub.ID = prior.ID
	} else {
		sub.ID = uuid.New()
	}
	cp := *sub
	s.subs[k] = &cp
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(sub.ActivityID, sub.StudentID)
	if _, ok := s.subs[k]; ok {
		return ErrAlreadySubmitted
	}
	sub.ID = uuid.New()
	cp := *sub
	s.subs[k] = &cp
	return nil
}

func (s *fakeStore) GetByActivityAndStudent(ctx context.Context, activityID uuid.UUID, studentID string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[key(activityID, studentID)]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeStore) ListByActivity(ctx context.Context, activityID uuid.UUID) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Submission
	for _, sub := range s.subs {
		if sub.ActivityID == activityID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *fakeStore) Approve(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ID == id {
			sub.Approved = true
			return nil
		}
	}
	return ErrNotFound
}

type fakeActivities struct {
	byID map[uuid.UUID]*models.Activity
}

func (f *fakeActivities) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *a
	return &cp, nil
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

func newQuiz(active bool) *models.Activity {
	cfg, _ := json.Marshal(models.QuizConfig{Questions: []models.QuizQuestion{
		{Prompt: "q1", Options: []string{"a", "b"}, CorrectIndex: 1, Points: 1},
		{Prompt: "q2", Options: []string{"a", "b"}, CorrectIndex: 0, Points: 1},
	}})
	now := time.Now()
	return &models.Activity{
		ID: uuid.New(), CourseID: uuid.New(), Type: models.ActivityQuiz,
		IsActive: active, HasBeenActivated: true, StartedAt: &now, Config: cfg,
	}
}

func newPoll(allowMultiple bool) *models.Activity {
	cfg, _ := json.Marshal(models.PollConfig{Options: []string{"red", "green", "blue"}, AllowMultiple: allowMultiple})
	return &models.Activity{
		ID: uuid.New(), CourseID: uuid.New(), Type: models.ActivityPoll,
		IsActive: true, HasBeenActivated: true, Config: cfg,
	}
}

func newDiscussion(requireApproval bool) *models.Activity {
	cfg, _ := json.Marshal(models.DiscussionConfig{MaxLength: 20, AllowAnonymous: true, RequireApproval: requireApproval})
	return &models.Activity{
		ID: uuid.New(), CourseID: uuid.New(), Type: models.ActivityDiscussion,
		IsActive: true, HasBeenActivated: true, Config: cfg,
	}
}

func newService(acts ...*models.Activity) (*Service, *fakeStore, *fakeBroadcaster) {
	byID := make(map[uuid.UUID]*models.Activity)
	for _, a := range acts {
		byID[a.ID] = a
	}
	store := newFakeStore()
	bc := &fakeBroadcaster{}
	return NewService(store, &fakeActivities{byID: byID}, bc, nil), store, bc
}

func TestScoreQuiz(t *testing.T) {
	cfg := models.QuizConfig{Questions: []models.QuizQuestion{
		{Options: []string{"a", "b"}, CorrectIndex: 1, Points: 1},
		{Options: []string{"a", "b"}, CorrectIndex: 0, Points: 1},
	}}
	tests := []struct {
		name    string
		answers []int
		want    float64
	}{
		{"all correct", []int{1, 0}, 100},
		{"half correct", []int{1, 1}, 50},
		{"none correct", []int{0, 1}, 0},
		{"unanswered scores nothing", []int{-1, -1}, 0},
		{"partial autosave", []int{1, -1}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreQuiz(cfg, tt.answers); got != tt.want {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreQuizWeighted(t *testing.T) {
	cfg := models.QuizConfig{Questions: []models.QuizQuestion{
		{Options: []string{"a", "b"}, CorrectIndex: 0, Points: 3},
		{Options: []string{"a", "b"}, CorrectIndex: 0, Points: 1},
	}}
	if got := ScoreQuiz(cfg, []int{0, 1}); got != 75 {
		t.Fatalf("score = %v, want 75", got)
	}
}

func TestQuizResubmissionOverwrites(t *testing.T) {
	quiz := newQuiz(true)
	svc, store, bc := newService(quiz)
	ctx := context.Background()

	first, err := svc.SubmitQuiz(ctx, quiz.ID, "S1", []int{1, 0}, 30)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Score != 100 {
		t.Fatalf("score = %v, want 100", first.Score)
	}

	second, err := svc.SubmitQuiz(ctx, quiz.ID, "S1", []int{1, 1}, 60)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Score != 50 {
		t.Fatalf("score = %v, want 50", second.Score)
	}

	subs, _ := store.ListByActivity(ctx, quiz.ID)
	if len(subs) != 1 {
		t.Fatalf("stored rows = %d, want 1 (overwrite, not duplicate)", len(subs))
	}
	if subs[0].Score != 50 {
		t.Fatalf("stored score = %v, want the latest write", subs[0].Score)
	}
	if len(bc.events) != 2 {
		t.Fatalf("broadcasts = %d, want one per accepted write", len(bc.events))
	}
}

func TestQuizValidation(t *testing.T) {
	quiz := newQuiz(true)
	svc, _, _ := newService(quiz)
	ctx := context.Background()

	if _, err := svc.SubmitQuiz(ctx, quiz.ID, "S1", []int{1}, 0); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("size mismatch: got %v, want ErrInvalidPayload", err)
	}
	if _, err := svc.SubmitQuiz(ctx, quiz.ID, "S1", []int{1, 7}, 0); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("answer out of range: got %v, want ErrInvalidPayload", err)
	}
	if _, err := svc.SubmitQuiz(ctx, uuid.New(), "S1", []int{1, 0}, 0); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("unknown activity: got %v, want ErrActivityNotFound", err)
	}
}

func TestQuizToleratesDeactivatedActivity(t *testing.T) {
	quiz := newQuiz(false) // deactivated after being live
	svc, _, _ := newService(quiz)

	// A final autosave racing the deactivation must not be lost.
	if _, err := svc.SubmitQuiz(context.Background(), quiz.ID, "S1", []int{1, 0}, 90); err != nil {
		t.Fatalf("late quiz write: %v", err)
	}

	never := *quiz
	never.ID = uuid.New()
	never.HasBeenActivated = false
	svc2, _, _ := newService(&never)
	if _, err := svc2.SubmitQuiz(context.Background(), never.ID, "S1", []int{1, 0}, 0); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("never-activated quiz: got %v, want ErrNotAccepting", err)
	}
}

func TestPollVoteIsFinal(t *testing.T) {
	poll := newPoll(false)
	svc, _, _ := newService(poll)
	ctx := context.Background()

	if _, err := svc.SubmitPoll(ctx, poll.ID, "S1", []int{0}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := svc.SubmitPoll(ctx, poll.ID, "S1", []int{1}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second vote: got %v, want ErrAlreadySubmitted", err)
	}

	// The first vote is unchanged and the tally reflects only it.
	tally, err := svc.Tally(ctx, poll.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Total != 1 || tally.Counts[0] != 1 || tally.Counts[1] != 0 {
		t.Fatalf("tally = %+v, want one vote for option 0", tally)
	}
}

func TestPollValidation(t *testing.T) {
	single := newPoll(false)
	multi := newPoll(true)
	svc, _, _ := newService(single, multi)
	ctx := context.Background()

	tests := []struct {
		name     string
		pollID   uuid.UUID
		selected []int
		wantErr  error
	}{
		{"no option", single.ID, []int{}, ErrInvalidPayload},
		{"multiple on single-choice", single.ID, []int{0, 1}, ErrInvalidPayload},
		{"option out of range", single.ID, []int{9}, ErrInvalidPayload},
		{"duplicate option", multi.ID, []int{1, 1}, ErrInvalidPayload},
		{"multiple allowed", multi.ID, []int{0, 2}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitPoll(ctx, tt.pollID, "S-"+tt.name, tt.selected)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPollRequiresActiveActivity(t *testing.T) {
	poll := newPoll(false)
	poll.IsActive = false
	svc, _, _ := newService(poll)
	if _, err := svc.SubmitPoll(context.Background(), poll.ID, "S1", []int{0}); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("got %v, want ErrNotAccepting", err)
	}
}

func TestDiscussionModeration(t *testing.T) {
	moderated := newDiscussion(true)
	open := newDiscussion(false)
	svc, _, _ := newService(moderated, open)
	ctx := context.Background()

	pending, err := svc.SubmitDiscussion(ctx, moderated.ID, "S1", "needs review", false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pending.Approved {
		t.Fatal("moderated entry must start pending")
	}

	approved, err := svc.SubmitDiscussion(ctx, open.ID, "S1", "hello", true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !approved.Approved {
		t.Fatal("unmoderated entry must start approved")
	}

	// Pending entries stay out of the public listing until approved.
	public, err := svc.ListDiscussion(ctx, moderated.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(public) != 0 {
		t.Fatalf("public entries = %d, want 0 before approval", len(public))
	}
	if err := svc.Approve(ctx, pending.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	public, _ = svc.ListDiscussion(ctx, moderated.ID, false)
	if len(public) != 1 {
		t.Fatalf("public entries = %d, want 1 after approval", len(public))
	}

	instructor, _ := svc.ListDiscussion(ctx, moderated.ID, true)
	if len(instructor) != 1 {
		t.Fatal("instructor view must include all entries")
	}
}

func TestDiscussionRules(t *testing.T) {
	d := newDiscussion(false)
	svc, _, _ := newService(d)
	ctx := context.Background()

	if _, err := svc.SubmitDiscussion(ctx, d.ID, "S1", "", false); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("empty text: got %v, want ErrInvalidPayload", err)
	}
	if _, err := svc.SubmitDiscussion(ctx, d.ID, "S1", "this text is far too long for the limit", false); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("oversized text: got %v, want ErrInvalidPayload", err)
	}

	anon, err := svc.SubmitDiscussion(ctx, d.ID, "S1", "anon entry", true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !anon.Anonymous {
		t.Fatal("anonymity flag lost")
	}
	if _, err := svc.SubmitDiscussion(ctx, d.ID, "S1", "again", false); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("resubmission: got %v, want ErrAlreadySubmitted", err)
	}

	// Anonymous authors are blanked in the public listing.
	public, _ := svc.ListDiscussion(ctx, d.ID, false)
	if len(public) != 1 || public[0].StudentID != "" {
		t.Fatalf("public listing must blank anonymous authors: %+v", public)
	}
}

func TestDeletedActivityReportsNotFound(t *testing.T) {
	quiz := newQuiz(true)
	svc, _, _ := newService(quiz)
	ctx := context.Background()

	if _, err := svc.SubmitQuiz(ctx, quiz.ID, "S1", []int{1, 0}, 10); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// An activity id the source no longer resolves (deleted, submissions
	// cascade-removed) must report not-found on every read path, never an
	// empty-but-existing list.
	gone := uuid.New()
	if _, err := svc.ListByActivity(ctx, gone); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("list: got %v, want ErrActivityNotFound", err)
	}
	if _, err := svc.Get(ctx, gone, "S1"); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("get: got %v, want ErrActivityNotFound", err)
	}

	// The existing activity still lists normally.
	subs, err := svc.ListByActivity(ctx, quiz.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("list existing: %v, %d entries", err, len(subs))
	}
}

func TestZeroScoreSerializes(t *testing.T) {
	quiz := newQuiz(true)
	svc, _, _ := newService(quiz)

	sub, err := svc.SubmitQuiz(context.Background(), quiz.ID, "S1", []int{0, 1}, 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score != 0 {
		t.Fatalf("score = %v, want 0", sub.Score)
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// An earned 0% is a real result and must survive serialization.
	if _, ok := decoded["score"]; !ok {
		t.Fatalf("score field missing: %s", raw)
	}
	if _, ok := decoded["time_spent_seconds"]; !ok {
		t.Fatalf("time_spent_seconds field missing: %s", raw)
	}
}

func TestNewSubmissionBroadcastOmitsAnswers(t *testing.T) {
	poll := newPoll(false)
	svc, _, bc := newService(poll)

	if _, err := svc.SubmitPoll(context.Background(), poll.ID, "S1", []int{2}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if len(bc.events) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(bc.events))
	}
	ev := bc.events[0]
	if ev.Type != protocol.EventNewSubmission {
		t.Fatalf("event type = %s, want NEW_SUBMISSION", ev.Type)
	}
	payload, ok := ev.Payload.(protocol.NewSubmissionPayload)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if payload.ActivityID != poll.ID || payload.StudentID != "S1" || payload.ActivityType != "poll" {
		t.Fatalf("payload = %+v", payload)
	}
}
