package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityType discriminates the activity payload.
type ActivityType string

const (
	ActivityQuiz       ActivityType = "quiz"
	ActivityPoll       ActivityType = "poll"
	ActivityDiscussion ActivityType = "discussion"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityQuiz, ActivityPoll, ActivityDiscussion:
		return true
	}
	return false
}

// QuizQuestion is one question of a quiz activity.
type QuizQuestion struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
}

// QuizConfig is the type-specific payload of a quiz activity.
type QuizConfig struct {
	Questions        []QuizQuestion `json:"questions"`
	TimeLimitSeconds int            `json:"time_limit_seconds,omitempty"`
}

// MaxPoints returns the maximum attainable score.
func (q QuizConfig) MaxPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// PollConfig is the type-specific payload of a poll activity.
type PollConfig struct {
	Options       []string `json:"options"`
	AllowMultiple bool     `json:"allow_multiple"`
}

// DiscussionConfig is the type-specific payload of a discussion activity.
type DiscussionConfig struct {
	MaxLength       int  `json:"max_length"`
	AllowAnonymous  bool `json:"allow_anonymous"`
	RequireApproval bool `json:"require_approval"`
}

// Activity is one classroom activity. Invariant: IsActive implies
// HasBeenActivated; HasBeenActivated never flips back to false.
type Activity struct {
	ID               uuid.UUID       `json:"id"`
	CourseID         uuid.UUID       `json:"course_id"`
	Type             ActivityType    `json:"type"`
	Title            string          `json:"title"`
	IsActive         bool            `json:"is_active"`
	HasBeenActivated bool            `json:"has_been_activated"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Config           json.RawMessage `json:"config"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Quiz decodes the quiz payload.
func (a *Activity) Quiz() (QuizConfig, error) {
	var cfg QuizConfig
	err := json.Unmarshal(a.Config, &cfg)
	return cfg, err
}

// Poll decodes the poll payload.
func (a *Activity) Poll() (PollConfig, error) {
	var cfg PollConfig
	err := json.Unmarshal(a.Config, &cfg)
	return cfg, err
}

// Discussion decodes the discussion payload.
func (a *Activity) Discussion() (DiscussionConfig, error) {
	var cfg DiscussionConfig
	err := json.Unmarshal(a.Config, &cfg)
	return cfg, err
}

// StudentView returns a copy of the activity with answer keys stripped
// from quiz questions. Non-quiz activities are returned as-is.
func (a *Activity) StudentView() Activity {
	view := *a
	if a.Type != ActivityQuiz {
		return view
	}
	cfg, err := a.Quiz()
	if err != nil {
		return view
	}
	for i := range cfg.Questions {
		cfg.Questions[i].CorrectIndex = -1
	}
	if redacted, err := json.Marshal(cfg); err == nil {
		view.Config = redacted
	}
	return view
}
