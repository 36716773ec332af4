package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission is one student's answer to an activity, unique per
// (activity_id, student_id). Quiz submissions may be overwritten in place
// (autosave); poll and discussion submissions are final once recorded.
type Submission struct {
	ID         uuid.UUID    `json:"id"`
	ActivityID uuid.UUID    `json:"activity_id"`
	StudentID  string       `json:"student_id"`
	Type       ActivityType `json:"type"`

	// Quiz: answer index per question, -1 = unanswered. Score and time
	// spent always serialize; an earned 0% must stay distinguishable
	// from "no score".
	Answers          []int   `json:"answers,omitempty"`
	Score            float64 `json:"score"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`

	// Poll: selected option indices.
	SelectedOptions []int `json:"selected_options,omitempty"`

	// Discussion.
	Text      string `json:"text,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
	Approved  bool   `json:"approved"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// PollTally aggregates accepted poll votes per option index.
type PollTally struct {
	ActivityID uuid.UUID `json:"activity_id"`
	Counts     []int     `json:"counts"`
	Total      int       `json:"total"`
}
