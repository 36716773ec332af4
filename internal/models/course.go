package models

import (
	"time"

	"github.com/google/uuid"
)

// Join verification fields, combined as a bitmask in a course policy.
const (
	FieldStudentID = 1 << 0
	FieldName      = 1 << 1
	FieldEmail     = 1 << 2
	FieldPIN       = 1 << 3
)

// VerificationPolicy declares which identity field combinations a course
// accepts on join, e.g. {combinations: [1, 6]} for "Student ID alone" or
// "Name + Email". RequireEnrollment additionally demands a roster match.
type VerificationPolicy struct {
	Combinations      []int `json:"combinations"`
	RequireEnrollment bool  `json:"require_enrollment"`
}

// Accepts reports whether the supplied field mask covers at least one
// declared combination, returning the matched combination.
func (p VerificationPolicy) Accepts(supplied int) (int, bool) {
	for _, combo := range p.Combinations {
		if combo != 0 && supplied&combo == combo {
			return combo, true
		}
	}
	return 0, false
}

// Course is a course owned by one instructor, joinable via its code.
type Course struct {
	ID           uuid.UUID          `json:"id"`
	InstructorID uuid.UUID          `json:"instructor_id"`
	Name         string             `json:"name"`
	JoinCode     string             `json:"join_code"`
	Policy       VerificationPolicy `json:"verification_policy"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Summary returns the student-facing view handed out on join.
func (c *Course) Summary() CourseSummary {
	return CourseSummary{ID: c.ID, Name: c.Name, JoinCode: c.JoinCode}
}

// CourseSummary is the public course view.
type CourseSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	JoinCode string    `json:"join_code"`
}

// Enrollment is one pre-enrolled roster entry.
type Enrollment struct {
	CourseID    uuid.UUID `json:"course_id"`
	StudentID   string    `json:"student_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	PIN         string    `json:"-"`
	AddedAt     time.Time `json:"added_at"`
}
