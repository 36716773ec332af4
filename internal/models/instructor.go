package models

import (
	"time"

	"github.com/google/uuid"
)

// Instructor is an authenticated course owner.
type Instructor struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstructorPublic is the instructor view without credentials.
type InstructorPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic strips credential fields.
func (i *Instructor) ToPublic() InstructorPublic {
	return InstructorPublic{ID: i.ID, Email: i.Email, FullName: i.FullName, CreatedAt: i.CreatedAt}
}
