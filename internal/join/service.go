// Package join turns a human-entered join code plus identity claims into
// a live, registered student with a session token.
package join

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

var (
	ErrCourseNotFound         = errors.New("course not found")
	ErrInvalidJoinCombination = errors.New("supplied fields do not satisfy the course join policy")
	ErrStudentNotEnrolled     = errors.New("student not found on the course roster")
)

// CourseDirectory resolves join codes and roster entries. Implemented by
// the courses repository; the service never touches the store directly.
type CourseDirectory interface {
	GetByJoinCode(ctx context.Context, code string) (*models.Course, error)
	GetEnrollment(ctx context.Context, courseID uuid.UUID, studentID string) (*models.Enrollment, error)
	FindEnrollmentByEmail(ctx context.Context, courseID uuid.UUID, email string) (*models.Enrollment, error)
}

// Registrar registers a validated student in the course's live session.
type Registrar interface {
	RegisterStudent(courseID uuid.UUID, studentID, displayName string) (string, error)
}

// Request carries the join code and the identity fields the student
// supplied; which subset is required depends on the course policy.
type Request struct {
	JoinCode    string
	StudentID   string
	StudentName string
	Email       string
	PIN         string
}

// fieldMask reports which identity fields were supplied.
func (r Request) fieldMask() int {
	mask := 0
	if strings.TrimSpace(r.StudentID) != "" {
		mask |= models.FieldStudentID
	}
	if strings.TrimSpace(r.StudentName) != "" {
		mask |= models.FieldName
	}
	if strings.TrimSpace(r.Email) != "" {
		mask |= models.FieldEmail
	}
	if strings.TrimSpace(r.PIN) != "" {
		mask |= models.FieldPIN
	}
	return mask
}

// Result is the successful join outcome handed back to the client.
type Result struct {
	Course       models.CourseSummary `json:"course"`
	StudentID    string               `json:"student_id"`
	DisplayName  string               `json:"display_name"`
	SessionToken string               `json:"session_token"`
}

// Service validates join attempts against the course policy and roster.
type Service struct {
	directory CourseDirectory
	registrar Registrar
	logger    *zap.Logger
}

// NewService creates a join service.
func NewService(directory CourseDirectory, registrar Registrar, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{directory: directory, registrar: registrar, logger: logger}
}

// Join validates the request and registers the student. It never
// partially registers: every validation step completes before the session
// registry is touched.
func (s *Service) Join(ctx context.Context, req Request) (*Result, error) {
	course, err := s.directory.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(req.JoinCode)))
	if err != nil || course == nil {
		return nil, ErrCourseNotFound
	}

	combo, ok := course.Policy.Accepts(req.fieldMask())
	if !ok {
		return nil, ErrInvalidJoinCombination
	}

	studentID, displayName, err := s.resolveIdentity(ctx, course, combo, req)
	if err != nil {
		return nil, err
	}

	token, err := s.registrar.RegisterStudent(course.ID, studentID, displayName)
	if err != nil {
		return nil, err
	}

	s.logger.Info("student joined course",
		zap.String("course_id", course.ID.String()),
		zap.String("student_id", studentID))
	return &Result{
		Course:       course.Summary(),
		StudentID:    studentID,
		DisplayName:  displayName,
		SessionToken: token,
	}, nil
}

// resolveIdentity yields the canonical student id and display name,
// matching the roster when the policy demands it.
func (s *Service) resolveIdentity(ctx context.Context, course *models.Course, combo int, req Request) (string, string, error) {
	if !course.Policy.RequireEnrollment {
		studentID := strings.TrimSpace(req.StudentID)
		if studentID == "" {
			studentID = strings.ToLower(strings.TrimSpace(req.Email))
		}
		if studentID == "" {
			studentID = strings.TrimSpace(req.StudentName)
		}
		displayName := strings.TrimSpace(req.StudentName)
		if displayName == "" {
			displayName = studentID
		}
		return studentID, displayName, nil
	}

	var entry *models.Enrollment
	var err error
	switch {
	case combo&models.FieldStudentID != 0:
		entry, err = s.directory.GetEnrollment(ctx, course.ID, strings.TrimSpace(req.StudentID))
	case combo&models.FieldEmail != 0:
		entry, err = s.directory.FindEnrollmentByEmail(ctx, course.ID, strings.ToLower(strings.TrimSpace(req.Email)))
	default:
		// A roster cannot be matched on name or PIN alone.
		return "", "", ErrInvalidJoinCombination
	}
	if err != nil || entry == nil {
		return "", "", ErrStudentNotEnrolled
	}

	if combo&models.FieldEmail != 0 && !strings.EqualFold(strings.TrimSpace(req.Email), entry.Email) {
		return "", "", ErrStudentNotEnrolled
	}
	if combo&models.FieldPIN != 0 && strings.TrimSpace(req.PIN) != entry.PIN {
		return "", "", ErrStudentNotEnrolled
	}

	displayName := entry.DisplayName
	if displayName == "" {
		displayName = strings.TrimSpace(req.StudentName)
	}
	if displayName == "" {
		displayName = entry.StudentID
	}
	return entry.StudentID, displayName, nil
}
