package courses

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/pkg/response"
)

// CreateRequest is the body for POST /courses.
type CreateRequest struct {
	Name              string `json:"name" binding:"required"`
	Combinations      []int  `json:"combinations" binding:"required,min=1"`
	RequireEnrollment bool   `json:"require_enrollment"`
}

// UpdateRequest is the body for PUT /courses/:id.
type UpdateRequest struct {
	Name              string `json:"name" binding:"required"`
	Combinations      []int  `json:"combinations" binding:"required,min=1"`
	RequireEnrollment bool   `json:"require_enrollment"`
}

// EnrollRequest is the body for one roster entry.
type EnrollRequest struct {
	StudentID   string `json:"student_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PIN         string `json:"pin"`
}

// Handler handles instructor course and roster endpoints.
type Handler struct {
	repo     *Repository
	registry *session.Registry
}

// NewHandler creates a courses handler.
func NewHandler(repo *Repository, registry *session.Registry) *Handler {
	return &Handler{repo: repo, registry: registry}
}

// Create handles POST /courses.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validCombinations(req.Combinations) {
		response.BadRequest(c, "combinations must be non-zero field masks")
		return
	}
	course := &models.Course{
		InstructorID: instructorID(c),
		Name:         req.Name,
		Policy: models.VerificationPolicy{
			Combinations:      req.Combinations,
			RequireEnrollment: req.RequireEnrollment,
		},
	}
	if err := h.repo.Create(c.Request.Context(), course); err != nil {
		response.Internal(c, "failed to create course")
		return
	}
	response.Created(c, course)
}

// List handles GET /courses.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByInstructor(c.Request.Context(), instructorID(c))
	if err != nil {
		response.Internal(c, "failed to list courses")
		return
	}
	response.OK(c, gin.H{"courses": list})
}

// Get handles GET /courses/:id.
func (h *Handler) Get(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	response.OK(c, course)
}

// Update handles PUT /courses/:id.
func (h *Handler) Update(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validCombinations(req.Combinations) {
		response.BadRequest(c, "combinations must be non-zero field masks")
		return
	}
	course.Name = req.Name
	course.Policy = models.VerificationPolicy{
		Combinations:      req.Combinations,
		RequireEnrollment: req.RequireEnrollment,
	}
	if err := h.repo.Update(c.Request.Context(), course); err != nil {
		response.Internal(c, "failed to update course")
		return
	}
	response.OK(c, course)
}

// Delete handles DELETE /courses/:id.
func (h *Handler) Delete(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), course.ID); err != nil {
		response.Internal(c, "failed to delete course")
		return
	}
	response.OK(c, gin.H{"id": course.ID})
}

// Online handles GET /courses/:id/online, the live roster an
// instructor dashboard pulls to resync after a reconnect.
func (h *Handler) Online(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	cs := h.registry.GetOrCreate(course.ID)
	response.OK(c, gin.H{
		"students":     cs.Students(),
		"online_count": cs.OnlineCount(),
	})
}

// Enroll handles POST /courses/:id/enrollments.
func (h *Handler) Enroll(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	entry := &models.Enrollment{
		CourseID:    course.ID,
		StudentID:   req.StudentID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PIN:         req.PIN,
	}
	if err := h.repo.AddEnrollment(c.Request.Context(), entry); err != nil {
		response.Internal(c, "failed to add enrollment")
		return
	}
	response.Created(c, entry)
}

// ListEnrollments handles GET /courses/:id/enrollments.
func (h *Handler) ListEnrollments(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	list, err := h.repo.ListEnrollments(c.Request.Context(), course.ID)
	if err != nil {
		response.Internal(c, "failed to list enrollments")
		return
	}
	response.OK(c, gin.H{"enrollments": list})
}

// RemoveEnrollment handles DELETE /courses/:id/enrollments/:studentID.
func (h *Handler) RemoveEnrollment(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	err := h.repo.RemoveEnrollment(c.Request.Context(), course.ID, c.Param("studentID"))
	switch {
	case errors.Is(err, ErrEnrollmentNotFound):
		response.NotFound(c, "enrollment not found")
	case err != nil:
		response.Internal(c, "failed to remove enrollment")
	default:
		response.OK(c, gin.H{"student_id": c.Param("studentID")})
	}
}

// ownedCourse loads the :id course and enforces ownership.
func (h *Handler) ownedCourse(c *gin.Context) (*models.Course, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return nil, false
	}
	course, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "course not found")
		} else {
			response.Internal(c, "failed to load course")
		}
		return nil, false
	}
	if course.InstructorID != instructorID(c) {
		response.Forbidden(c, "only the course instructor can manage this course")
		return nil, false
	}
	return course, true
}

func instructorID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextInstructorID).(uuid.UUID)
}

func validCombinations(combos []int) bool {
	const all = models.FieldStudentID | models.FieldName | models.FieldEmail | models.FieldPIN
	for _, combo := range combos {
		if combo <= 0 || combo&^all != 0 {
			return false
		}
	}
	return true
}
