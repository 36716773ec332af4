package activities

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/response"
)

// CourseAccess checks course ownership for instructor endpoints.
type CourseAccess interface {
	IsOwner(ctx context.Context, courseID, instructorID uuid.UUID) (bool, error)
}

// CreateRequest is the body for POST /courses/:id/activities.
type CreateRequest struct {
	Type   string          `json:"type" binding:"required,oneof=quiz poll discussion"`
	Title  string          `json:"title" binding:"required"`
	Config json.RawMessage `json:"config" binding:"required"`
}

// EditRequest is the body for PATCH /activities/:id.
type EditRequest struct {
	Title  string          `json:"title"`
	Config json.RawMessage `json:"config"`
}

// Handler handles activity HTTP endpoints.
type Handler struct {
	service *Service
	courses CourseAccess
}

// NewHandler creates an activities handler.
func NewHandler(service *Service, courses CourseAccess) *Handler {
	return &Handler{service: service, courses: courses}
}

func (h *Handler) requireOwner(c *gin.Context, courseID uuid.UUID) bool {
	instructorID := c.MustGet(middleware.ContextInstructorID).(uuid.UUID)
	ok, err := h.courses.IsOwner(c.Request.Context(), courseID, instructorID)
	if err != nil || !ok {
		response.Forbidden(c, "only the course instructor can manage activities")
		return false
	}
	return true
}

// Create handles POST /courses/:id/activities (instructor).
func (h *Handler) Create(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	if !h.requireOwner(c, courseID) {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	a := &models.Activity{
		CourseID: courseID,
		Type:     models.ActivityType(req.Type),
		Title:    req.Title,
		Config:   req.Config,
	}
	if err := h.service.Create(c.Request.Context(), a); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, "failed to create activity")
		return
	}
	response.Created(c, a)
}

// ListByCourse handles GET /courses/:id/activities (instructor view).
func (h *Handler) ListByCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	if !h.requireOwner(c, courseID) {
		return
	}
	list, err := h.service.ListForInstructor(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to list activities")
		return
	}
	response.OK(c, gin.H{"activities": list})
}

// ListForStudents handles GET /courses/:id/activities/feed, the
// pull-based refresh students use to reconcile after missed broadcasts.
func (h *Handler) ListForStudents(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	list, err := h.service.ListForStudents(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to list activities")
		return
	}
	response.OK(c, gin.H{"activities": list})
}

// Get handles GET /activities/:id (instructor).
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "activity not found")
		return
	}
	if !h.requireOwner(c, a.CourseID) {
		return
	}
	response.OK(c, a)
}

// GetForStudent handles GET /activities/:id/student: one activity in
// its student shape, for resuming after a reconnect. Drafts that were
// never activated stay invisible.
func (h *Handler) GetForStudent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil || !a.HasBeenActivated {
		response.NotFound(c, "activity not found")
		return
	}
	response.OK(c, a.StudentView())
}

// Activate handles POST /activities/:id/activate (instructor).
func (h *Handler) Activate(c *gin.Context) {
	h.transition(c, h.service.Activate)
}

// Deactivate handles POST /activities/:id/deactivate (instructor).
func (h *Handler) Deactivate(c *gin.Context) {
	h.transition(c, h.service.Deactivate)
}

func (h *Handler) transition(c *gin.Context, op func(context.Context, uuid.UUID) (*models.Activity, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "activity not found")
		return
	}
	if !h.requireOwner(c, a.CourseID) {
		return
	}
	a, err = op(c.Request.Context(), id)
	switch {
	case errors.Is(err, ErrNotActive):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.Internal(c, "failed to update activity state")
	default:
		response.OK(c, a)
	}
}

// Edit handles PATCH /activities/:id (instructor).
func (h *Handler) Edit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "activity not found")
		return
	}
	if !h.requireOwner(c, a.CourseID) {
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err = h.service.Edit(c.Request.Context(), id, req.Title, req.Config)
	switch {
	case errors.Is(err, ErrInvalidConfig):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.Internal(c, "failed to update activity")
	default:
		response.OK(c, a)
	}
}

// Delete handles DELETE /activities/:id (instructor). Submissions are
// cascade-deleted with the activity.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "activity not found")
		return
	}
	if !h.requireOwner(c, a.CourseID) {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete activity")
		return
	}
	response.OK(c, gin.H{"id": id, "deleted": true})
}
