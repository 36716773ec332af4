package submissions

import (
	"context"
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

// QuizRequest is the body for POST /activities/:id/submissions with a
// quiz activity.
type QuizRequest struct {
	StudentID        string `json:"student_id" binding:"required"`
	Answers          []int  `json:"answers" binding:"required"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// PollRequest is the body for a poll activity.
type PollRequest struct {
	StudentID       string `json:"student_id" binding:"required"`
	SelectedOptions []int  `json:"selected_options" binding:"required"`
}

// DiscussionRequest is the body for a discussion activity.
type DiscussionRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
	Anonymous bool   `json:"anonymous"`
}

// Handler handles submission HTTP endpoints.
type Handler struct {
	service    *Service
	activities ActivitySource
	courses    CourseAccess
}

// NewHandler creates a submissions handler.
func NewHandler(service *Service, activities ActivitySource, courses CourseAccess) *Handler {
	return &Handler{service: service, activities: activities, courses: courses}
}

// SubmitQuiz handles POST /activities/:id/submissions/quiz.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.service.SubmitQuiz(c.Request.Context(), activityID, req.StudentID, req.Answers, req.TimeSpentSeconds)
	h.respond(c, sub, err)
}

// SubmitPoll handles POST /activities/:id/submissions/poll.
func (h *Handler) SubmitPoll(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	var req PollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.service.SubmitPoll(c.Request.Context(), activityID, req.StudentID, req.SelectedOptions)
	h.respond(c, sub, err)
}

// SubmitDiscussion handles POST /activities/:id/submissions/discussion.
func (h *Handler) SubmitDiscussion(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	var req DiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.service.SubmitDiscussion(c.Request.Context(), activityID, req.StudentID, req.Text, req.Anonymous)
	h.respond(c, sub, err)
}

func (h *Handler) respond(c *gin.Context, sub *models.Submission, err error) {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadySubmitted):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotAccepting), errors.Is(err, ErrWrongType), errors.Is(err, ErrInvalidPayload):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.Internal(c, "failed to record submission")
	default:
		response.Created(c, sub)
	}
}

// GetMine handles GET /activities/:id/submissions/:studentID, the
// pull-based refresh a student uses to resume a quiz or confirm a vote.
func (h *Handler) GetMine(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	sub, err := h.service.Get(c.Request.Context(), activityID, c.Param("studentID"))
	switch {
	case errors.Is(err, ErrActivityNotFound):
		response.NotFound(c, "activity not found")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "no submission recorded")
	case err != nil:
		response.Internal(c, "failed to load submission")
	default:
		response.OK(c, sub)
	}
}

// ListByActivity handles GET /activities/:id/submissions (instructor).
func (h *Handler) ListByActivity(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, activityID) {
		return
	}
	list, err := h.service.ListByActivity(c.Request.Context(), activityID)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			response.NotFound(c, "activity not found")
			return
		}
		response.Internal(c, "failed to list submissions")
		return
	}
	response.OK(c, gin.H{"submissions": list})
}

// Tally handles GET /activities/:id/tally (public poll results).
func (h *Handler) Tally(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	tally, err := h.service.Tally(c.Request.Context(), activityID)
	switch {
	case errors.Is(err, ErrActivityNotFound):
		response.NotFound(c, "activity not found")
	case errors.Is(err, ErrWrongType):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.Internal(c, "failed to compute tally")
	default:
		response.OK(c, tally)
	}
}

// ListDiscussion handles GET /activities/:id/discussion: approved
// entries only, anonymous authors blanked.
func (h *Handler) ListDiscussion(c *gin.Context) {
	activityID, ok := activityID(c)
	if !ok {
		return
	}
	list, err := h.service.ListDiscussion(c.Request.Context(), activityID, false)
	switch {
	case errors.Is(err, ErrActivityNotFound):
		response.NotFound(c, "activity not found")
	case errors.Is(err, ErrWrongType):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.Internal(c, "failed to list discussion")
	default:
		response.OK(c, gin.H{"entries": list})
	}
}

// Approve handles PATCH /submissions/:id/approve (instructor moderation).
func (h *Handler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid submission id")
		return
	}
	if err := h.service.Approve(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "submission not found")
			return
		}
		response.Internal(c, "failed to approve submission")
		return
	}
	response.OK(c, gin.H{"id": id, "approved": true})
}

func (h *Handler) requireOwner(c *gin.Context, actID uuid.UUID) bool {
	a, err := h.activities.GetByID(c.Request.Context(), actID)
	if err != nil {
		response.NotFound(c, "activity not found")
		return false
	}
	instructorID := c.MustGet(middleware.ContextInstructorID).(uuid.UUID)
	ok, err := h.courses.IsOwner(c.Request.Context(), a.CourseID, instructorID)
	if err != nil || !ok {
		response.Forbidden(c, "only the course instructor can view submissions")
		return false
	}
	return true
}

func activityID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return uuid.Nil, false
	}
	return id, true
}
