package join

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/pkg/response"
)

// JoinRequest is the body for POST /join.
type JoinRequest struct {
	JoinCode    string `json:"join_code" binding:"required"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Email       string `json:"email"`
	PIN         string `json:"pin"`
}

// Handler handles the public join handshake.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a join handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Join handles POST /join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.service.Join(c.Request.Context(), Request{
		JoinCode:    req.JoinCode,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		Email:       req.Email,
		PIN:         req.PIN,
	})
	switch {
	case errors.Is(err, ErrCourseNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidJoinCombination):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrStudentNotEnrolled):
		response.Forbidden(c, err.Error())
	case err != nil:
		h.logger.Error("join failed", zap.Error(err))
		response.Internal(c, "failed to join course")
	default:
		response.OK(c, result)
	}
}
