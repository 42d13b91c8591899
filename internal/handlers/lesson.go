package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/middleware"
	"github.com/courseloop/courseloop-backend/internal/services"
)

type LessonHandler struct {
	log             *logger.Logger
	progressService services.ProgressService
}

func NewLessonHandler(log *logger.Logger, progressService services.ProgressService) *LessonHandler {
	return &LessonHandler{
		log:             log.With("handler", "LessonHandler"),
		progressService: progressService,
	}
}

type lessonProgressRequest struct {
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// RecordProgress accepts one duration ping. The request body carries no
// elapsed time on purpose; the server credits its own fixed interval.
func (h *LessonHandler) RecordProgress(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_lesson_id", fmt.Errorf("lessonId must be a uuid"))
		return
	}
	var req lessonProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.progressService.RecordPing(c.Request.Context(), middleware.UserID(c), req.CourseID, lessonID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *LessonHandler) MarkComplete(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_lesson_id", fmt.Errorf("lessonId must be a uuid"))
		return
	}
	var req lessonProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.progressService.MarkComplete(c.Request.Context(), middleware.UserID(c), req.CourseID, lessonID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
