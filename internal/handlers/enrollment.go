package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/middleware"
	"github.com/courseloop/courseloop-backend/internal/repos"
)

type EnrollmentHandler struct {
	log            *logger.Logger
	enrollmentRepo repos.EnrollmentRepo
}

func NewEnrollmentHandler(log *logger.Logger, enrollmentRepo repos.EnrollmentRepo) *EnrollmentHandler {
	return &EnrollmentHandler{
		log:            log.With("handler", "EnrollmentHandler"),
		enrollmentRepo: enrollmentRepo,
	}
}

func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("courseId must be a uuid"))
		return
	}
	enrollment, err := h.enrollmentRepo.GetByUserAndCourse(c.Request.Context(), nil, middleware.UserID(c), courseID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if enrollment == nil {
		RespondError(c, http.StatusNotFound, "enrollment_not_found", fmt.Errorf("no enrollment for course"))
		return
	}
	RespondOK(c, enrollment)
}
