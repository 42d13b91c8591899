package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/services"
)

type AdminHandler struct {
	log                *logger.Logger
	progressService    services.ProgressService
	certificateService services.CertificateService
}

func NewAdminHandler(log *logger.Logger, progressService services.ProgressService, certificateService services.CertificateService) *AdminHandler {
	return &AdminHandler{
		log:                log.With("handler", "AdminHandler"),
		progressService:    progressService,
		certificateService: certificateService,
	}
}

func (h *AdminHandler) ResetProgress(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("userId must be a uuid"))
		return
	}
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("courseId must be a uuid"))
		return
	}
	if err := h.progressService.ResetCourseProgress(c.Request.Context(), userID, courseID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "reset"})
}

func (h *AdminHandler) ReconcileCertificates(c *gin.Context) {
	result, err := h.certificateService.EnqueueReconcile(c.Request.Context(), uuid.Nil)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}
