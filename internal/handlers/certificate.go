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

type CertificateHandler struct {
	log                *logger.Logger
	certificateService services.CertificateService
	jobService         services.JobService
}

func NewCertificateHandler(log *logger.Logger, certificateService services.CertificateService, jobService services.JobService) *CertificateHandler {
	return &CertificateHandler{
		log:                log.With("handler", "CertificateHandler"),
		certificateService: certificateService,
		jobService:         jobService,
	}
}

type claimRequest struct {
	Form map[string]string `json:"form"`
}

// Claim returns 202 as soon as the issuance job is queued; issuance
// itself is asynchronous and its outcome is read from the job status.
func (h *CertificateHandler) Claim(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("courseId must be a uuid"))
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.certificateService.ClaimCertificate(c.Request.Context(), middleware.UserID(c), courseID, req.Form)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Download streams the rendered PNG straight from the bucket so a
// learner can fetch their certificate even when no CDN is configured.
func (h *CertificateHandler) Download(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("courseId must be a uuid"))
		return
	}
	rd, err := h.certificateService.OpenCertificate(c.Request.Context(), middleware.UserID(c), courseID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	defer rd.Close()
	c.DataFromReader(http.StatusOK, -1, "image/png", rd, map[string]string{
		"Content-Disposition": `attachment; filename="certificate.png"`,
	})
}

func (h *CertificateHandler) JobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", fmt.Errorf("jobId must be a uuid"))
		return
	}
	job, err := h.jobService.GetByID(c.Request.Context(), middleware.UserID(c), jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job not found"))
		return
	}
	RespondOK(c, job)
}
