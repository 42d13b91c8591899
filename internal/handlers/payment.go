package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/middleware"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/services"
)

type PaymentHandler struct {
	log            *logger.Logger
	paymentService services.PaymentService
	userRepo       repos.UserRepo
}

func NewPaymentHandler(log *logger.Logger, paymentService services.PaymentService, userRepo repos.UserRepo) *PaymentHandler {
	return &PaymentHandler{
		log:            log.With("handler", "PaymentHandler"),
		paymentService: paymentService,
		userRepo:       userRepo,
	}
}

type checkoutRequest struct {
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	CourseName string `json:"course_name" binding:"required"`
}

func (h *PaymentHandler) Checkout(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("courseId must be a uuid"))
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	user, err := h.userRepo.GetByID(c.Request.Context(), nil, middleware.UserID(c))
	if err != nil || user == nil {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("user not found"))
		return
	}
	result, err := h.paymentService.CreateCheckout(c.Request.Context(), user, courseID, req.Amount, req.CourseName)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// Notify is the unauthenticated gateway webhook. The handler trusts
// nothing in it beyond the order id and re-reads state.
func (h *PaymentHandler) Notify(c *gin.Context) {
	var notif services.PaymentNotification
	if err := c.ShouldBindJSON(&notif); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.paymentService.HandleNotification(c.Request.Context(), notif); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok"})
}
