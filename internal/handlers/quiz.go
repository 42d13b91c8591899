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

type QuizHandler struct {
	log         *logger.Logger
	quizService services.QuizService
}

func NewQuizHandler(log *logger.Logger, quizService services.QuizService) *QuizHandler {
	return &QuizHandler{
		log:         log.With("handler", "QuizHandler"),
		quizService: quizService,
	}
}

type quizSubmitRequest struct {
	CourseID uuid.UUID `json:"course_id" binding:"required"`
	Answers  []int     `json:"answers" binding:"required"`
}

func (h *QuizHandler) Submit(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_quiz_id", fmt.Errorf("quizId must be a uuid"))
		return
	}
	var req quizSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.quizService.SubmitQuiz(c.Request.Context(), middleware.UserID(c), quizID, services.QuizSubmission{
		CourseID: req.CourseID,
		Answers:  req.Answers,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
