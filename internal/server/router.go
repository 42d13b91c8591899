package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/courseloop/courseloop-backend/internal/handlers"
	"github.com/courseloop/courseloop-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	CourseHandler      *handlers.CourseHandler
	LessonHandler      *handlers.LessonHandler
	QuizHandler        *handlers.QuizHandler
	CertificateHandler *handlers.CertificateHandler
	EnrollmentHandler  *handlers.EnrollmentHandler
	PaymentHandler     *handlers.PaymentHandler
	AdminHandler       *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if env := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); env != "" {
		origins = strings.Split(env, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Admin-Token"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)
	router.POST("/logout", cfg.AuthHandler.Logout)
	router.POST("/api/payments/notify", cfg.PaymentHandler.Notify)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.GET("/courses/:courseId", cfg.CourseHandler.GetCourse)
		api.GET("/courses/:courseId/enrollment", cfg.EnrollmentHandler.GetEnrollment)
		api.POST("/courses/:courseId/checkout", cfg.PaymentHandler.Checkout)
		api.POST("/courses/:courseId/certificate/claim", cfg.CertificateHandler.Claim)
		api.GET("/courses/:courseId/certificate/download", cfg.CertificateHandler.Download)

		api.POST("/lessons/:lessonId/progress", cfg.LessonHandler.RecordProgress)
		api.POST("/lessons/:lessonId/complete", cfg.LessonHandler.MarkComplete)

		api.POST("/quizzes/:quizId/submit", cfg.QuizHandler.Submit)

		api.GET("/jobs/:jobId", cfg.CertificateHandler.JobStatus)
	}

	// Admin
	admin := router.Group("/api/admin")
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/users/:userId/courses/:courseId/progress/reset", cfg.AdminHandler.ResetProgress)
		admin.POST("/certificates/reconcile", cfg.AdminHandler.ReconcileCertificates)
	}

	return router
}
