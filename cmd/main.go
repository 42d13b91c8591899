package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	redisclient "github.com/courseloop/courseloop-backend/internal/clients/redis"
	"github.com/courseloop/courseloop-backend/internal/clients/sendgrid"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/db"
	"github.com/courseloop/courseloop-backend/internal/handlers"
	"github.com/courseloop/courseloop-backend/internal/jobs/pipeline/certificate_issue"
	"github.com/courseloop/courseloop-backend/internal/jobs/pipeline/certificate_reconcile"
	"github.com/courseloop/courseloop-backend/internal/jobs/runtime"
	"github.com/courseloop/courseloop-backend/internal/jobs/worker"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/middleware"
	"github.com/courseloop/courseloop-backend/internal/observability"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/server"
	"github.com/courseloop/courseloop-backend/internal/services"
	"github.com/courseloop/courseloop-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	midtransServerKey := utils.GetEnv("MIDTRANS_SERVER_KEY", "", log)
	midtransProduction := utils.GetEnvAsBool("MIDTRANS_PRODUCTION", false, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Clients
	log.Info("Setting up clients from main...")
	cache, err := redisclient.NewCache(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	cmsClient, err := cms.New(log, cms.ConfigFromEnv())
	if err != nil {
		log.Fatal("CMS client init failed", "error", err)
	}
	resolver := cms.NewResolver(log, cmsClient, cache, cms.DefaultLayoutTTL)
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Fatal("Bucket service init failed", "error", err)
	}
	sendgridClient, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Fatal("SendGrid client init failed", "error", err)
	}
	certCfg, err := certificates.LoadConfigFromEnv()
	if err != nil {
		log.Fatal("Certificate config load failed", "error", err)
	}
	renderer, err := certificates.NewRenderer(log, certCfg)
	if err != nil {
		log.Fatal("Certificate renderer init failed", "error", err)
	}
	reporter := observability.NewReporter(log)

	// Repos
	log.Info("Setting up repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	enrollmentRepo := repos.NewEnrollmentRepo(thePG, log)
	lessonProgressRepo := repos.NewLessonProgressRepo(thePG, log)
	quizProgressRepo := repos.NewQuizProgressRepo(thePG, log)
	allocationRepo := repos.NewCertificateAllocationRepo(thePG, log)
	formRepo := repos.NewCertificateFormRepo(thePG, log)
	paymentRepo := repos.NewPaymentRepo(thePG, log)
	jobRunRepo := repos.NewJobRunRepo(thePG, log)

	// Services
	log.Info("Setting up services from main...")
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	progressService := services.NewProgressService(thePG, log, resolver, cache, enrollmentRepo, lessonProgressRepo, quizProgressRepo)
	courseService := services.NewCourseService(log, resolver, enrollmentRepo, progressService)
	quizService := services.NewQuizService(log, resolver, enrollmentRepo, quizProgressRepo)
	mailerService := services.NewMailerService(log, sendgridClient)
	jobService := services.NewJobService(thePG, log, jobRunRepo)
	certificateService := services.NewCertificateService(thePG, log, resolver, progressService, enrollmentRepo, formRepo, certCfg, bucketService, jobService)
	paymentService := services.NewPaymentService(thePG, log, midtransServerKey, midtransProduction, paymentRepo, enrollmentRepo)

	// Job worker
	log.Info("Setting up job worker from main...")
	registry := runtime.NewRegistry()
	if err := registry.Register(certificate_issue.New(certificate_issue.Deps{
		DB:          thePG,
		Log:         log,
		Reporter:    reporter,
		Resolver:    resolver,
		Progress:    progressService,
		Users:       userRepo,
		Enrollments: enrollmentRepo,
		Allocations: allocationRepo,
		Forms:       formRepo,
		Cfg:         certCfg,
		Renderer:    renderer,
		Bucket:      bucketService,
		Mailer:      mailerService,
	})); err != nil {
		log.Fatal("Failed to register certificate_issue pipeline", "error", err)
	}
	if err := registry.Register(certificate_reconcile.New(certificate_reconcile.Deps{
		DB:          thePG,
		Log:         log,
		Reporter:    reporter,
		Resolver:    resolver,
		Users:       userRepo,
		Enrollments: enrollmentRepo,
		Forms:       formRepo,
		Cfg:         certCfg,
		Renderer:    renderer,
		Bucket:      bucketService,
		Mailer:      mailerService,
	})); err != nil {
		log.Fatal("Failed to register certificate_reconcile pipeline", "error", err)
	}
	jobWorker := worker.New(thePG, log, jobRunRepo, registry, worker.ConfigFromEnv(log))
	jobWorker.Start(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(log, authService)
	courseHandler := handlers.NewCourseHandler(log, courseService)
	lessonHandler := handlers.NewLessonHandler(log, progressService)
	quizHandler := handlers.NewQuizHandler(log, quizService)
	certificateHandler := handlers.NewCertificateHandler(log, certificateService, jobService)
	enrollmentHandler := handlers.NewEnrollmentHandler(log, enrollmentRepo)
	paymentHandler := handlers.NewPaymentHandler(log, paymentService, userRepo)
	adminHandler := handlers.NewAdminHandler(log, progressService, certificateService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		CourseHandler:      courseHandler,
		LessonHandler:      lessonHandler,
		QuizHandler:        quizHandler,
		CertificateHandler: certificateHandler,
		EnrollmentHandler:  enrollmentHandler,
		PaymentHandler:     paymentHandler,
		AdminHandler:       adminHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
