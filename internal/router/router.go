package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/handler"
	"github.com/proctorhq/examhall-backend/internal/middleware"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Portal    *handler.PortalHandler
	Exam      *handler.ExamHandler
	Question  *handler.QuestionHandler
	Candidate *handler.CandidateHandler
	Result    *handler.ResultHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.Brotli(), authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.CandidateLogin)
		auth.POST("/register", handlers.Auth.CandidateRegister)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
	}

	// ─── 2. Candidate Group (JWT + Single Device) ──────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(
		middleware.Brotli(),
		middleware.RequireCandidateJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		candidateAPI.GET("/me", handlers.Auth.CandidateMe)
		candidateAPI.POST("/logout", handlers.Auth.CandidateLogout)

		candidateAPI.GET("/exams", handlers.Portal.ListExams)
		candidateAPI.POST("/exams/:exam_id/start", handlers.Portal.StartAttempt)
		candidateAPI.GET("/exams/:exam_id/state", handlers.Portal.GetState)
		candidateAPI.PUT("/exams/:exam_id/answers/:question_id", handlers.Portal.RecordAnswer)
		candidateAPI.POST("/exams/:exam_id/flags/:question_id", handlers.Portal.ToggleFlag)
		candidateAPI.POST("/exams/:exam_id/navigate", handlers.Portal.Navigate)
		candidateAPI.POST("/exams/:exam_id/violations", handlers.Portal.RecordViolation)
		candidateAPI.POST("/exams/:exam_id/warning-ack", handlers.Portal.AcknowledgeWarning)
		candidateAPI.POST("/exams/:exam_id/submit", handlers.Portal.Submit)
		candidateAPI.GET("/exams/:exam_id/submission", handlers.Portal.GetSubmissionStatus)
		candidateAPI.GET("/exams/:exam_id/result", handlers.Portal.GetResult)
		candidateAPI.GET("/results", handlers.Portal.ListMyResults)
		candidateAPI.GET("/last-result", handlers.Portal.GetLastResult)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	// No brotli here: compression middleware breaks the upgrade.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/candidate/exams/:exam_id/stream", handlers.WS.HandleExamStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.Brotli(), middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/me", handlers.Auth.AdminMe)

		// Exam management
		adminAPI.GET("/exams", handlers.Exam.List)
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.Get)
		adminAPI.PUT("/exams/:exam_id", handlers.Exam.Update)
		adminAPI.PATCH("/exams/:exam_id/status", handlers.Exam.UpdateStatus)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.Delete)

		// Question management
		adminAPI.GET("/exams/:exam_id/questions", handlers.Question.List)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Question.Create)
		adminAPI.PUT("/exams/:exam_id/questions/:question_id", handlers.Question.Update)
		adminAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Question.Delete)

		// Results and proctoring
		adminAPI.GET("/exams/:exam_id/results", handlers.Result.ListByExam)
		adminAPI.GET("/exams/:exam_id/overview", handlers.Result.Overview)
		adminAPI.GET("/exams/:exam_id/candidates/:candidate_id/violations", handlers.Result.ViolationLog)

		// Candidate management
		adminAPI.GET("/candidates", handlers.Candidate.List)
		adminAPI.POST("/candidates", handlers.Candidate.Create)
		adminAPI.GET("/candidates/:candidate_id", handlers.Candidate.Get)
		adminAPI.PUT("/candidates/:candidate_id", handlers.Candidate.Update)
		adminAPI.DELETE("/candidates/:candidate_id", handlers.Candidate.Delete)
		adminAPI.POST("/candidates/:candidate_id/reset-session", handlers.Candidate.ResetSession)
	}

	return router
}
