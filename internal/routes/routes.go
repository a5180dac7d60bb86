package routes

import (
	"github.com/discloseaudit/backend/internal/controllers"
	"github.com/discloseaudit/backend/internal/middleware"
	"github.com/discloseaudit/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, db *gorm.DB, jobService *services.JobService, consistencyService *services.ConsistencyService) {
	reportService := services.NewReportService(db, jobService)

	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	reportController := controllers.NewReportController(reportService)
	jobController := controllers.NewJobController(db, jobService)
	consistencyController := controllers.NewConsistencyController(db, consistencyService)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/register", authController.Register)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			// Token refresh and password change act on the caller's account
			account := protected.Group("/auth")
			{
				account.POST("/refresh", authController.RefreshToken)
				account.PUT("/password", authController.ChangePassword)
			}

			// Users
			users := protected.Group("/users")
			{
				users.GET("/me", userController.GetCurrentUser)
				users.PUT("/me", userController.UpdateCurrentUser)
				users.GET("", userController.GetUsers)
				users.POST("", userController.AddUser)
				users.DELETE("/:id", userController.RemoveUser)
				users.PUT("/:id/role", userController.UpdateUserRole)
			}

			// Reports and versions
			reports := protected.Group("/reports")
			{
				reports.POST("", reportController.UploadReport)
				reports.GET("", reportController.GetReports)
				reports.GET("/:id", reportController.GetReport)
			}

			versions := protected.Group("/versions")
			{
				versions.GET("/:id", reportController.GetVersion)
				versions.GET("/:id/jobs", jobController.GetVersionJobs)
				versions.POST("/:id/jobs", jobController.EnqueueJob)
				versions.GET("/:id/consistency", consistencyController.GetVersionConsistency)
			}

			// Consistency review
			items := protected.Group("/items")
			{
				items.PUT("/:id/human-status", consistencyController.SetHumanStatus)
			}
		}
	}
}
