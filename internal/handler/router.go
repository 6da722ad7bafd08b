package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/tutorlink/tutorlink-api/internal/middleware"
	"github.com/tutorlink/tutorlink-api/internal/models"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/service"
	"github.com/tutorlink/tutorlink-api/pkg/config"
	"github.com/tutorlink/tutorlink-api/pkg/logger"
	corsmiddleware "github.com/tutorlink/tutorlink-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorlink/tutorlink-api/pkg/middleware/requestid"
	"github.com/tutorlink/tutorlink-api/pkg/storage"

	"go.uber.org/zap"
)

// RouterDeps collects everything the HTTP surface needs.
type RouterDeps struct {
	Config   *config.Config
	Logger   *zap.Logger
	UserRepo *repository.UserRepository
	Uploads  *storage.LocalStorage

	Auth     *service.AuthService
	Requests *service.RequestService
	Bookings *service.BookingService
	Tutors   *service.TutorService
	Admin    *service.AdminService
	Metrics  *service.MetricsService
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	authHandler := NewAuthHandler(deps.Auth)
	requestHandler := NewRequestHandler(deps.Requests)
	bookingHandler := NewBookingHandler(deps.Bookings)
	tutorHandler := NewTutorHandler(deps.Tutors)
	adminHandler := NewAdminHandler(deps.Admin)
	metricsHandler := NewMetricsHandler(deps.Metrics)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if deps.Uploads != nil {
		r.Static("/uploads/profile-pictures", deps.Uploads.BaseDir())
	}

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(deps.Auth), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(deps.Auth), authHandler.ChangePassword)
	}

	tutors := api.Group("/tutors")
	{
		tutors.GET("", tutorHandler.List)

		me := tutors.Group("/me", middleware.JWT(deps.Auth), middleware.RequireRoles(models.RoleTutor))
		{
			me.GET("/profile", tutorHandler.GetOwnProfile)
			me.PUT("/profile", middleware.Audit(deps.UserRepo, "PROFILE_UPDATE", "tutor_profile"), tutorHandler.UpdateProfile)
			me.POST("/picture", middleware.Audit(deps.UserRepo, "PICTURE_UPLOAD", "tutor_profile"), tutorHandler.UploadPicture)
		}

		tutors.GET("/:id", tutorHandler.Get)
	}

	requests := api.Group("/requests", middleware.JWT(deps.Auth))
	{
		requests.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.Create)
		requests.GET("", middleware.RequireRoles(models.RoleStudent, models.RoleTutor), requestHandler.List)
		requests.GET("/history", middleware.RequireRoles(models.RoleStudent), requestHandler.History)
		requests.GET("/pending/count", middleware.RequireRoles(models.RoleTutor), requestHandler.PendingCount)
		requests.GET("/:id", requestHandler.Get)
		requests.PUT("/:id/accept", middleware.RequireRoles(models.RoleTutor), requestHandler.Accept)
		requests.PUT("/:id/reject", middleware.RequireRoles(models.RoleTutor), requestHandler.Reject)
	}

	bookings := api.Group("/bookings", middleware.JWT(deps.Auth))
	{
		bookings.GET("", middleware.RequireRoles(models.RoleStudent, models.RoleTutor), bookingHandler.List)
		bookings.GET("/students", middleware.RequireRoles(models.RoleTutor), bookingHandler.ActiveStudents)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.POST("/:id/extend", middleware.RequireRoles(models.RoleStudent, models.RoleTutor), bookingHandler.Extend)
		bookings.POST("/:id/cancel", middleware.RequireRoles(models.RoleStudent, models.RoleTutor), bookingHandler.Cancel)
	}

	admin := api.Group("/admin", middleware.JWT(deps.Auth), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.PUT("/users/:id/block", adminHandler.SetUserBlocked)
		admin.GET("/requests", adminHandler.ListRequests)
		admin.GET("/statistics", adminHandler.Statistics)
		admin.GET("/bookings/export", adminHandler.ExportBookings)
	}

	return r
}
