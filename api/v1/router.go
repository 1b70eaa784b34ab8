package v1

import (
	"go_certhub/api/v1/activities"
	"go_certhub/api/v1/auth"
	"go_certhub/api/v1/certificates"
	"go_certhub/api/v1/companies"
	"go_certhub/api/v1/middleware"
	"go_certhub/api/v1/templates"
	"go_certhub/api/v1/users"
	"go_certhub/api/v1/verify"
	"go_certhub/internal/config"
	"go_certhub/internal/httpx"
	"go_certhub/internal/issue"
	"go_certhub/internal/model"
	"go_certhub/internal/sharelink"
	"go_certhub/internal/storage"
	"go_certhub/internal/verification"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the wired services the routes need
type Deps struct {
	DB           *gorm.DB
	Config       *config.Config
	Store        storage.Store
	Issue        *issue.Service
	Verification *verification.Service
	Worker       *issue.Worker
	Share        *sharelink.Store
}

// SetupRouter sets up the API routes
func SetupRouter(r *gin.Engine, deps Deps) {
	// Public verification surface, consumed by the certificate holder's
	// browser without authentication
	verifyHandler := verify.NewHandler(deps.DB, deps.Verification, deps.Issue, deps.Store, deps.Share)
	public := r.Group("/api/public")
	{
		public.GET("/verificar/:code", verifyHandler.Lookup)
		public.POST("/verificar/:code", verifyHandler.Validate)
		public.GET("/certificados/:uniqueCode/descargar", verifyHandler.DownloadPDF)
		public.GET("/certificados/:uniqueCode/imagen", verifyHandler.Image)
		public.GET("/descarga/:token", verifyHandler.SharedDownload)
	}

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(deps.DB, deps.Config))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", auth.MeHandler(deps.DB))

			staff := protected.Group("")
			staff.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
			{
				// Users routes (admin only)
				usersHandler := users.NewHandler(deps.DB)
				usersGroup := staff.Group("/users")
				usersGroup.Use(middleware.RequireRole(model.RoleAdmin))
				{
					usersGroup.GET("", usersHandler.List)
					usersGroup.POST("/create", usersHandler.Create)
					usersGroup.POST("/update", usersHandler.Update)
					usersGroup.POST("/delete", usersHandler.Delete)
				}

				// Companies routes
				companiesHandler := companies.NewHandler(deps.DB)
				companiesGroup := staff.Group("/companies")
				{
					companiesGroup.GET("", companiesHandler.List)
					companiesGroup.POST("/create", companiesHandler.Create)
					companiesGroup.POST("/update", companiesHandler.Update)
					companiesGroup.POST("/delete", companiesHandler.Delete)
				}

				// Activities routes
				activitiesHandler := activities.NewHandler(deps.DB)
				activitiesGroup := staff.Group("/activities")
				{
					activitiesGroup.GET("", activitiesHandler.List)
					activitiesGroup.POST("/create", activitiesHandler.Create)
					activitiesGroup.POST("/update", activitiesHandler.Update)
					activitiesGroup.POST("/delete", activitiesHandler.Delete)
				}

				// Templates routes
				templatesHandler := templates.NewHandler(deps.DB, deps.Store)
				templatesGroup := staff.Group("/templates")
				{
					templatesGroup.GET("", templatesHandler.List)
					templatesGroup.GET("/:id", templatesHandler.Get)
					templatesGroup.POST("/create", templatesHandler.Create)
					templatesGroup.POST("/update", templatesHandler.Update)
					templatesGroup.POST("/delete", templatesHandler.Delete)
					templatesGroup.POST("/:id/background", templatesHandler.UploadBackground)
				}

				// Certificates routes
				certificatesHandler := certificates.NewHandler(deps.DB, deps.Issue, deps.Worker, deps.Share, deps.Config.PublicURL)
				certificatesGroup := staff.Group("/certificates")
				{
					certificatesGroup.GET("", certificatesHandler.List)
					certificatesGroup.GET("/:id", certificatesHandler.Get)
					certificatesGroup.POST("/batch", certificatesHandler.Batch)
					certificatesGroup.POST("/:id/transition", certificatesHandler.Transition)
					certificatesGroup.POST("/:id/retry", certificatesHandler.Retry)
					certificatesGroup.POST("/:id/share", certificatesHandler.Share)
					certificatesGroup.GET("/:id/pdf", certificatesHandler.DownloadPDF)
				}
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}
