package api

import (
	"net/http"

	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/metrics"
	"picmark/gallery/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps bundles what the HTTP layer needs from the rest of the application.
type Deps struct {
	Auth     service.AuthService
	Images   service.ImageService
	Settings SettingsStore
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
}

func SetupRoutes(router *gin.Engine, d Deps) {
	authHandler := NewAuthHandler(d.Auth)
	uploadHandler := NewUploadHandler(d.Images)
	imageHandler := NewImageHandler(d.Images)
	settingsHandler := NewSettingsHandler(d.Settings)

	if d.Log != nil {
		router.Use(RequestLogger(d.Log))
	}
	router.Use(d.Metrics.Middleware())

	authMiddleware := AuthMiddleware(d.Auth)
	optionalAuth := OptionalAuthMiddleware(d.Auth)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		// Public reads; a token only widens what the caller can see.
		apiV1.GET("/images", optionalAuth, imageHandler.ListImages)
		apiV1.GET("/images/:id", optionalAuth, imageHandler.GetImage)
		apiV1.GET("/settings/upload", settingsHandler.GetUploadSettings)
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			actor, _ := actorFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": actor.UserID.Hex(), "role": actor.Role})
		})

		protected.GET("/token", uploadHandler.GetToken)

		imageGroup := protected.Group("/images")
		{
			imageGroup.POST("", imageHandler.FinalizeUpload)
			imageGroup.DELETE("/:id", imageHandler.DeleteImage)
		}

		adminGroup := protected.Group("/settings")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.PUT("/upload", settingsHandler.UpdateUploadSettings)
		}
	}
}
