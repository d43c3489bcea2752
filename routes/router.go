package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/creeps/board/config"
	"github.com/creeps/board/controllers"
	"github.com/creeps/board/middleware"
	"github.com/creeps/board/services"
	"github.com/creeps/board/utils"
)

// Deps carries the shared components the handlers need.
type Deps struct {
	DB      *gorm.DB
	Views   *services.ViewCounter
	Cleaner *services.AssetCleaner
	Media   services.MediaStore
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log and panic recovery go to their own rolling file
	gl := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	r.Use(utils.Ginzap(gl))
	r.Use(utils.RecoveryWithZap(gl))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.JSON(ctx, http.StatusOK, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(d.DB)
	postController := controllers.NewPostController(d.DB, d.Views, d.Cleaner)
	commentController := controllers.NewCommentController(d.DB)
	uploadController := controllers.NewUploadController(d.Media, cfg.MaxUploadMB)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register/", authController.Register)
	authGroup.GET("/captcha/", authController.Captcha)
	authGroup.POST("/login/", authController.Login)
	authGroup.POST("/refresh/", authController.Refresh)
	authGroup.POST("/username-lookup/", authController.UsernameLookup)
	authGroup.POST("/password-reset/", authController.PasswordResetRequest)
	authGroup.POST("/password-reset/issue/", authController.PasswordResetIssue)
	authGroup.POST("/password-reset-confirm/", authController.PasswordResetConfirm)
	authGroup.GET("/oauth/:provider/login/", authController.OAuthLogin)
	authGroup.GET("/oauth/:provider/callback/", authController.OAuthCallback)
	authGroup.POST("/logout/", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me/", middleware.AuthRequired(), authController.Me)
	authGroup.POST("/delete-account/", middleware.AuthRequired(), authController.DeleteAccount)

	public := api.Group("")
	public.Use(middleware.OptionalAuth())
	public.GET("/posts/", postController.ListPosts)
	public.GET("/posts/:id/", postController.GetPost)
	public.GET("/comments/", commentController.ListComments)
	public.GET("/comments/:id/", commentController.GetComment)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.POST("/posts/", postController.CreatePost)
	protected.PUT("/posts/:id/", postController.UpdatePost)
	protected.PATCH("/posts/:id/", postController.UpdatePost)
	protected.DELETE("/posts/:id/", postController.DeletePost)
	protected.POST("/comments/", commentController.CreateComment)
	protected.PUT("/comments/:id/", commentController.UpdateComment)
	protected.PATCH("/comments/:id/", commentController.UpdateComment)
	protected.DELETE("/comments/:id/", commentController.DeleteComment)
	protected.POST("/uploads/images/", uploadController.UploadImage)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Detail(ctx, http.StatusNotFound, "Not found.")
	})

	return r
}
