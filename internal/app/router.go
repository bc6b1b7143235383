package app

import (
	"examhub_backend/docs"
	"examhub_backend/internal/config"
	"examhub_backend/internal/middleware"
	"examhub_backend/pkg/monitoring"
	"examhub_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	// 请求体中出现未声明字段时直接拒绝
	binding.EnableDecoderDisallowUnknownFields = true
}

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, cfg)

	// 2. 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.services.auth))
	{
		a.registerStudentRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		// 登录接口单独限流
		loginLimiter := security.RateLimiter(cfg.RateLimit.LoginRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
		public.POST("/auth/login", loginLimiter, c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	auth := group.Group("/auth")
	{
		auth.GET("/me", c.auth.Me)
		auth.PUT("/avatar", c.auth.UpdateAvatar)
		auth.POST("/logout", c.auth.Logout)
	}

	exams := group.Group("/exams")
	{
		exams.GET("", c.exam.ListExams)
		exams.POST("/:id/start", c.exam.Start)
		exams.POST("/:id/answer", c.exam.Answer)
		exams.POST("/:id/finish", c.exam.Finish)
		exams.GET("/attempt/:id", c.exam.AttemptDetail)
	}

	results := group.Group("/results")
	{
		results.GET("/history", c.result.History)
		results.GET("/certificate/:attemptId", c.result.Certificate)
		results.GET("/stats", c.result.Stats)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(a.services.auth), middleware.AdminMiddleware())
	{
		admin.GET("/stats", c.admin.Stats)
		admin.GET("/results", c.admin.Results)
		admin.GET("/results/:id", c.admin.ResultDetail)
		admin.GET("/ranking", c.admin.Ranking)
		admin.GET("/users", c.admin.Users)
		admin.GET("/export/results", c.admin.ExportResults)

		admin.GET("/exams", c.admin.ListExams)
		admin.POST("/exams", c.admin.CreateExam)
		admin.PUT("/exams/:id", c.admin.UpdateExam)
		admin.DELETE("/exams/:id", c.admin.DeleteExam)
		admin.GET("/exams/:id/questions", c.admin.Questions)
	}
}
