package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"portfolio/internal/api/middleware"
	"portfolio/internal/auth"
	"portfolio/internal/contact"
	"portfolio/internal/content"
	"portfolio/internal/database"
)

// Deps 汇总注册路由所需的依赖。Scanner、OAuth 与 PubSub 可为空。
type Deps struct {
	DB          *gorm.DB
	Logger      *slog.Logger
	Storage     objectStore
	Scanner     virusScanner
	MaxUpload   int64
	Contact     *contact.Service
	AuthService *auth.AuthService
	Users       *auth.Users
	Sessions    *auth.Sessions
	OAuth       *auth.OAuth
	AuthOptions AuthOptions
	PubSub      pubsubClient
	Origins     []string
	Cache       *ReadCache
}

// RegisterRoutes 注册公开与后台路由，挂载在根路径下。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cache := deps.Cache
	if cache == nil {
		cache = NewReadCache(0)
	}

	admin := []gin.HandlerFunc{
		middleware.RequireAdmin(deps.AuthService),
		middleware.RequirePasswordChangeCompletedMiddleware(),
	}
	authenticated := middleware.AuthMiddleware(deps.AuthService)

	about := NewOrderedHandler(
		content.NewOrderedStore[database.About](deps.DB, "about"),
		func() content.Input[database.About] { return &content.AboutInput{} },
		cache, deps.Storage,
		func(a *database.About) string { return a.AvatarPathname },
	)
	skills := NewOrderedHandler(
		content.NewOrderedStore[database.Skill](deps.DB, "skill"),
		func() content.Input[database.Skill] { return &content.SkillInput{} },
		cache, deps.Storage, nil,
	)
	experience := NewOrderedHandler(
		content.NewOrderedStore[database.Experience](deps.DB, "experience"),
		func() content.Input[database.Experience] { return &content.ExperienceInput{} },
		cache, deps.Storage, nil,
	)
	projects := NewOrderedHandler(
		content.NewOrderedStore[database.Project](deps.DB, "project"),
		func() content.Input[database.Project] { return &content.ProjectInput{} },
		cache, deps.Storage,
		func(p *database.Project) string { return p.ImagePathname },
	)

	registerOrdered(router.Group("/about"), about, admin)
	registerOrdered(router.Group("/skills"), skills, admin)
	registerOrdered(router.Group("/experience"), experience, admin)
	projectGroup := router.Group("/projects")
	registerOrdered(projectGroup, projects, admin)
	projectGroup.POST("/reorder", withAdmin(admin, projects.Reorder)...)

	siteConfig := NewSiteConfigHandler(content.NewSiteConfigStore(deps.DB), cache, deps.Storage)
	siteGroup := router.Group("/site-config")
	{
		siteGroup.GET("", siteConfig.Get)
		siteGroup.POST("", withAdmin(admin, siteConfig.Create)...)
		siteGroup.PUT("/:id", withAdmin(admin, siteConfig.Update)...)
		siteGroup.DELETE("/:id", withAdmin(admin, siteConfig.Delete)...)
	}

	contactHandler := NewContactHandler(deps.Contact)
	contactGroup := router.Group("/contact")
	{
		contactGroup.POST("", contactHandler.Submit)
		contactGroup.GET("", withAdmin(admin, contactHandler.List)...)
		contactGroup.GET("/:id", withAdmin(admin, contactHandler.Get)...)
		contactGroup.PUT("/:id", withAdmin(admin, contactHandler.Update)...)
		contactGroup.DELETE("/:id", withAdmin(admin, contactHandler.Delete)...)
	}

	upload := NewUploadHandler(deps.Storage, deps.Scanner, deps.MaxUpload)
	router.POST("/upload", withAdmin(admin, upload.Upload)...)
	router.DELETE("/blob", withAdmin(admin, upload.DeleteBlob)...)

	authHandler := NewAuthHandler(deps.AuthService, deps.Users, deps.Sessions, deps.OAuth, deps.AuthOptions)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/password", authenticated, authHandler.ChangePassword)
		authGroup.GET("/me", authenticated, authHandler.Me)
		authGroup.GET("/oauth/:provider", authHandler.OAuthStart)
		authGroup.GET("/oauth/:provider/callback", authHandler.OAuthCallback)
	}

	if deps.PubSub != nil {
		ws := NewWsHandler(deps.PubSub, deps.AuthService, deps.Logger, deps.Origins)
		router.GET("/ws/admin", ws.HandleConnection)
	}
}

type orderedRoutes interface {
	List(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Reorder(c *gin.Context)
}

// registerOrdered 挂载列表资源的标准路由；PUT 集合路径即批量排序。
func registerOrdered(group *gin.RouterGroup, h orderedRoutes, admin []gin.HandlerFunc) {
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("", withAdmin(admin, h.Create)...)
	group.PUT("", withAdmin(admin, h.Reorder)...)
	group.PUT("/:id", withAdmin(admin, h.Update)...)
	group.DELETE("/:id", withAdmin(admin, h.Delete)...)
}

func withAdmin(admin []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(admin)+1)
	return append(append(chain, admin...), h)
}
