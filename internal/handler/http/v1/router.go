package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/system/health", h.healthCheck)

	// Открытые маршруты аутентификации
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/setup-superadmin", APIKeyAuthMiddleware(h.cfg, h.logger), h.setupSuperadmin)
	}

	protected := api.Group("", JWTAuthMiddleware(h.tokens, h.logger))

	admins := protected.Group("/auth")
	{
		admins.POST("/admins", h.createAdmin)
		admins.POST("/promote", h.promoteToAdmin)
	}

	incidents := protected.Group("/incidents")
	{
		incidents.POST("", h.createIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.POST("/:id/upvote", h.toggleUpvote)
		incidents.POST("/:id/verify", h.verifyIncident)
		incidents.PATCH("/:id/status", h.updateStatus)
		incidents.POST("/:id/notes", h.addNote)
	}

	users := protected.Group("/users")
	{
		users.GET("/me", h.getProfile)
		users.GET("/leaderboard", h.leaderboard)
	}

	rewards := protected.Group("/rewards")
	{
		rewards.GET("", h.listRewards)
		rewards.POST("/redeem", h.redeemReward)
	}

	protected.GET("/admin/stats", h.getStats)
}
