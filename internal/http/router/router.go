package router

import (
	"github.com/gin-gonic/gin"

	"github.com/max-mines/epic-bot/internal/http/handler"
	"github.com/max-mines/epic-bot/internal/http/middleware"
)

type RouterConfig struct {
	SigningSecret string
}

func SetupRoutes(router *gin.Engine, bot handler.Bot, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	slack := router.Group("/slack", middleware.VerifySignature(cfg.SigningSecret))
	{
		commandHandler := handler.NewCommandHandler(bot)
		slack.POST("/commands", commandHandler.Handle)

		eventHandler := handler.NewEventHandler(bot)
		slack.POST("/events", eventHandler.Handle)
	}
}
