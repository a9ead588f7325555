package handlers

import (
	"context"

	"commhub/internal/app"
	"commhub/internal/db"
	"commhub/internal/http/middleware"
	"commhub/pkg/models"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, s *app.Services) {
	// Provider webhooks authenticate with signatures and secrets, not JWT
	webhookHandler := NewWebhookHandler(s.Settings, s.Router, s.Telegram).
		Register(models.PlatformWhatsApp, s.WhatsApp).
		Register(models.PlatformFacebook, s.Facebook).
		Register(models.PlatformInstagram, s.Instagram)
	webhooks := api.Group("/webhooks")
	webhooks.POST("/telegram", webhookHandler.Telegram)
	webhooks.POST("/telegram/:secret", webhookHandler.Telegram)
	webhooks.GET("/:platform", webhookHandler.Verify)
	webhooks.POST("/:platform", webhookHandler.Receive)

	// The socket authenticates itself since browsers cannot set headers on upgrade
	wsHandler := NewWebSocketHandler(s.Hub, s.Auth)
	api.GET("/ws/messages", wsHandler.HandleWebSocket)

	// Attachment URLs are fetched by Meta when sending media, so they stay public
	mediaHandler := NewMediaHandler(s.Operator, s.Media, s.Conversations)
	api.GET("/communications/media/*", mediaHandler.ServeMedia)
	api.HEAD("/communications/media/*", mediaHandler.ServeMedia)

	// Protected routes (operator JWT or RAG token)
	comms := api.Group("/communications")
	comms.Use(middleware.Authenticate(s.Auth))

	commsHandler := NewCommunicationsHandler(s.Operator)
	comms.GET("/inbox", commsHandler.Inbox)
	comms.GET("/conversations/:id", commsHandler.GetConversation)
	comms.POST("/conversations/:id/messages", commsHandler.SendMessage)
	comms.POST("/conversations/:id/mark-read", commsHandler.MarkRead)
	comms.POST("/conversations/:id/archive", commsHandler.Archive)
	comms.POST("/conversations/:id/unarchive", commsHandler.Unarchive)
	comms.POST("/conversations/:id/assign-manager", commsHandler.AssignManager)
	comms.POST("/conversations/:id/create-client", commsHandler.CreateClient)
	comms.POST("/conversations/:id/link-client/:client_id", commsHandler.LinkClient)
	comms.DELETE("/messages/:id", commsHandler.DeleteMessage)

	comms.POST("/upload", mediaHandler.Upload)
	comms.GET("/files/:name", mediaHandler.ServeFile)

	mailboxHandler := NewMailboxHandler(s.MailboxRepo)
	comms.GET("/mailboxes", mailboxHandler.List)

	autobotHandler := NewAutobotHandler(s.AutobotRepo, s.Config.AutobotOfficeID)
	bot := comms.Group("/autobot")
	bot.GET("/settings", autobotHandler.GetSettings)
	bot.GET("/holidays", autobotHandler.ListHolidays)
	bot.GET("/logs", autobotHandler.ListLogs)

	botAdmin := bot.Group("", middleware.RequireOperator())
	botAdmin.PUT("/settings", autobotHandler.UpdateSettings)
	botAdmin.POST("/holidays", autobotHandler.CreateHoliday)
	botAdmin.DELETE("/holidays/:id", autobotHandler.DeleteHoliday)
}

// DatabasePinger adapts the database ping for the health check
func DatabasePinger(s *app.Services) Pinger {
	return func(ctx context.Context) error { return db.Ping(ctx, s.DB) }
}
