package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/max-mines/epic-bot/common/id"
	"github.com/max-mines/epic-bot/common/logger"
	"github.com/max-mines/epic-bot/internal/http/dto"
)

type EventHandler struct {
	bot Bot
}

func NewEventHandler(bot Bot) *EventHandler {
	return &EventHandler{bot: bot}
}

// Handle processes Events API deliveries. The subscription handshake is
// answered inline; message events are acked immediately and routed to the
// engine asynchronously so retries from the platform never pile up behind
// a slow turn.
func (h *EventHandler) Handle(c *gin.Context) {
	var payload dto.EventCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch payload.Type {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": payload.Challenge})
		return

	case "event_callback":
		// Fall through below.

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	event := payload.Event
	if event.Type != "message" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TurnID:    logger.Ptr(id.New()),
		UserID:    logger.Ptr(event.User),
		ThreadID:  logger.Ptr(event.ThreadTS),
		EventType: logger.Ptr("thread_message"),
		Component: "bot.http",
	})

	slog.DebugContext(ctx, "message event received",
		"channel", event.Channel,
		"subtype", event.Subtype,
		"is_bot", event.IsBot(),
	)

	go h.bot.HandleMessage(ctx, event.ThreadTS, event.User, event.Text, event.IsBot())

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
