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

// Bot is what the HTTP layer needs from the conversation engine.
type Bot interface {
	StartEpic(ctx context.Context, channelID, userID, description string) error
	StartDelete(ctx context.Context, channelID, userID, ref string) error
	StartReview(ctx context.Context, channelID, userID, ref string) error
	HandleMessage(ctx context.Context, threadTS, userID, text string, isBot bool)
}

type CommandHandler struct {
	bot Bot
}

func NewCommandHandler(bot Bot) *CommandHandler {
	return &CommandHandler{bot: bot}
}

// Handle acknowledges a slash command immediately and dispatches the flow
// asynchronously. Slack requires a response within 3 seconds; the real work
// (LLM calls, tracker round trips) happens in the thread afterwards.
func (h *CommandHandler) Handle(c *gin.Context) {
	var cmd dto.SlashCommand
	if err := c.ShouldBind(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command payload"})
		return
	}

	// Detach from the request lifecycle but keep trace context: the
	// dispatch outlives the ack response.
	ctx := context.WithoutCancel(c.Request.Context())
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TurnID:    logger.Ptr(id.New()),
		UserID:    logger.Ptr(cmd.UserID),
		EventType: logger.Ptr("slash_command"),
		Component: "bot.http",
	})

	slog.InfoContext(ctx, "slash command received",
		"command", cmd.Command,
		"channel_id", cmd.ChannelID,
		"text", logger.Truncate(cmd.Text, 200),
	)

	switch cmd.Command {
	case "/story", "/delete-epic", "/review-epic":
	default:
		c.String(http.StatusOK, "Unknown command: %s", cmd.Command)
		return
	}

	go func() {
		var err error
		switch cmd.Command {
		case "/story":
			err = h.bot.StartEpic(ctx, cmd.ChannelID, cmd.UserID, cmd.Text)
		case "/delete-epic":
			err = h.bot.StartDelete(ctx, cmd.ChannelID, cmd.UserID, cmd.Text)
		case "/review-epic":
			err = h.bot.StartReview(ctx, cmd.ChannelID, cmd.UserID, cmd.Text)
		}
		if err != nil {
			slog.ErrorContext(ctx, "command dispatch failed",
				"command", cmd.Command,
				"error", err,
			)
		}
	}()

	c.String(http.StatusOK, "")
}
