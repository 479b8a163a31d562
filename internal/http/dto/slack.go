// Package dto holds the wire shapes of the chat platform's inbound
// payloads: slash command form posts and Events API callbacks.
package dto

// SlashCommand is the form-encoded body Slack posts for a slash command
// invocation.
type SlashCommand struct {
	Command   string `form:"command"`
	Text      string `form:"text"`
	UserID    string `form:"user_id"`
	ChannelID string `form:"channel_id"`
	TeamID    string `form:"team_id"`
	TriggerID string `form:"trigger_id"`
}

// EventCallback is the envelope of an Events API delivery. Type is either
// "url_verification" (subscription handshake) or "event_callback".
type EventCallback struct {
	Type      string       `json:"type"`
	Token     string       `json:"token"`
	Challenge string       `json:"challenge"`
	TeamID    string       `json:"team_id"`
	EventID   string       `json:"event_id"`
	Event     MessageEvent `json:"event"`
}

// MessageEvent is the inner event for message deliveries. ThreadTS is set
// only for threaded replies; BotID or a bot_message subtype marks messages
// the bot itself (or another bot) posted.
type MessageEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	EventTS  string `json:"event_ts"`
}

// IsBot reports whether the message originated from a bot rather than a
// human user.
func (e MessageEvent) IsBot() bool {
	return e.BotID != "" || e.Subtype == "bot_message"
}
