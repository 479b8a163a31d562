package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Fields flow through context enrichment so business
// context (session_id, epic_id, etc.) lands on every log statement without
// repetition at call sites.
type LogFields struct {
	SessionID *string // Conversation session id (= chat thread id)
	EpicID    *string // Epic document id
	ThreadID  *string // Chat thread id for outbound replies
	UserID    *string // Chat user id
	TurnID    *int64  // Inbound turn/delivery id
	EventType *string // Event type (e.g., "slash_command", "thread_message")
	Component string  // Component name (e.g., "bot.engine", "bot.tracker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SessionID != nil {
		result.SessionID = new.SessionID
	}
	if new.EpicID != nil {
		result.EpicID = new.EpicID
	}
	if new.ThreadID != nil {
		result.ThreadID = new.ThreadID
	}
	if new.UserID != nil {
		result.UserID = new.UserID
	}
	if new.TurnID != nil {
		result.TurnID = new.TurnID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{EpicID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long strings like prompts or
// model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
