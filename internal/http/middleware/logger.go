package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v57/github"

	"gitplumbers.app/bridge/common/logger"
)

// Logger writes one record per request. GitHub deliveries are tagged with
// their delivery id and event before the handler runs, so every record the
// handler emits carries them too. Query strings are never logged: the OAuth
// callback carries the authorization code in one.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if fields, ok := deliveryFields(c.Request); ok {
			c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), fields))
		}

		c.Next()

		status := c.Writer.Status()
		// Handlers may have replaced the request context with a richer one.
		ctx := c.Request.Context()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if user := GetUser(ctx); user != nil {
			attrs = append(attrs, "user_id", user.ID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}

func deliveryFields(r *http.Request) (logger.LogFields, bool) {
	deliveryID := github.DeliveryID(r)
	eventType := github.WebHookType(r)
	if deliveryID == "" && eventType == "" {
		return logger.LogFields{}, false
	}

	var fields logger.LogFields
	if deliveryID != "" {
		fields.DeliveryID = logger.Ptr(deliveryID)
	}
	if eventType != "" {
		fields.EventType = logger.Ptr(eventType)
	}
	return fields, true
}
