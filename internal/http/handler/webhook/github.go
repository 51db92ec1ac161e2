package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel/trace"

	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/internal/mapper"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service"
)

type GitHubWebhookHandler struct {
	secret     []byte
	guard      queue.DeliveryGuard
	mapper     mapper.EventMapper
	dispatcher service.CommandDispatcher
}

func NewGitHubWebhookHandler(secret string, guard queue.DeliveryGuard, eventMapper mapper.EventMapper, dispatcher service.CommandDispatcher) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:     []byte(secret),
		guard:      guard,
		mapper:     eventMapper,
		dispatcher: dispatcher,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	// ValidatePayload checks X-Hub-Signature-256 against the raw body.
	payload, err := github.ValidatePayload(c.Request, h.secret)
	if err != nil {
		slog.WarnContext(ctx, "rejected webhook with invalid signature", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	eventType := github.WebHookType(c.Request)
	deliveryID := github.DeliveryID(c.Request)
	if eventType == "" || deliveryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-GitHub-Event or X-GitHub-Delivery header"})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: logger.Ptr(deliveryID),
		EventType:  logger.Ptr(eventType),
		Component:  "bridge.webhook.github",
	})

	event, err := h.mapper.Map(ctx, eventType, payload)
	if err != nil {
		if errors.Is(err, mapper.ErrUnsupportedEvent) {
			slog.DebugContext(ctx, "ignoring github event", "reason", err)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		slog.WarnContext(ctx, "invalid github payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.Type == mapper.EventPing {
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
		return
	}

	claimed, err := h.guard.Claim(ctx, deliveryID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record delivery", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to record delivery"})
		return
	}
	if !claimed {
		slog.InfoContext(ctx, "duplicate github delivery acknowledged")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(event.InstallationID),
		Repository:     logger.Ptr(event.Repository.FullName()),
		IssueNumber:    logger.Ptr(event.IssueNumber),
	})

	acknowledged, err := h.dispatch(ctx, event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to process github event", "error", err, "acknowledged", acknowledged)
		// The ack comment is already on the issue; a redelivery would post it again.
		if acknowledged {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
			return
		}
		if releaseErr := h.guard.Release(ctx, deliveryID); releaseErr != nil {
			slog.WarnContext(ctx, "failed to release delivery", "error", releaseErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dispatch reports whether an acknowledgement comment was posted, even when
// it also returns an error.
func (h *GitHubWebhookHandler) dispatch(ctx context.Context, event *mapper.Event) (bool, error) {
	traceID := traceIDFromContext(ctx)

	switch event.Type {
	case mapper.EventCommentCreated:
		result, err := h.dispatcher.HandleComment(ctx, service.CommentEvent{
			InstallationID: event.InstallationID,
			Repository:     event.Repository,
			IssueNumber:    event.IssueNumber,
			Body:           event.CommentBody,
			Sender:         event.Sender,
			SenderIsBot:    event.SenderIsBot,
			Action:         event.Action,
			TraceID:        traceID,
		})
		acknowledged := result != nil && result.Acknowledged
		if err != nil {
			return acknowledged, err
		}
		if result != nil && result.Command != nil {
			slog.InfoContext(ctx, "command dispatched",
				"command", result.Command.Kind,
				"events_enqueued", result.EventsEnqueued,
			)
		}
		return acknowledged, nil

	case mapper.EventIssueChanged:
		return false, h.dispatcher.HandleIssue(ctx, service.IssueEvent{
			InstallationID: event.InstallationID,
			Repository:     event.Repository,
			IssueNumber:    event.IssueNumber,
			Action:         event.Action,
			TraceID:        traceID,
		})
	}

	return false, nil
}

func traceIDFromContext(ctx context.Context) *string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return nil
	}
	traceID := sc.TraceID().String()
	return &traceID
}
