package mapper

import (
	"context"
	"errors"

	"gitplumbers.app/bridge/internal/model"
)

type CanonicalEventType string

const (
	EventCommentCreated CanonicalEventType = "comment_created"
	EventIssueChanged   CanonicalEventType = "issue_changed"
	EventPing           CanonicalEventType = "ping"
)

// ErrUnsupportedEvent is returned for deliveries the bridge acknowledges
// without acting on.
var ErrUnsupportedEvent = errors.New("unsupported webhook event")

// Event is a webhook delivery reduced to what the bridge acts on.
type Event struct {
	Type           CanonicalEventType
	Action         string
	InstallationID int64
	Repository     model.Repository
	IssueNumber    int

	// Comment events only.
	CommentBody string
	Sender      string
	SenderIsBot bool
}

type EventMapper interface {
	Map(ctx context.Context, eventType string, payload []byte) (*Event, error)
}
