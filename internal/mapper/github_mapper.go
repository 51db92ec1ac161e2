package mapper

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"

	"gitplumbers.app/bridge/internal/model"
)

type GitHubEventMapper struct{}

func NewGitHubEventMapper() *GitHubEventMapper {
	return &GitHubEventMapper{}
}

// Map parses a GitHub App delivery. Only new issue comments and opened,
// edited or reopened issues are mapped; every other event type or action
// yields ErrUnsupportedEvent.
func (m *GitHubEventMapper) Map(ctx context.Context, eventType string, payload []byte) (*Event, error) {
	switch eventType {
	case "ping":
		return &Event{Type: EventPing}, nil
	case "issue_comment", "issues":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}

	switch e := parsed.(type) {
	case *github.IssueCommentEvent:
		if e.GetAction() != "created" {
			return nil, fmt.Errorf("%w: issue_comment.%s", ErrUnsupportedEvent, e.GetAction())
		}
		return &Event{
			Type:           EventCommentCreated,
			Action:         e.GetAction(),
			InstallationID: e.GetInstallation().GetID(),
			Repository:     toRepository(e.GetRepo()),
			IssueNumber:    e.GetIssue().GetNumber(),
			CommentBody:    e.GetComment().GetBody(),
			Sender:         e.GetSender().GetLogin(),
			SenderIsBot:    e.GetSender().GetType() == "Bot",
		}, nil

	case *github.IssuesEvent:
		switch e.GetAction() {
		case "opened", "edited", "reopened":
		default:
			return nil, fmt.Errorf("%w: issues.%s", ErrUnsupportedEvent, e.GetAction())
		}
		return &Event{
			Type:           EventIssueChanged,
			Action:         e.GetAction(),
			InstallationID: e.GetInstallation().GetID(),
			Repository:     toRepository(e.GetRepo()),
			IssueNumber:    e.GetIssue().GetNumber(),
			Sender:         e.GetSender().GetLogin(),
			SenderIsBot:    e.GetSender().GetType() == "Bot",
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
}

func toRepository(repo *github.Repository) model.Repository {
	return model.Repository{
		Owner: repo.GetOwner().GetLogin(),
		Name:  repo.GetName(),
	}
}
