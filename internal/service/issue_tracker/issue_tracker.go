package issue_tracker

import (
	"context"

	"gitplumbers.app/bridge/internal/model"
)

type CreateIssueParams struct {
	Title  string
	Body   string
	Labels []string
}

// IssueTracker talks to the issues API of one installation. Every instance
// is bound to a single installation token and must not outlive the logical
// operation it was created for.
type IssueTracker interface {
	// ListOpenIssues walks every page of open issues. Pull requests are dropped.
	ListOpenIssues(ctx context.Context, repo model.Repository) ([]model.ExternalIssue, error)
	CreateIssue(ctx context.Context, repo model.Repository, params CreateIssueParams) (*model.ExternalIssue, error)
	CloseIssue(ctx context.Context, repo model.Repository, number int) error
	CreateComment(ctx context.Context, repo model.Repository, number int, body string) error
}

// Connector mints a fresh installation token and returns a tracker bound to it.
type Connector interface {
	Connect(ctx context.Context, installationID int64) (IssueTracker, error)
}
