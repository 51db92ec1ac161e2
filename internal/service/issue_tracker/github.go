package issue_tracker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"

	"gitplumbers.app/bridge/internal/apperr"
	"gitplumbers.app/bridge/internal/githubapp"
	"gitplumbers.app/bridge/internal/model"
)

const listPageSize = 100

// TokenExchanger is satisfied by *githubapp.Broker.
type TokenExchanger interface {
	Exchange(ctx context.Context, installationID int64) (githubapp.Token, error)
}

type gitHubConnector struct {
	broker TokenExchanger
	opts   githubapp.ClientOptions
	now    func() time.Time
}

// NewGitHubConnector returns a Connector backed by the GitHub REST API.
// now defaults to time.Now and decides when a token counts as expired.
func NewGitHubConnector(broker TokenExchanger, opts githubapp.ClientOptions, now func() time.Time) Connector {
	if now == nil {
		now = time.Now
	}
	return &gitHubConnector{broker: broker, opts: opts, now: now}
}

func (c *gitHubConnector) Connect(ctx context.Context, installationID int64) (IssueTracker, error) {
	token, err := c.broker.Exchange(ctx, installationID)
	if err != nil {
		return nil, err
	}

	client, err := c.opts.NewClient(token.Value, func(rt http.RoundTripper) http.RoundTripper {
		return &expiryTransport{expiresAt: token.ExpiresAt, now: c.now, base: rt}
	})
	if err != nil {
		return nil, &apperr.ConfigurationError{Setting: "GITHUB_API_BASE_URL", Reason: err.Error()}
	}

	return &gitHubIssueTracker{client: client}, nil
}

type gitHubIssueTracker struct {
	client *github.Client
}

func (t *gitHubIssueTracker) ListOpenIssues(ctx context.Context, repo model.Repository) ([]model.ExternalIssue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var issues []model.ExternalIssue
	pullRequests := 0
	for {
		page, resp, err := t.client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, apiError("list issues", err)
		}

		for _, issue := range page {
			if issue.IsPullRequest() {
				pullRequests++
				continue
			}
			issues = append(issues, toExternalIssue(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.DebugContext(ctx, "listed open issues",
		"repository", repo.FullName(),
		"issues", len(issues),
		"pull_requests_skipped", pullRequests,
	)

	return issues, nil
}

func (t *gitHubIssueTracker) CreateIssue(ctx context.Context, repo model.Repository, params CreateIssueParams) (*model.ExternalIssue, error) {
	req := &github.IssueRequest{
		Title: github.String(params.Title),
		Body:  github.String(params.Body),
	}
	if len(params.Labels) > 0 {
		labels := append([]string(nil), params.Labels...)
		req.Labels = &labels
	}

	created, _, err := t.client.Issues.Create(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		return nil, apiError("create issue", err)
	}

	issue := toExternalIssue(created)
	return &issue, nil
}

func (t *gitHubIssueTracker) CloseIssue(ctx context.Context, repo model.Repository, number int) error {
	_, _, err := t.client.Issues.Edit(ctx, repo.Owner, repo.Name, number, &github.IssueRequest{
		State: github.String(string(model.IssueStatusClosed)),
	})
	if err != nil {
		return apiError("close issue", err)
	}
	return nil
}

func (t *gitHubIssueTracker) CreateComment(ctx context.Context, repo model.Repository, number int, body string) error {
	_, _, err := t.client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return apiError("create comment", err)
	}
	return nil
}

func apiError(operation string, err error) error {
	if status, body, ok := githubapp.ResponseStatus(err); ok {
		return &apperr.ExternalAPIError{Operation: operation, StatusCode: status, Body: body}
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func toExternalIssue(issue *github.Issue) model.ExternalIssue {
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	assignees := make([]string, 0, len(issue.Assignees))
	for _, assignee := range issue.Assignees {
		assignees = append(assignees, assignee.GetLogin())
	}

	return model.ExternalIssue{
		ID:        issue.GetID(),
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     model.IssueStatus(issue.GetState()),
		Labels:    labels,
		Assignees: assignees,
		HTMLURL:   issue.GetHTMLURL(),
		Author:    issue.GetUser().GetLogin(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
}
