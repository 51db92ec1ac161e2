package dto

import (
	"time"

	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/service"
)

// ImportIssuesRequest imports IssueIDs, or every open issue when All is set.
type ImportIssuesRequest struct {
	UserID   int64 `json:"user_id,string" binding:"required"`
	IssueIDs []int `json:"issue_ids" binding:"omitempty,dive,min=1"`
	All      bool  `json:"all"`
}

type CreateIssueRequest struct {
	UserID int64  `json:"user_id,string" binding:"required"`
	Title  string `json:"title" binding:"required,max=256"`
	Body   string `json:"body" binding:"max=65000"`
}

type CloseIssueRequest struct {
	UserID      int64 `json:"user_id,string" binding:"required"`
	IssueNumber int   `json:"issue_number" binding:"required,min=1"`
}

type CloseTargetRequest struct {
	TrackedID   int64 `json:"tracked_id,string" binding:"required"`
	IssueNumber int   `json:"issue_number" binding:"required,min=1"`
}

type CloseIssuesRequest struct {
	UserID  int64                `json:"user_id,string" binding:"required"`
	Targets []CloseTargetRequest `json:"targets" binding:"required,min=1,dive"`
}

func (r CloseIssuesRequest) ToTargets() []service.CloseTarget {
	targets := make([]service.CloseTarget, len(r.Targets))
	for i, t := range r.Targets {
		targets[i] = service.CloseTarget{TrackedID: t.TrackedID, IssueNumber: t.IssueNumber}
	}
	return targets
}

type ExternalIssueResponse struct {
	ID        int64     `json:"id,string"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	Assignees []string  `json:"assignees"`
	HTMLURL   string    `json:"html_url"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToExternalIssueResponses(issues []model.ExternalIssue) []ExternalIssueResponse {
	out := make([]ExternalIssueResponse, len(issues))
	for i, issue := range issues {
		out[i] = ExternalIssueResponse{
			ID:        issue.ID,
			Number:    issue.Number,
			Title:     issue.Title,
			Body:      issue.Body,
			State:     string(issue.State),
			Labels:    issue.Labels,
			Assignees: issue.Assignees,
			HTMLURL:   issue.HTMLURL,
			Author:    issue.Author,
			CreatedAt: issue.CreatedAt,
			UpdatedAt: issue.UpdatedAt,
		}
	}
	return out
}

type ImportIssuesResponse struct {
	Imported int                  `json:"imported"`
	Skipped  int                  `json:"skipped"`
	Issues   []model.TrackedIssue `json:"issues"`
}

func ToImportIssuesResponse(result *service.ImportResult) ImportIssuesResponse {
	return ImportIssuesResponse{
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Issues:   result.Issues,
	}
}

type CreateIssueResponse struct {
	Issue   *model.TrackedIssue `json:"issue"`
	HTMLURL string              `json:"html_url"`
}

type CloseIssuesResponse struct {
	Results []service.CloseResult `json:"results"`
}
