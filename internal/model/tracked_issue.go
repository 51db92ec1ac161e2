package model

import "time"

type IssueStatus string

const (
	IssueStatusOpen   IssueStatus = "open"
	IssueStatusClosed IssueStatus = "closed"
)

// Comment is a support-side reply attached to a tracked issue.
type Comment struct {
	ID        int64     `json:"id,string"`
	AuthorID  int64     `json:"author_id,string"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is an internal annotation never mirrored to GitHub.
type Note struct {
	ID        int64     `json:"id,string"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackedIssue is the internal mirror of one GitHub issue. At most one
// exists per (RepositoryFullName, ExternalIssueID).
type TrackedIssue struct {
	ID                 int64       `json:"id,string"`
	ExternalIssueID    int         `json:"external_issue_id"`
	ExternalIssueURL   string      `json:"external_issue_url"`
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Status             IssueStatus `json:"status"`
	RepositoryFullName string      `json:"repository_full_name"`
	RepositoryURL      string      `json:"repository_url"`
	InstallationID     int64       `json:"installation_id,string"`

	// Requester attribution. Imported issues may carry empty values when the
	// profile lookup failed.
	UserID    *int64 `json:"user_id,string,omitempty"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`

	Labels    []string  `json:"labels"`
	Assignees []string  `json:"assignees"`
	Comments  []Comment `json:"comments"`
	Notes     []Note    `json:"notes"`

	ExternalCreatedAt *time.Time `json:"external_created_at,omitempty"`
	ExternalUpdatedAt *time.Time `json:"external_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
