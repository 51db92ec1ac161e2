package model

import "time"

// ExternalIssue is a GitHub issue as read from the issues API. It is
// owned by GitHub; the bridge only ever requests the close transition.
type ExternalIssue struct {
	ID        int64       `json:"id"`
	Number    int         `json:"number"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	State     IssueStatus `json:"state"`
	Labels    []string    `json:"labels"`
	Assignees []string    `json:"assignees"`
	HTMLURL   string      `json:"html_url"`
	Author    string      `json:"author"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Repository identifies a GitHub repository by owner and name.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// HTMLURL is the browsable URL of the repository on github.com.
func (r Repository) HTMLURL() string {
	return "https://github.com/" + r.FullName()
}
