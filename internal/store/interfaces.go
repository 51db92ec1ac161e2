package store

import (
	"context"
	"errors"

	"gitplumbers.app/bridge/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// TrackedIssueStore is the githubIssues collection.
type TrackedIssueStore interface {
	GetByID(ctx context.Context, id int64) (*model.TrackedIssue, error)
	GetByRepositoryAndExternalID(ctx context.Context, repository string, externalIssueID int) (*model.TrackedIssue, error)
	ListByRepository(ctx context.Context, repository string) ([]model.TrackedIssue, error)
	// ListExternalIDsByRepository returns the external issue ids already
	// tracked for repository, for bulk existence checks.
	ListExternalIDsByRepository(ctx context.Context, repository string) (map[int]struct{}, error)
	// Insert stores issue unless a record for the same repository and
	// external issue id exists. inserted is false in that case.
	Insert(ctx context.Context, issue *model.TrackedIssue) (inserted bool, err error)
	SetStatus(ctx context.Context, id int64, status model.IssueStatus) error
	Delete(ctx context.Context, id int64) error
}

// UserStore defines the contract for user profile access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	UpsertByWorkOSID(ctx context.Context, user *model.User) error
}

// SessionStore defines the contract for session data access
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	GetValidByTokenHash(ctx context.Context, tokenHash []byte) (*model.Session, error) // checks expiry
	DeleteByTokenHash(ctx context.Context, tokenHash []byte) error
}
