package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gitplumbers.app/bridge/core/db"
	"gitplumbers.app/bridge/internal/model"
)

const trackedIssueColumns = `id, external_issue_id, external_issue_url, title, body, status,
	repository_full_name, repository_url, user_id, user_email, user_name, installation_id,
	labels, assignees, comments, notes, external_created_at, external_updated_at,
	created_at, updated_at`

type trackedIssueStore struct {
	conn db.DBTX
}

func newTrackedIssueStore(conn db.DBTX) TrackedIssueStore {
	return &trackedIssueStore{conn: conn}
}

func (s *trackedIssueStore) GetByID(ctx context.Context, id int64) (*model.TrackedIssue, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+trackedIssueColumns+` FROM github_issues WHERE id = $1`, id)
	issue, err := scanTrackedIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (s *trackedIssueStore) GetByRepositoryAndExternalID(ctx context.Context, repository string, externalIssueID int) (*model.TrackedIssue, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+trackedIssueColumns+` FROM github_issues
		WHERE repository_full_name = $1 AND external_issue_id = $2`,
		repository, externalIssueID,
	)
	issue, err := scanTrackedIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (s *trackedIssueStore) ListByRepository(ctx context.Context, repository string) ([]model.TrackedIssue, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+trackedIssueColumns+` FROM github_issues
		WHERE repository_full_name = $1 ORDER BY created_at DESC`,
		repository,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []model.TrackedIssue
	for rows.Next() {
		issue, err := scanTrackedIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

func (s *trackedIssueStore) ListExternalIDsByRepository(ctx context.Context, repository string) (map[int]struct{}, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT external_issue_id FROM github_issues WHERE repository_full_name = $1`,
		repository,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var externalID int
		if err := rows.Scan(&externalID); err != nil {
			return nil, err
		}
		ids[externalID] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *trackedIssueStore) Insert(ctx context.Context, issue *model.TrackedIssue) (bool, error) {
	comments, err := marshalList(issue.Comments)
	if err != nil {
		return false, fmt.Errorf("marshal comments: %w", err)
	}
	notes, err := marshalList(issue.Notes)
	if err != nil {
		return false, fmt.Errorf("marshal notes: %w", err)
	}

	// The unique index on (repository_full_name, external_issue_id) turns a
	// lost race into a no-op rather than a duplicate.
	row := s.conn.QueryRow(ctx, `
		INSERT INTO github_issues (
			id, external_issue_id, external_issue_url, title, body, status,
			repository_full_name, repository_url, user_id, user_email, user_name, installation_id,
			labels, assignees, comments, notes, external_created_at, external_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (repository_full_name, external_issue_id) DO NOTHING
		RETURNING created_at, updated_at`,
		issue.ID, issue.ExternalIssueID, issue.ExternalIssueURL, issue.Title, issue.Body, string(issue.Status),
		issue.RepositoryFullName, issue.RepositoryURL, issue.UserID, issue.UserEmail, issue.UserName, issue.InstallationID,
		nonNil(issue.Labels), nonNil(issue.Assignees), comments, notes, issue.ExternalCreatedAt, issue.ExternalUpdatedAt,
	)

	if err := row.Scan(&issue.CreatedAt, &issue.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *trackedIssueStore) SetStatus(ctx context.Context, id int64, status model.IssueStatus) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE github_issues SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *trackedIssueStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM github_issues WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrackedIssue(row pgx.Row) (*model.TrackedIssue, error) {
	var (
		issue    model.TrackedIssue
		status   string
		comments []byte
		notes    []byte
	)

	if err := row.Scan(
		&issue.ID, &issue.ExternalIssueID, &issue.ExternalIssueURL, &issue.Title, &issue.Body, &status,
		&issue.RepositoryFullName, &issue.RepositoryURL, &issue.UserID, &issue.UserEmail, &issue.UserName, &issue.InstallationID,
		&issue.Labels, &issue.Assignees, &comments, &notes, &issue.ExternalCreatedAt, &issue.ExternalUpdatedAt,
		&issue.CreatedAt, &issue.UpdatedAt,
	); err != nil {
		return nil, err
	}

	issue.Status = model.IssueStatus(status)

	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &issue.Comments); err != nil {
			return nil, fmt.Errorf("unmarshal comments: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &issue.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
	}

	return &issue, nil
}

// marshalList encodes a nil slice as [] so the column never holds null.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
