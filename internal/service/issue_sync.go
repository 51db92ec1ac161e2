package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gitplumbers.app/bridge/common/id"
	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/internal/apperr"
	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
	"gitplumbers.app/bridge/internal/store"
)

// ImportResult reports one import run. Imported counts only records this
// run actually inserted.
type ImportResult struct {
	Imported int                  `json:"imported"`
	Skipped  int                  `json:"skipped"`
	Issues   []model.TrackedIssue `json:"issues"`
}

type IssueSyncService interface {
	// ListAvailableExternalIssues returns open GitHub issues not yet tracked.
	ListAvailableExternalIssues(ctx context.Context, installationID int64, repo model.Repository) ([]model.ExternalIssue, error)
	ImportSelectedIssues(ctx context.Context, installationID int64, repo model.Repository, issueNumbers []int, requestingUserID int64) (*ImportResult, error)
	ImportAllOpenIssues(ctx context.Context, installationID int64, repo model.Repository, requestingUserID int64) (*ImportResult, error)
	ListTrackedIssues(ctx context.Context, repo model.Repository) ([]model.TrackedIssue, error)
}

type issueSyncService struct {
	connector issue_tracker.Connector
	issues    store.TrackedIssueStore
	users     store.UserStore
	txRunner  TxRunner
	locks     *keyedMutex
}

func NewIssueSyncService(
	connector issue_tracker.Connector,
	issues store.TrackedIssueStore,
	users store.UserStore,
	txRunner TxRunner,
	locks *keyedMutex,
) IssueSyncService {
	if locks == nil {
		locks = newKeyedMutex()
	}
	return &issueSyncService{
		connector: connector,
		issues:    issues,
		users:     users,
		txRunner:  txRunner,
		locks:     locks,
	}
}

func (s *issueSyncService) ListAvailableExternalIssues(ctx context.Context, installationID int64, repo model.Repository) ([]model.ExternalIssue, error) {
	if err := validateTarget(installationID, repo); err != nil {
		return nil, err
	}

	ctx = withSyncFields(ctx, installationID, repo)
	sc := logger.StartSpan(ctx, "issue_sync.list_available", syncAttributes(installationID, repo)...)
	defer sc.End()
	ctx = sc.Context()

	tracker, err := s.connector.Connect(ctx, installationID)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	open, err := tracker.ListOpenIssues(ctx, repo)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	tracked, err := s.issues.ListExternalIDsByRepository(ctx, repo.FullName())
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("listing tracked issues: %w", err)
	}

	available := make([]model.ExternalIssue, 0, len(open))
	for _, issue := range open {
		if _, ok := tracked[issue.Number]; ok {
			continue
		}
		available = append(available, issue)
	}

	slog.InfoContext(ctx, "listed available issues",
		"open", len(open),
		"tracked", len(tracked),
		"available", len(available),
	)

	return available, nil
}

func (s *issueSyncService) ImportSelectedIssues(ctx context.Context, installationID int64, repo model.Repository, issueNumbers []int, requestingUserID int64) (*ImportResult, error) {
	if len(issueNumbers) == 0 {
		return nil, apperr.Required("issue_ids")
	}

	selected := make(map[int]struct{}, len(issueNumbers))
	for _, number := range issueNumbers {
		selected[number] = struct{}{}
	}

	return s.importIssues(ctx, "issue_sync.import_selected", installationID, repo, selected, requestingUserID)
}

func (s *issueSyncService) ImportAllOpenIssues(ctx context.Context, installationID int64, repo model.Repository, requestingUserID int64) (*ImportResult, error) {
	return s.importIssues(ctx, "issue_sync.import_all", installationID, repo, nil, requestingUserID)
}

func (s *issueSyncService) ListTrackedIssues(ctx context.Context, repo model.Repository) ([]model.TrackedIssue, error) {
	if repo.Owner == "" || repo.Name == "" {
		return nil, apperr.Required("repository")
	}

	issues, err := s.issues.ListByRepository(ctx, repo.FullName())
	if err != nil {
		return nil, fmt.Errorf("listing tracked issues: %w", err)
	}
	return issues, nil
}

// importIssues imports every fetched open issue whose number is in
// selected, or all of them when selected is nil.
func (s *issueSyncService) importIssues(ctx context.Context, spanName string, installationID int64, repo model.Repository, selected map[int]struct{}, requestingUserID int64) (*ImportResult, error) {
	if err := validateTarget(installationID, repo); err != nil {
		return nil, err
	}

	ctx = withSyncFields(ctx, installationID, repo)
	sc := logger.StartSpan(ctx, spanName, append(syncAttributes(installationID, repo),
		attribute.Int("selected", len(selected)),
	)...)
	defer sc.End()
	ctx = sc.Context()

	tracker, err := s.connector.Connect(ctx, installationID)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	open, err := tracker.ListOpenIssues(ctx, repo)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	candidates := make([]model.ExternalIssue, 0, len(open))
	for _, issue := range open {
		if issue.State != model.IssueStatusOpen {
			continue
		}
		if selected != nil {
			if _, ok := selected[issue.Number]; !ok {
				continue
			}
		}
		candidates = append(candidates, issue)
	}

	result := &ImportResult{Issues: []model.TrackedIssue{}}
	if len(candidates) == 0 {
		slog.InfoContext(ctx, "no issues to import", "open", len(open))
		return result, nil
	}

	requester := s.lookupRequester(ctx, requestingUserID)

	unlock := s.locks.Lock(repo.FullName())
	defer unlock()

	for _, issue := range candidates {
		record := newImportedRecord(installationID, repo, issue, requester)

		inserted, err := s.insertIfAbsent(ctx, record)
		if err != nil {
			sc.RecordError(err)
			slog.WarnContext(ctx, "issue import stopped", "imported", result.Imported, "skipped", result.Skipped)
			return result, fmt.Errorf("importing issue #%d: %w", issue.Number, err)
		}
		if !inserted {
			result.Skipped++
			continue
		}

		result.Imported++
		result.Issues = append(result.Issues, *record)
	}

	slog.InfoContext(ctx, "issue import completed",
		"open", len(open),
		"candidates", len(candidates),
		"imported", result.Imported,
		"skipped", result.Skipped,
	)

	return result, nil
}

// insertIfAbsent runs the existence check and the insert as one unit. The
// unique index still rejects a concurrent insert from another process.
func (s *issueSyncService) insertIfAbsent(ctx context.Context, record *model.TrackedIssue) (bool, error) {
	var inserted bool
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		issues := stores.TrackedIssues()

		_, err := issues.GetByRepositoryAndExternalID(ctx, record.RepositoryFullName, record.ExternalIssueID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking existing record: %w", err)
		}

		inserted, err = issues.Insert(ctx, record)
		return err
	})
	return inserted, err
}

// lookupRequester never fails the import. A missing or unreadable profile
// leaves the identity fields empty.
func (s *issueSyncService) lookupRequester(ctx context.Context, userID int64) *model.User {
	if userID <= 0 {
		slog.WarnContext(ctx, "import requested without a user id; identity fields left empty")
		return nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "user profile lookup failed; identity fields left empty",
			"error", err,
			"user_id", userID,
		)
		return nil
	}
	return user
}

func newImportedRecord(installationID int64, repo model.Repository, issue model.ExternalIssue, requester *model.User) *model.TrackedIssue {
	record := &model.TrackedIssue{
		ID:                 id.New(),
		ExternalIssueID:    issue.Number,
		ExternalIssueURL:   issue.HTMLURL,
		Title:              issue.Title,
		Body:               issue.Body,
		Status:             model.IssueStatusOpen,
		RepositoryFullName: repo.FullName(),
		RepositoryURL:      repo.HTMLURL(),
		InstallationID:     installationID,
		Labels:             issue.Labels,
		Assignees:          issue.Assignees,
		Comments:           []model.Comment{},
		Notes:              []model.Note{},
		ExternalCreatedAt:  timePtr(issue.CreatedAt),
		ExternalUpdatedAt:  timePtr(issue.UpdatedAt),
	}

	if requester != nil {
		record.UserID = &requester.ID
		record.UserEmail = requester.Email
		record.UserName = requester.Name
	}

	return record
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func validateTarget(installationID int64, repo model.Repository) error {
	if installationID <= 0 {
		return apperr.Required("installation_id")
	}
	if repo.Owner == "" || repo.Name == "" {
		return apperr.Required("repository")
	}
	return nil
}

func withSyncFields(ctx context.Context, installationID int64, repo model.Repository) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(installationID),
		Repository:     logger.Ptr(repo.FullName()),
		Component:      "bridge.service.issue_sync",
	})
}

func syncAttributes(installationID int64, repo model.Repository) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("installation_id", installationID),
		attribute.String("repository", repo.FullName()),
	}
}
