package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"gitplumbers.app/bridge/common/id"
	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/core/config"
	"gitplumbers.app/bridge/internal/apperr"
	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
	"gitplumbers.app/bridge/internal/store"
)

const (
	// SupportRequestFooter is appended to the body of every issue the bridge opens.
	SupportRequestFooter = "\n\n---\n_Created via GitPlumbers support request_"

	closeConcurrency = 4
)

// SupportRequestLabels are applied to every issue the bridge opens.
var SupportRequestLabels = []string{"gitplumbers", "support-request"}

type CreateIssueParams struct {
	InstallationID int64
	Repository     model.Repository
	Title          string
	Body           string
	User           *model.User
}

type CreateIssueResult struct {
	Issue   *model.TrackedIssue
	HTMLURL string
}

type CloseIssueParams struct {
	InstallationID int64
	Repository     model.Repository
	TrackedID      int64
	IssueNumber    int
}

type CloseTarget struct {
	TrackedID   int64 `json:"tracked_id,string"`
	IssueNumber int   `json:"issue_number"`
}

// CloseResult is the outcome for one target of CloseSelectedIssues.
type CloseResult struct {
	TrackedID int64  `json:"tracked_id,string"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type IssueLifecycleService interface {
	CreateIssue(ctx context.Context, params CreateIssueParams) (*CreateIssueResult, error)
	CloseIssue(ctx context.Context, params CloseIssueParams) error
	// CloseSelectedIssues closes each target independently under one token.
	// Only a token failure fails the call as a whole.
	CloseSelectedIssues(ctx context.Context, installationID int64, repo model.Repository, targets []CloseTarget) ([]CloseResult, error)
}

type issueLifecycleService struct {
	connector issue_tracker.Connector
	issues    store.TrackedIssueStore
	retention config.CloseRetention
}

func NewIssueLifecycleService(connector issue_tracker.Connector, issues store.TrackedIssueStore, retention config.CloseRetention) IssueLifecycleService {
	if retention == "" {
		retention = config.CloseRetentionDelete
	}
	return &issueLifecycleService{
		connector: connector,
		issues:    issues,
		retention: retention,
	}
}

func (s *issueLifecycleService) CreateIssue(ctx context.Context, params CreateIssueParams) (*CreateIssueResult, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}

	repo := params.Repository
	ctx = withLifecycleFields(ctx, params.InstallationID, repo)

	tracker, err := s.connector.Connect(ctx, params.InstallationID)
	if err != nil {
		return nil, err
	}

	external, err := tracker.CreateIssue(ctx, repo, issue_tracker.CreateIssueParams{
		Title:  params.Title,
		Body:   params.Body + SupportRequestFooter,
		Labels: SupportRequestLabels,
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{IssueNumber: logger.Ptr(external.Number)})

	user := params.User
	record := &model.TrackedIssue{
		ID:                 id.New(),
		ExternalIssueID:    external.Number,
		ExternalIssueURL:   external.HTMLURL,
		Title:              external.Title,
		Body:               external.Body,
		Status:             model.IssueStatusOpen,
		RepositoryFullName: repo.FullName(),
		RepositoryURL:      repo.HTMLURL(),
		InstallationID:     params.InstallationID,
		UserID:             &user.ID,
		UserEmail:          user.Email,
		UserName:           user.Name,
		Labels:             external.Labels,
		Assignees:          external.Assignees,
		Comments:           []model.Comment{},
		Notes:              []model.Note{},
		ExternalCreatedAt:  timePtr(external.CreatedAt),
		ExternalUpdatedAt:  timePtr(external.UpdatedAt),
	}

	inserted, err := s.issues.Insert(ctx, record)
	if err != nil {
		slog.ErrorContext(ctx, "issue created on github but not recorded", "error", err)
		return nil, fmt.Errorf("recording created issue: %w", err)
	}
	if !inserted {
		slog.ErrorContext(ctx, "issue created on github but already tracked")
		return nil, fmt.Errorf("recording created issue: #%d is already tracked for %s", external.Number, repo.FullName())
	}

	slog.InfoContext(ctx, "support issue created",
		"tracked_issue_id", record.ID,
		"user_id", user.ID,
	)

	return &CreateIssueResult{Issue: record, HTMLURL: external.HTMLURL}, nil
}

func (s *issueLifecycleService) CloseIssue(ctx context.Context, params CloseIssueParams) error {
	if err := validateTarget(params.InstallationID, params.Repository); err != nil {
		return err
	}
	target := CloseTarget{TrackedID: params.TrackedID, IssueNumber: params.IssueNumber}
	if err := validateCloseTarget(target); err != nil {
		return err
	}

	ctx = withLifecycleFields(ctx, params.InstallationID, params.Repository)

	// Check the record before spending a token on it.
	if _, err := s.loadForClose(ctx, params.Repository, target); err != nil {
		return err
	}

	tracker, err := s.connector.Connect(ctx, params.InstallationID)
	if err != nil {
		return err
	}

	return s.closeOne(ctx, tracker, params.Repository, target)
}

func (s *issueLifecycleService) CloseSelectedIssues(ctx context.Context, installationID int64, repo model.Repository, targets []CloseTarget) ([]CloseResult, error) {
	if err := validateTarget(installationID, repo); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, apperr.Required("targets")
	}

	ctx = withLifecycleFields(ctx, installationID, repo)
	sc := logger.StartSpan(ctx, "issue_lifecycle.close_selected",
		attribute.Int64("installation_id", installationID),
		attribute.String("repository", repo.FullName()),
		attribute.Int("targets", len(targets)),
	)
	defer sc.End()
	ctx = sc.Context()

	tracker, err := s.connector.Connect(ctx, installationID)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	results := make([]CloseResult, len(targets))

	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = CloseResult{TrackedID: target.TrackedID, Success: true}

			err := validateCloseTarget(target)
			if err == nil {
				_, err = s.loadForClose(ctx, repo, target)
			}
			if err == nil {
				err = s.closeOne(ctx, tracker, repo, target)
			}
			if err != nil {
				results[i].Success = false
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}
	slog.InfoContext(ctx, "selected issues closed",
		"targets", len(targets),
		"failed", failed,
	)

	return results, nil
}

func (s *issueLifecycleService) loadForClose(ctx context.Context, repo model.Repository, target CloseTarget) (*model.TrackedIssue, error) {
	record, err := s.issues.GetByID(ctx, target.TrackedID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &apperr.NotFoundError{Resource: "tracked issue", ID: strconv.FormatInt(target.TrackedID, 10)}
		}
		return nil, fmt.Errorf("loading tracked issue: %w", err)
	}

	if record.RepositoryFullName != repo.FullName() || record.ExternalIssueID != target.IssueNumber {
		return nil, &apperr.ValidationError{
			Field:  "issue_number",
			Reason: fmt.Sprintf("tracked issue %d is %s#%d", record.ID, record.RepositoryFullName, record.ExternalIssueID),
		}
	}

	return record, nil
}

// closeOne closes the issue on GitHub and then applies the retention
// policy. The record is untouched when GitHub rejects the close.
func (s *issueLifecycleService) closeOne(ctx context.Context, tracker issue_tracker.IssueTracker, repo model.Repository, target CloseTarget) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TrackedIssueID: logger.Ptr(target.TrackedID),
		IssueNumber:    logger.Ptr(target.IssueNumber),
	})

	if err := tracker.CloseIssue(ctx, repo, target.IssueNumber); err != nil {
		slog.WarnContext(ctx, "github rejected issue close", "error", err)
		return err
	}

	var err error
	switch s.retention {
	case config.CloseRetentionMarkClosed:
		err = s.issues.SetStatus(ctx, target.TrackedID, model.IssueStatusClosed)
	default:
		err = s.issues.Delete(ctx, target.TrackedID)
	}
	if err != nil {
		// GitHub already reports the issue closed; the record now disagrees.
		slog.ErrorContext(ctx, "issue closed on github but tracked record not updated",
			"error", err,
			"retention", s.retention,
		)
		return fmt.Errorf("updating tracked issue after close: %w", err)
	}

	slog.InfoContext(ctx, "issue closed", "retention", s.retention)
	return nil
}

func validateCreate(params CreateIssueParams) error {
	if err := validateTarget(params.InstallationID, params.Repository); err != nil {
		return err
	}
	if strings.TrimSpace(params.Title) == "" {
		return apperr.Required("title")
	}
	if params.User == nil || params.User.ID <= 0 {
		return apperr.Required("user_id")
	}
	if params.User.Email == "" {
		return apperr.Required("user_email")
	}
	if params.User.Name == "" {
		return apperr.Required("user_name")
	}
	return nil
}

func validateCloseTarget(target CloseTarget) error {
	if target.TrackedID <= 0 {
		return apperr.Required("tracked_id")
	}
	if target.IssueNumber <= 0 {
		return apperr.Required("issue_number")
	}
	return nil
}

func withLifecycleFields(ctx context.Context, installationID int64, repo model.Repository) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(installationID),
		Repository:     logger.Ptr(repo.FullName()),
		Component:      "bridge.service.issue_lifecycle",
	})
}
