package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/internal/apperr"
	"gitplumbers.app/bridge/internal/http/dto"
	"gitplumbers.app/bridge/internal/http/middleware"
	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/service"
)

type IssueHandler struct {
	sync      service.IssueSyncService
	lifecycle service.IssueLifecycleService
}

func NewIssueHandler(sync service.IssueSyncService, lifecycle service.IssueLifecycleService) *IssueHandler {
	return &IssueHandler{sync: sync, lifecycle: lifecycle}
}

func (h *IssueHandler) ListAvailable(c *gin.Context) {
	installationID, repo, ok := h.target(c)
	if !ok {
		return
	}

	issues, err := h.sync.ListAvailableExternalIssues(c.Request.Context(), installationID, repo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": dto.ToExternalIssueResponses(issues)})
}

func (h *IssueHandler) ListTracked(c *gin.Context) {
	_, repo, ok := h.target(c)
	if !ok {
		return
	}

	issues, err := h.sync.ListTrackedIssues(c.Request.Context(), repo)
	if err != nil {
		respondError(c, err)
		return
	}
	if issues == nil {
		issues = []model.TrackedIssue{}
	}

	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

func (h *IssueHandler) Import(c *gin.Context) {
	installationID, repo, ok := h.target(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.ImportIssuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.UserID) {
		return
	}
	if req.All == (len(req.IssueIDs) > 0) {
		respondError(c, &apperr.ValidationError{Field: "issue_ids", Reason: "provide issue_ids or set all, not both"})
		return
	}

	var (
		result *service.ImportResult
		err    error
	)
	if req.All {
		result, err = h.sync.ImportAllOpenIssues(ctx, installationID, repo, req.UserID)
	} else {
		result, err = h.sync.ImportSelectedIssues(ctx, installationID, repo, req.IssueIDs, req.UserID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToImportIssuesResponse(result))
}

func (h *IssueHandler) Create(c *gin.Context) {
	installationID, repo, ok := h.target(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.UserID) {
		return
	}

	result, err := h.lifecycle.CreateIssue(ctx, service.CreateIssueParams{
		InstallationID: installationID,
		Repository:     repo,
		Title:          req.Title,
		Body:           req.Body,
		User:           middleware.GetUser(ctx),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateIssueResponse{Issue: result.Issue, HTMLURL: result.HTMLURL})
}

func (h *IssueHandler) Close(c *gin.Context) {
	installationID, repo, ok := h.target(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	trackedID, err := strconv.ParseInt(c.Param("tracked_id"), 10, 64)
	if err != nil || trackedID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracked issue id"})
		return
	}

	var req dto.CloseIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.UserID) {
		return
	}

	err = h.lifecycle.CloseIssue(ctx, service.CloseIssueParams{
		InstallationID: installationID,
		Repository:     repo,
		TrackedID:      trackedID,
		IssueNumber:    req.IssueNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tracked_id": strconv.FormatInt(trackedID, 10), "status": "closed"})
}

func (h *IssueHandler) CloseSelected(c *gin.Context) {
	installationID, repo, ok := h.target(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.CloseIssuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.UserID) {
		return
	}

	results, err := h.lifecycle.CloseSelectedIssues(ctx, installationID, repo, req.ToTargets())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CloseIssuesResponse{Results: results})
}

// target reads the installation and repository path parameters and adds
// them to the request's log fields.
func (h *IssueHandler) target(c *gin.Context) (int64, model.Repository, bool) {
	installationID, err := strconv.ParseInt(c.Param("installation_id"), 10, 64)
	if err != nil || installationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation id"})
		return 0, model.Repository{}, false
	}

	repo := model.Repository{Owner: c.Param("owner"), Name: c.Param("repo")}

	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		InstallationID: logger.Ptr(installationID),
		Repository:     logger.Ptr(repo.FullName()),
	})
	c.Request = c.Request.WithContext(ctx)

	return installationID, repo, true
}

// authorize rejects requests whose user_id is not the session's user.
func (h *IssueHandler) authorize(c *gin.Context, userID int64) bool {
	user := middleware.GetUser(c.Request.Context())
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return false
	}
	if user.ID != userID {
		slog.WarnContext(c.Request.Context(), "user_id does not match session",
			"session_user_id", user.ID,
			"user_id", userID,
		)
		respondError(c, apperr.IdentityMismatch())
		return false
	}
	return true
}
