package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/internal/apperr"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
)

// respondError maps the typed failures of the service layer onto HTTP
// statuses. Upstream GitHub failures are reported as 502.
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var (
		validationErr *apperr.ValidationError
		notFoundErr   *apperr.NotFoundError
		authErr       *apperr.AuthError
		apiErr        *apperr.ExternalAPIError
		configErr     *apperr.ConfigurationError
		signingErr    *apperr.SigningError
	)

	switch {
	case errors.Is(err, apperr.ErrIdentityMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "identity_mismatch"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &authErr):
		slog.WarnContext(ctx, "github app token request rejected",
			"installation_id", authErr.InstallationID,
			"status", authErr.StatusCode,
			"body", authErr.Body,
		)
		if authErr.InstallationNotFound() {
			c.JSON(http.StatusNotFound, gin.H{"error": "installation not found", "code": "installation_not_found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "github app authentication failed", "code": "github_auth_failed"})
	case errors.As(err, &apiErr):
		slog.WarnContext(ctx, "github api call failed",
			"operation", apiErr.Operation,
			"status", apiErr.StatusCode,
			"body", apiErr.Body,
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Error(), "upstream_status": apiErr.StatusCode})
	case errors.Is(err, issue_tracker.ErrTokenExpired):
		c.JSON(http.StatusBadGateway, gin.H{"error": "installation token expired before the request completed"})
	case errors.As(err, &configErr), errors.As(err, &signingErr):
		slog.ErrorContext(ctx, "github app misconfigured", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "github app is not configured correctly"})
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
