package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields added to every log record emitted
// with a context carrying them.
type LogFields struct {
	InstallationID *int64  // GitHub App installation
	Repository     *string // owner/name
	TrackedIssueID *int64  // internal github_issues id
	IssueNumber    *int    // GitHub issue number
	DeliveryID     *string // X-GitHub-Delivery
	EventType      *string // e.g. "issue_comment", "issues"
	Component      string  // e.g. "bridge.service.issue_sync"
}

// WithLogFields enriches ctx with structured log fields.
// Multiple calls merge; newer non-nil/non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.InstallationID != nil {
		result.InstallationID = next.InstallationID
	}
	if next.Repository != nil {
		result.Repository = next.Repository
	}
	if next.TrackedIssueID != nil {
		result.TrackedIssueID = next.TrackedIssueID
	}
	if next.IssueNumber != nil {
		result.IssueNumber = next.IssueNumber
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v.
// Useful inline: logger.WithLogFields(ctx, logger.LogFields{Repository: logger.Ptr(repo)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates s to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
