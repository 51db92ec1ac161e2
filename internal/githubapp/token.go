package githubapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"

	"gitplumbers.app/bridge/internal/apperr"
)

// Token is an installation access token. It belongs to the logical
// operation that minted it and is never cached or persisted.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token can no longer authorize a call at now.
// A zero ExpiresAt is treated as unknown and never expires locally.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Broker exchanges app assertions for installation tokens.
type Broker struct {
	minter *Minter
	opts   ClientOptions
}

func NewBroker(minter *Minter, opts ClientOptions) *Broker {
	return &Broker{minter: minter, opts: opts}
}

// Exchange mints a fresh assertion and trades it for a token scoped to
// installationID with a single POST to the access_tokens endpoint.
// Non-success responses become *apperr.AuthError. Nothing is retried.
func (b *Broker) Exchange(ctx context.Context, installationID int64) (Token, error) {
	if installationID <= 0 {
		return Token{}, apperr.Required("installation_id")
	}

	assertion, err := b.minter.Mint()
	if err != nil {
		return Token{}, err
	}

	client, err := b.opts.NewClient(assertion, nil)
	if err != nil {
		return Token{}, &apperr.ConfigurationError{Setting: "GITHUB_API_BASE_URL", Reason: err.Error()}
	}

	token, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		if status, body, ok := ResponseStatus(err); ok {
			slog.WarnContext(ctx, "installation token request rejected",
				"installation_id", installationID,
				"status", status,
			)
			return Token{}, &apperr.AuthError{InstallationID: installationID, StatusCode: status, Body: body}
		}
		return Token{}, fmt.Errorf("requesting installation token: %w", err)
	}

	if token.GetToken() == "" {
		return Token{}, fmt.Errorf("installation %d: token exchange returned empty token", installationID)
	}

	return Token{
		Value:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// ResponseStatus extracts the HTTP status and GitHub's error detail from an
// error returned by go-github. ok is false for transport-level failures.
func ResponseStatus(err error) (status int, body string, ok bool) {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode, errorResponseBody(errResp), true
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		body := rateErr.Message
		if !rateErr.Rate.Reset.IsZero() {
			body += fmt.Sprintf(" (resets %s)", rateErr.Rate.Reset.UTC().Format(time.RFC3339))
		}
		return rateErr.Response.StatusCode, body, true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		body := abuseErr.Message
		if abuseErr.RetryAfter != nil {
			body += fmt.Sprintf(" (retry after %s)", *abuseErr.RetryAfter)
		}
		return abuseErr.Response.StatusCode, body, true
	}

	return 0, "", false
}

// errorResponseBody renders e.g.
// "Validation Failed: issue.title missing_field (https://docs.github.com/...)".
func errorResponseBody(errResp *github.ErrorResponse) string {
	var b strings.Builder
	b.WriteString(errResp.Message)

	for i, e := range errResp.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		switch {
		case e.Resource != "" || e.Field != "":
			b.WriteString(strings.Trim(e.Resource+"."+e.Field, "."))
			if e.Code != "" {
				b.WriteString(" " + e.Code)
			}
			if e.Message != "" {
				b.WriteString(": " + e.Message)
			}
		case e.Message != "":
			b.WriteString(e.Message)
		default:
			b.WriteString(e.Code)
		}
	}

	if errResp.DocumentationURL != "" {
		b.WriteString(" (" + errResp.DocumentationURL + ")")
	}
	return b.String()
}
