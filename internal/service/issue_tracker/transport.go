package issue_tracker

import (
	"errors"
	"net/http"
	"time"
)

// ErrTokenExpired is returned, wrapped in the client's *url.Error, when a
// request is attempted after the installation token's expiry.
var ErrTokenExpired = errors.New("installation token expired")

type expiryTransport struct {
	expiresAt time.Time
	now       func() time.Time
	base      http.RoundTripper
}

func (t *expiryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.expiresAt.IsZero() && !t.now().Before(t.expiresAt) {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, ErrTokenExpired
	}
	return t.base.RoundTrip(req)
}
