package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gitplumbers.app/bridge/internal/command"
	"gitplumbers.app/bridge/internal/http/handler/webhook"
	"gitplumbers.app/bridge/internal/mapper"
	"gitplumbers.app/bridge/internal/service"
)

const webhookSecret = "s3cret"

const commentPayload = `{
	"action": "created",
	"issue": {"number": 7},
	"comment": {"id": 99, "body": "/gp triage"},
	"repository": {"name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}},
	"installation": {"id": 12345},
	"sender": {"login": "octocat", "type": "User"}
}`

const issuesPayload = `{
	"action": "opened",
	"issue": {"number": 8},
	"repository": {"name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}},
	"installation": {"id": 12345},
	"sender": {"login": "octocat", "type": "User"}
}`

type fakeGuard struct {
	seen     map[string]bool
	released []string
	err      error
}

func (g *fakeGuard) Claim(_ context.Context, deliveryID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[deliveryID] {
		return false, nil
	}
	g.seen[deliveryID] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, deliveryID string) error {
	delete(g.seen, deliveryID)
	g.released = append(g.released, deliveryID)
	return nil
}

type fakeDispatcher struct {
	comments  []service.CommentEvent
	issues    []service.IssueEvent
	commentFn func(event service.CommentEvent) (*service.DispatchResult, error)
}

func (d *fakeDispatcher) HandleComment(_ context.Context, event service.CommentEvent) (*service.DispatchResult, error) {
	d.comments = append(d.comments, event)
	if d.commentFn != nil {
		return d.commentFn(event)
	}
	return &service.DispatchResult{Command: &command.Command{Kind: command.KindTriage}, Acknowledged: true, EventsEnqueued: 1}, nil
}

func (d *fakeDispatcher) HandleIssue(_ context.Context, event service.IssueEvent) error {
	d.issues = append(d.issues, event)
	return nil
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		router     *gin.Engine
		guard      *fakeGuard
		dispatcher *fakeDispatcher
	)

	send := func(eventType, deliveryID, body, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-GitHub-Event", eventType)
		if deliveryID != "" {
			req.Header.Set("X-GitHub-Delivery", deliveryID)
		}
		req.Header.Set("X-Hub-Signature-256", signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		guard = &fakeGuard{seen: map[string]bool{}}
		dispatcher = &fakeDispatcher{}
		h := webhook.NewGitHubWebhookHandler(webhookSecret, guard, mapper.NewGitHubEventMapper(), dispatcher)
		router.POST("/webhooks/github", h.HandleEvent)
	})

	It("rejects a payload with a bad signature", func() {
		w := send("issue_comment", "d-1", commentPayload, sign("wrong", commentPayload))

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(dispatcher.comments).To(BeEmpty())
		Expect(guard.seen).To(BeEmpty())
	})

	It("dispatches a signed comment", func() {
		w := send("issue_comment", "d-1", commentPayload, sign(webhookSecret, commentPayload))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(dispatcher.comments).To(HaveLen(1))
		event := dispatcher.comments[0]
		Expect(event.InstallationID).To(Equal(int64(12345)))
		Expect(event.Repository.FullName()).To(Equal("acme/widgets"))
		Expect(event.IssueNumber).To(Equal(7))
		Expect(event.Body).To(Equal("/gp triage"))
		Expect(event.SenderIsBot).To(BeFalse())
	})

	It("dispatches an opened issue", func() {
		w := send("issues", "d-2", issuesPayload, sign(webhookSecret, issuesPayload))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(dispatcher.issues).To(HaveLen(1))
		Expect(dispatcher.issues[0].Action).To(Equal("opened"))
		Expect(dispatcher.issues[0].IssueNumber).To(Equal(8))
	})

	It("does not dispatch a redelivered event twice", func() {
		first := send("issue_comment", "d-1", commentPayload, sign(webhookSecret, commentPayload))
		second := send("issue_comment", "d-1", commentPayload, sign(webhookSecret, commentPayload))

		Expect(first.Code).To(Equal(http.StatusOK))
		Expect(second.Code).To(Equal(http.StatusOK))
		Expect(second.Body.String()).To(ContainSubstring("duplicate"))
		Expect(dispatcher.comments).To(HaveLen(1))
	})

	It("acknowledges events it does not handle", func() {
		body := `{"action": "created"}`
		w := send("star", "d-3", body, sign(webhookSecret, body))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("ignored"))
		Expect(guard.seen).To(BeEmpty())
	})

	It("answers ping", func() {
		body := `{"zen": "Keep it logically awesome."}`
		w := send("ping", "d-4", body, sign(webhookSecret, body))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("pong"))
	})

	It("requires a delivery id", func() {
		w := send("issue_comment", "", commentPayload, sign(webhookSecret, commentPayload))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a malformed payload", func() {
		body := `{"action": `
		w := send("issue_comment", "d-5", body, sign(webhookSecret, body))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("releases the delivery when dispatch fails so a redelivery is retried", func() {
		dispatcher.commentFn = func(service.CommentEvent) (*service.DispatchResult, error) {
			return nil, errors.New("redis unavailable")
		}

		w := send("issue_comment", "d-6", commentPayload, sign(webhookSecret, commentPayload))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(guard.released).To(Equal([]string{"d-6"}))

		dispatcher.commentFn = nil
		retry := send("issue_comment", "d-6", commentPayload, sign(webhookSecret, commentPayload))

		Expect(retry.Code).To(Equal(http.StatusOK))
		Expect(dispatcher.comments).To(HaveLen(2))
	})

	It("keeps the delivery claimed when the ack was posted before enqueue failed", func() {
		dispatcher.commentFn = func(service.CommentEvent) (*service.DispatchResult, error) {
			return &service.DispatchResult{Acknowledged: true}, errors.New("redis unavailable")
		}

		w := send("issue_comment", "d-8", commentPayload, sign(webhookSecret, commentPayload))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(guard.released).To(BeEmpty())

		dispatcher.commentFn = nil
		retry := send("issue_comment", "d-8", commentPayload, sign(webhookSecret, commentPayload))

		Expect(retry.Code).To(Equal(http.StatusOK))
		Expect(retry.Body.String()).To(MatchJSON(`{"status":"duplicate"}`))
		Expect(dispatcher.comments).To(HaveLen(1))
	})

	It("returns 503 when the delivery store is unreachable", func() {
		guard.err = errors.New("connection refused")

		w := send("issue_comment", "d-7", commentPayload, sign(webhookSecret, commentPayload))

		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(dispatcher.comments).To(BeEmpty())
	})
})
