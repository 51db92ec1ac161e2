package middleware_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/internal/http/middleware"
	"gitplumbers.app/bridge/internal/model"
)

// captureLogs routes the default logger through the production TraceHandler
// into a buffer for the rest of the spec.
func captureLogs() *bytes.Buffer {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(logger.NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	DeferCleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func logRecord(buf *bytes.Buffer, msg string) map[string]any {
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var record map[string]any
		Expect(json.Unmarshal(scanner.Bytes(), &record)).To(Succeed())
		if record["msg"] == msg {
			return record
		}
	}
	Fail("no log record with msg " + msg)
	return nil
}

func webhookRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("X-GitHub-Delivery", "d-42")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	return req
}

var _ = Describe("Logger", func() {
	var (
		buf    *bytes.Buffer
		router *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		buf = captureLogs()
		router = gin.New()
	})

	It("tags a GitHub delivery before the handler runs", func() {
		router.Use(middleware.Logger())
		router.POST("/webhooks/github", func(c *gin.Context) {
			slog.InfoContext(c.Request.Context(), "handling delivery")
			c.Status(http.StatusAccepted)
		})

		router.ServeHTTP(httptest.NewRecorder(), webhookRequest("/webhooks/github"))

		handled := logRecord(buf, "handling delivery")
		Expect(handled).To(HaveKeyWithValue("delivery_id", "d-42"))
		Expect(handled).To(HaveKeyWithValue("event_type", "issue_comment"))

		request := logRecord(buf, "request")
		Expect(request).To(HaveKeyWithValue("delivery_id", "d-42"))
		Expect(request).To(HaveKeyWithValue("event_type", "issue_comment"))
		Expect(request).To(HaveKeyWithValue("route", "/webhooks/github"))
		Expect(request).To(HaveKeyWithValue("status", BeNumerically("==", http.StatusAccepted)))
	})

	It("logs the fields and user a handler attached to the request", func() {
		router.Use(middleware.Logger())
		router.GET("/installations/:installation_id/issues", func(c *gin.Context) {
			ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
				InstallationID: logger.Ptr(int64(12345)),
				Repository:     logger.Ptr("acme/widgets"),
			})
			c.Request = c.Request.WithContext(middleware.WithUser(ctx, &model.User{ID: 7}, 31))
			c.Status(http.StatusNotFound)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/installations/12345/issues", nil))

		record := logRecord(buf, "request error")
		Expect(record).To(HaveKeyWithValue("level", "WARN"))
		Expect(record).To(HaveKeyWithValue("repository", "acme/widgets"))
		Expect(record).To(HaveKeyWithValue("installation_id", BeNumerically("==", 12345)))
		Expect(record).To(HaveKeyWithValue("user_id", BeNumerically("==", 7)))
		Expect(record).NotTo(HaveKey("delivery_id"))
	})

	It("never logs the query string", func() {
		router.Use(middleware.Logger())
		router.GET("/auth/callback", func(c *gin.Context) { c.Status(http.StatusTemporaryRedirect) })

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/callback?code=oauth-code-123&state=s1", nil))

		Expect(logRecord(buf, "request")).To(HaveKeyWithValue("path", "/auth/callback"))
		Expect(buf.String()).NotTo(ContainSubstring("oauth-code-123"))
	})

	It("carries the trace id of the request span", func() {
		provider := sdktrace.NewTracerProvider()
		DeferCleanup(func() { _ = provider.Shutdown(context.Background()) })

		var traceID string
		router.Use(func(c *gin.Context) {
			ctx, span := provider.Tracer("test").Start(c.Request.Context(), "request")
			defer span.End()
			traceID = span.SpanContext().TraceID().String()
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
		router.Use(middleware.Logger())
		router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		Expect(logRecord(buf, "request")).To(HaveKeyWithValue("trace_id", traceID))
	})
})

var _ = Describe("Recovery", func() {
	var (
		buf    *bytes.Buffer
		router *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		buf = captureLogs()
		router = gin.New()
		router.Use(middleware.Recovery())
		router.Use(middleware.Logger())
	})

	It("returns 500 and logs the panic with the delivery fields", func() {
		router.POST("/webhooks/github", func(*gin.Context) { panic("boom") })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest("/webhooks/github"))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(MatchJSON(`{"error":"internal server error"}`))

		record := logRecord(buf, "panic recovered")
		Expect(record).To(HaveKeyWithValue("error", "boom"))
		Expect(record).To(HaveKeyWithValue("delivery_id", "d-42"))
		Expect(record).To(HaveKeyWithValue("route", "/webhooks/github"))
		Expect(record).To(HaveKey("stack"))
	})

	It("leaves a response that was already written alone", func() {
		router.GET("/partial", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("late")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/partial", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("partial"))
	})

	It("re-raises http.ErrAbortHandler", func() {
		router.GET("/abort", func(*gin.Context) { panic(http.ErrAbortHandler) })

		Expect(func() {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
		}).To(PanicWith(http.ErrAbortHandler))
	})
})
