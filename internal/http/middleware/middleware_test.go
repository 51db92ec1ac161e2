package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"gitplumbers.app/bridge/core/config"
	"gitplumbers.app/bridge/internal/http/middleware"
	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/service"
	"gitplumbers.app/bridge/internal/store"
)

type validatorFunc func(ctx context.Context, token string) (*model.User, *model.Session, error)

func (f validatorFunc) ValidateSession(ctx context.Context, token string) (*model.User, *model.Session, error) {
	return f(ctx, token)
}

// memoryUsers and memorySessions back a real AuthService in the session tests.
type memoryUsers map[int64]*model.User

func (m memoryUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m memoryUsers) UpsertByWorkOSID(_ context.Context, user *model.User) error {
	m[user.ID] = user
	return nil
}

type memorySessions []*model.Session

func (m *memorySessions) Create(_ context.Context, session *model.Session) error {
	*m = append(*m, session)
	return nil
}

func (m *memorySessions) GetValidByTokenHash(_ context.Context, tokenHash []byte) (*model.Session, error) {
	for _, s := range *m {
		if bytes.Equal(s.TokenHash, tokenHash) && !s.Expired(time.Now()) {
			return s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memorySessions) DeleteByTokenHash(_ context.Context, tokenHash []byte) error {
	kept := (*m)[:0]
	for _, s := range *m {
		if !bytes.Equal(s.TokenHash, tokenHash) {
			kept = append(kept, s)
		}
	}
	*m = kept
	return nil
}

var _ = Describe("RequireAuth", func() {
	var (
		router    *gin.Engine
		validator middleware.SessionValidator
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		validator = validatorFunc(func(_ context.Context, token string) (*model.User, *model.Session, error) {
			Expect(token).To(Equal("tok-31"))
			return &model.User{ID: 7}, &model.Session{ID: 31, UserID: 7}, nil
		})
	})

	JustBeforeEach(func() {
		router = gin.New()
		router.GET("/private", middleware.RequireAuth(validator), func(c *gin.Context) {
			user := middleware.GetUser(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{
				"user_id":    user.ID,
				"session_id": middleware.GetSessionID(c.Request.Context()),
			})
		})
	})

	request := func(cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: cookie})
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("attaches the user and session to the request", func() {
		w := request("tok-31")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"user_id":7,"session_id":31}`))
	})

	It("rejects a missing cookie", func() {
		Expect(request("").Code).To(Equal(http.StatusUnauthorized))
	})

	Context("when the session has expired", func() {
		BeforeEach(func() {
			validator = validatorFunc(func(context.Context, string) (*model.User, *model.Session, error) {
				return nil, nil, service.ErrSessionExpired
			})
		})

		It("clears the cookie", func() {
			w := request("tok-31")

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Header().Get("Set-Cookie")).To(ContainSubstring(middleware.SessionCookieName + "=;"))
		})
	})

	Context("when validation fails unexpectedly", func() {
		BeforeEach(func() {
			validator = validatorFunc(func(context.Context, string) (*model.User, *model.Session, error) {
				return nil, nil, errors.New("db down")
			})
		})

		It("returns 500", func() {
			Expect(request("tok-31").Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Context("backed by the auth service", func() {
		const sessionID int64 = 2110287743090167808
		const token = "kq3H0yJcF2rW8mZs5pLx1vNa7dTe9bGu4oQi6hYw0cE"

		BeforeEach(func() {
			users := memoryUsers{7: {ID: 7, Email: "ada@example.com"}}
			sessions := &memorySessions{{
				ID:        sessionID,
				UserID:    7,
				TokenHash: service.HashSessionToken(token),
				ExpiresAt: time.Now().Add(time.Hour),
			}}
			validator = service.NewAuthService(users, sessions, nil, config.WorkOSConfig{ClientID: "client_123"})
		})

		It("accepts the session token", func() {
			w := request(token)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"user_id":7,"session_id":2110287743090167808}`))
		})

		It("rejects a cookie carrying the numeric session id", func() {
			w := request(strconv.FormatInt(sessionID, 10))

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Header().Get("Set-Cookie")).To(ContainSubstring(middleware.SessionCookieName + "=;"))
		})
	})
})

var _ = Describe("TraceHeader", func() {
	It("echoes the active trace id", func() {
		gin.SetMode(gin.TestMode)
		provider := sdktrace.NewTracerProvider()
		DeferCleanup(func() { _ = provider.Shutdown(context.Background()) })

		var traceID string
		router := gin.New()
		router.Use(func(c *gin.Context) {
			ctx, span := provider.Tracer("test").Start(c.Request.Context(), "request")
			defer span.End()
			traceID = span.SpanContext().TraceID().String()
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
		router.Use(middleware.TraceHeader("X-Trace-Id"))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(w.Header().Get("X-Trace-Id")).To(Equal(traceID))
	})

	It("adds nothing without a span", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(middleware.TraceHeader("X-Trace-Id"))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(w.Header().Get("X-Trace-Id")).To(BeEmpty())
	})
})
