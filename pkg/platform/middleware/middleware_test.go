package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
	"flock/pkg/platform/middleware/admin"
	"flock/pkg/platform/middleware/auth"
	"flock/pkg/platform/middleware/metadata"
	"flock/pkg/platform/middleware/request"
	"flock/pkg/platform/middleware/requesttime"
	"flock/pkg/requestcontext"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token != "good" {
		return nil, assert.AnError
	}
	return &auth.JWTClaims{OperatorID: "usher-1"}, nil
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOperator(t *testing.T) {
	var got id.UserID
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.OperatorID(r.Context())
	})

	t.Run("header without validator", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(auth.OperatorHeader, "desk-2")
		rec := serve(auth.Operator(nil, discard)(capture), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.UserID("desk-2"), got)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := serve(auth.Operator(stubValidator{}, discard)(capture), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.UserID("usher-1"), got)
	})

	t.Run("missing and invalid tokens", func(t *testing.T) {
		h := auth.Operator(stubValidator{}, discard)(capture)
		assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})
}

func TestRequestPlumbing(t *testing.T) {
	var requestID, ua, ip string
	var now time.Time
	h := request.RequestID(metadata.ClientMetadata(requesttime.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID, ua, ip, now = requestcontext.RequestID(ctx), requestcontext.UserAgent(ctx), requestcontext.ClientIP(ctx), requestcontext.Now(ctx)
	}))))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "kiosk/1.0")
	req.Header.Set("X-Forwarded-For", "10.1.1.1, 10.0.0.2")
	rec := serve(h, req)

	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(request.HeaderRequestID))
	assert.Equal(t, "kiosk/1.0", ua)
	assert.Equal(t, "10.1.1.1", ip)
	assert.WithinDuration(t, time.Now(), now, time.Minute)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(request.HeaderRequestID, "abc")
	serve(h, req)
	assert.Equal(t, "abc", requestID)
}

func TestRecovery(t *testing.T) {
	h := request.Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	h := admin.RequireAdminToken("secret", discard)(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodPost, "/", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(admin.HeaderAdminToken, "secret")
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)

	open := admin.RequireAdminToken("", discard)(ok)
	assert.Equal(t, http.StatusNoContent, serve(open, httptest.NewRequest(http.MethodPost, "/", nil)).Code)
}
