package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/testutil"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: 200, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: 302, wantLevel: slog.LevelInfo, wantResult: "redirect", wantClass: "3xx"},
		{status: 404, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 503, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		assert.Equal(t, tc.wantLevel, level, "status %d", tc.status)
		assert.Equal(t, tc.wantResult, result, "status %d", tc.status)
		assert.Equal(t, tc.wantClass, statusClass(tc.status), "status %d", tc.status)
	}
}

func TestLogging_Handle(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogging(logger.NewWithWriter(&buf, int(slog.LevelDebug)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/user/{id}/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	lg.Handle(mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/user/42/", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	out := buf.String()
	assert.Contains(t, out, "HTTP request completed")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, `route="GET /api/user/{id}/"`)
}

func TestRecovery_Handle(t *testing.T) {
	t.Parallel()

	h := NewRecovery(testutil.MakeNoopLogger()).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	h := NewRecovery(testutil.MakeNoopLogger()).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS_PreflightAllowed(t *testing.T) {
	t.Parallel()

	h := NewCORS([]string{"https://app.example.com/"}).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("next handler should not be called for preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/login/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsAllowHeaders, rr.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	t.Parallel()

	called := false
	h := NewCORS([]string{"https://app.example.com"}).Handle(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, called)
}

func TestCORS_Origins(t *testing.T) {
	t.Parallel()

	cases := []struct {
		origins []string
		origin  string
		want    bool
	}{
		{origins: []string{"*"}, origin: "https://any.example.com", want: true},
		{origins: []string{"http://127.0.0.1:*"}, origin: "http://127.0.0.1:55123", want: true},
		{origins: []string{"http://127.0.0.1:*"}, origin: "http://127.0.0.1:", want: false},
		{origins: []string{"http://127.0.0.1:*"}, origin: "http://127.0.0.1:80.evil.com", want: false},
		{origins: []string{" "}, origin: "https://app.example.com", want: false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NewCORS(tc.origins).allowed(tc.origin), "%v %s", tc.origins, tc.origin)
	}
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	t.Parallel()

	h := NewCORS(nil).Handle(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

type observation struct {
	method, route string
	status        int
}

type fakeObserver struct{ got []observation }

func (f *fakeObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	f.got = append(f.got, observation{method: method, route: route, status: status})
}

func TestMetrics_Handle(t *testing.T) {
	obs := &fakeObserver{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := NewMetrics(obs).Handle(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, obs.got, 2)
	assert.Equal(t, observation{method: "POST", route: "POST /login/", status: 401}, obs.got[0])
	assert.Equal(t, observation{method: "GET", route: "unmatched", status: 404}, obs.got[1])
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := newStatusRecorder(rr)
	rec.WriteHeader(http.StatusCreated)
	_, _ = rec.Write([]byte("abc"))

	assert.Equal(t, http.StatusCreated, rec.status)
	assert.Equal(t, int64(3), rec.bytes)
	assert.Same(t, rec, newStatusRecorder(rec))
}
