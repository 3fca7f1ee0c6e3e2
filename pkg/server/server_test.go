package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/migrate"
	"github.com/cuemby/burrow/pkg/router"
)

const migrationsDDL = `CREATE TABLE IF NOT EXISTS %s.migrations (
    hash VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

func testConfig() *config.Config {
	return &config.Config{
		Host:                 "127.0.0.1",
		Port:                 5000,
		DefaultTenant:        "public",
		DefaultLanguage:      "en",
		RateLimit:            100,
		RateWindowSeconds:    60,
		CORSAllowedOrigins:   []string{"https://example.com"},
		CORSAllowedMethods:   "GET, POST, OPTIONS",
		CORSAllowedHeaders:   "Content-Type, Authorization",
		CORSAllowCredentials: true,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, routers ...*router.Router) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	pool := db.NewFromDB(raw, "sqlmock")
	bus := events.NewBus(filepath.Join(t.TempDir(), "events.json"), events.WithTick(time.Hour))
	runner := migrate.NewRunner(pool, t.TempDir())

	return New(cfg, pool, bus, runner, nil, routers...), mock
}

func expectExec(mock sqlmock.Sqlmock, stmt string) {
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectEnsure(mock sqlmock.Sqlmock, ns string) {
	quoted := `"` + ns + `"`
	expectExec(mock, "SET search_path TO "+quoted+", public")
	expectExec(mock, "CREATE SCHEMA IF NOT EXISTS "+quoted)
	expectExec(mock, fmt.Sprintf(migrationsDDL, quoted))
	expectExec(mock, fmt.Sprintf(migrationsDDL, "public"))
	if ns != "public" {
		// The customers table does not exist in the empty migrations dir, so
		// first contact probes the registry and moves on.
		mock.ExpectQuery("SELECT to_regclass('public.customers')").
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
	}
	expectExec(mock, "SET search_path TO public")
}

func expectAcquire(mock sqlmock.Sqlmock, ns string) {
	expectExec(mock, `SET search_path TO "`+ns+`", public`)
}

func expectRelease(mock sqlmock.Sqlmock) {
	expectExec(mock, "SET search_path TO public")
}

func TestResolveTenant(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		host    string
		want    string
	}{
		{name: "x-subdomain wins", headers: map[string]string{"X-Subdomain": "Acme-Corp"}, host: "other.example.com", want: "acme_corp"},
		{name: "forwarded host", headers: map[string]string{"X-Forwarded-Host": "tenant1.example.com"}, host: "example.com", want: "tenant1"},
		{name: "host subdomain", host: "Acme-Corp.example.com", want: "acme_corp"},
		{name: "host with port", host: "tenant2.example.com:8080", want: "tenant2"},
		{name: "bare domain falls back", host: "example.com", want: "public"},
		{name: "no host falls back", want: "public"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Host = tt.host
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ResolveTenant(req, "public"))
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("/users"))
	assert.True(t, limiter.Allow("/users"))
	assert.False(t, limiter.Allow("/users"))
	assert.True(t, limiter.Allow("/other"), "keys are independent")

	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow("/users"), "window slides")
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("/"))
	}
}

func TestEncodeBody(t *testing.T) {
	body := []byte(strings.Repeat("burrow ", 64))

	encoding, encoded := encodeBody("gzip, deflate", body)
	assert.Equal(t, "gzip", encoding)
	assert.NotEqual(t, body, encoded)

	encoding, encoded = encodeBody("deflate", body)
	assert.Equal(t, "deflate", encoding)
	assert.NotEqual(t, body, encoded)

	// Unsupported encodings fall through to the next preference.
	encoding, _ = encodeBody("zstd, br, gzip", body)
	assert.Equal(t, "gzip", encoding)

	encoding, encoded = encodeBody("zstd", body)
	assert.Equal(t, "", encoding)
	assert.Equal(t, body, encoded)

	encoding, _ = encodeBody("", body)
	assert.Equal(t, "", encoding)
}

func TestFaviconShortCircuit(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/favicon.ico", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/x-icon", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, 2, srv.bus.QueuedCount(), "BeforeRequest and AfterRequest")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteParameterRequest(t *testing.T) {
	r := router.New("")
	r.Get("/user/{id:str}", func(_ context.Context, _ *http.Request, params router.Params) ([]byte, error) {
		return []byte("Hello " + params.String("id")), nil
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectExec(mock, "BEGIN")
	expectExec(mock, "COMMIT")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/user/01HZ", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello 01HZ", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecurityHeadersAlwaysPresent(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, contentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, strictTransportSecurity, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.JSONEq(t, `{"detail": "Not Found"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantNamespaceFromHost(t *testing.T) {
	r := router.New("")
	var seen string
	r.Get("/whoami", func(ctx context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		seen = appctx.Tenant(ctx)
		return []byte(seen), nil
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "acme_corp")
	expectAcquire(mock, "acme_corp")
	expectExec(mock, "BEGIN")
	expectExec(mock, "COMMIT")
	expectRelease(mock)

	req := httptest.NewRequest("GET", "http://localhost/whoami", nil)
	req.Host = "Acme-Corp.example.com"
	rec := httptest.NewRecorder()
	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme_corp", seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerErrorRollsBack(t *testing.T) {
	r := router.New("")
	r.Get("/boom", func(_ context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		return nil, fmt.Errorf("wires crossed")
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectExec(mock, "BEGIN")
	expectExec(mock, "ROLLBACK")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "wires crossed"}`, rec.Body.String())
	// BeforeRequest, UnhandledException, AfterRequest.
	assert.Equal(t, 3, srv.bus.QueuedCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPanicBecomesInternalError(t *testing.T) {
	r := router.New("")
	r.Get("/panic", func(_ context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		panic("lost the plot")
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectExec(mock, "BEGIN")
	expectExec(mock, "ROLLBACK")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "lost the plot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitedRequest(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1
	srv, mock := newTestServer(t, cfg)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/limited", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/limited", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"detail": "Rate limit exceeded"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCORSPreflight(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectRelease(mock)

	req := httptest.NewRequest("OPTIONS", "http://example.com/users", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	srv.handle(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "http://example.com/favicon.ico", nil)
	req.Header.Set("Origin", "https://notallowed.com")
	srv.handle(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCookiesAccumulatedOnFrame(t *testing.T) {
	r := router.New("")
	r.Get("/login", func(ctx context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		appctx.AddCookie(ctx, &http.Cookie{Name: "refreshToken", Value: "abc", HttpOnly: true})
		return []byte(`{"ok": true}`), nil
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectExec(mock, "BEGIN")
	expectExec(mock, "COMMIT")
	expectRelease(mock)

	rec := httptest.NewRecorder()
	srv.handle(rec, httptest.NewRequest("GET", "http://example.com/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refreshToken", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompressedResponse(t *testing.T) {
	payload := strings.Repeat("tenants all the way down ", 40)
	r := router.New("")
	r.Get("/big", func(_ context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		return []byte(payload), nil
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	expectAcquire(mock, "public")
	expectExec(mock, "BEGIN")
	expectExec(mock, "COMMIT")
	expectRelease(mock)

	req := httptest.NewRequest("GET", "http://example.com/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.handle(rec, req)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, fmt.Sprint(rec.Body.Len()), rec.Header().Get("Content-Length"))
	assert.Less(t, rec.Body.Len(), len(payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNamespaceEnsuredOncePerProcess(t *testing.T) {
	r := router.New("")
	r.Get("/ping", func(_ context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		return []byte("pong"), nil
	})
	srv, mock := newTestServer(t, testConfig(), r)

	expectEnsure(mock, "public")
	for i := 0; i < 2; i++ {
		expectAcquire(mock, "public")
		expectExec(mock, "BEGIN")
		expectExec(mock, "COMMIT")
		expectRelease(mock)
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.handle(rec, httptest.NewRequest("GET", "http://example.com/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationFailureBody(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	err := apperrors.NewValidationFailure([]apperrors.FieldError{
		{Field: "email", Message: "validationErrors.emailRequiredForMarketing"},
	})
	srv.writeError(rec, httptest.NewRequest("POST", "/register", nil), nil, "en", err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string][]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["validation_errors"], 1)
	assert.Equal(t, "email", body["validation_errors"][0]["field"])
	assert.Equal(t, "validationErrors.emailRequiredForMarketing", body["validation_errors"][0]["message"])
}
