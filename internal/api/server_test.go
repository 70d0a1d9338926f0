package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/greenbyte/internal/analyzer"
	"github.com/joshsymonds/greenbyte/internal/auth"
	"github.com/joshsymonds/greenbyte/internal/carbon"
	"github.com/joshsymonds/greenbyte/internal/credstore"
	"github.com/joshsymonds/greenbyte/internal/metrics"
	"github.com/joshsymonds/greenbyte/internal/runtime"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

type stubPipeline struct {
	sum      summary.Summary
	err      error
	accounts []string
}

func (p *stubPipeline) Run(ctx context.Context, account string) (summary.Summary, error) {
	_ = ctx
	p.accounts = append(p.accounts, account)
	return p.sum, p.err
}

type stubAuth struct {
	url     string
	state   string
	creds   credstore.Credentials
	err     error
	codes   []string
	started int
}

func (a *stubAuth) Begin() (string, string) {
	a.started++
	return a.url, a.state
}

func (a *stubAuth) Complete(ctx context.Context, state, code string) (credstore.Credentials, error) {
	_ = ctx
	if state != a.state {
		return credstore.Credentials{}, auth.ErrStateMismatch
	}
	a.codes = append(a.codes, code)
	return a.creds, a.err
}

type memSaver struct {
	saved map[string]credstore.Credentials
	err   error
}

func (m *memSaver) Save(ctx context.Context, account string, creds credstore.Credentials) error {
	_ = ctx
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string]credstore.Credentials{}
	}
	m.saved[account] = creds
	return nil
}

type fixture struct {
	srv   *Server
	pipe  *stubPipeline
	auth  *stubAuth
	saver *memSaver
}

func newFixture() *fixture {
	f := &fixture{
		pipe:  &stubPipeline{},
		auth:  &stubAuth{url: "https://accounts.example/auth?state=s1", state: "s1"},
		saver: &memSaver{},
	}
	f.srv = NewServer(Options{
		FrontendURL: "http://localhost:3000/index.html",
		CORSOrigins: []string{"http://localhost:3000"},
	}, f.pipe, f.auth, f.saver, metrics.New("test"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAuthRedirectsToConsent(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, f.auth.url, rec.Header().Get("Location"))
	assert.Equal(t, 1, f.auth.started)
}

func TestCallbackSavesCredentials(t *testing.T) {
	f := newFixture()
	f.auth.creds = credstore.Credentials{AccessToken: "a", RefreshToken: "r"}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=c1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "connected successfully")
	assert.Contains(t, rec.Body.String(), "http://localhost:3000/index.html")
	assert.Equal(t, []string{"c1"}, f.auth.codes)
	assert.Equal(t, "r", f.saver.saved[credstore.DefaultAccount].RefreshToken)
}

func TestCallbackStateMismatch(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=c1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "State mismatch")
	assert.Empty(t, f.saver.saved)
}

func TestCallbackDenied(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&state=s1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.auth.codes)
}

func TestCallbackSaveFailure(t *testing.T) {
	f := newFixture()
	f.saver.err = errors.New("disk full")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=c1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSummarySuccess(t *testing.T) {
	f := newFixture()
	f.pipe.sum = summary.Assemble(analyzer.Stats{EmailsAnalyzed: 4, OldEmailsCount: 1, TotalSizeMB: 100}, carbon.Calculate(100))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/emails/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Contains(t, body, "email_stats")
	assert.Contains(t, body, "carbon_footprint")
	assert.Equal(t, []string{credstore.DefaultAccount}, f.pipe.accounts)
}

func TestSummaryUnauthenticated(t *testing.T) {
	for name, err := range map[string]error{
		"missing": credstore.ErrNotAuthenticated,
		"reauth":  &credstore.ReauthRequiredError{Reason: "token refresh failed", Err: errors.New("invalid_grant")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.pipe.err = err
			rec := f.do(httptest.NewRequest(http.MethodGet, "/emails/summary", nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, authHint, body["hint"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSummaryServerErrors(t *testing.T) {
	for name, err := range map[string]error{
		"build":    &runtime.ClientBuildError{Err: errors.New("dial")},
		"analysis": &analyzer.AnalysisError{Op: "list messages", Err: errors.New("quota")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.pipe.err = err
			rec := f.do(httptest.NewRequest(http.MethodGet, "/emails/summary", nil))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, err.Error(), body["error"])
			assert.NotContains(t, body, "hint")
		})
	}
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := f.do(req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = f.do(req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/emails/summary", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := newFixture().do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCorrelationIDPropagated(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(correlationHeader, "abc-123")
	rec := f.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get(correlationHeader))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(correlationHeader), 36)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_http_requests_total{method="GET",route="/health",status="200"} 1`))
}
