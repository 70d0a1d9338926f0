package auth

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type stubExchanger struct {
	tok   *oauth2.Token
	err   error
	codes []string
}

func (s *stubExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	_ = ctx
	_ = opts
	s.codes = append(s.codes, code)
	return s.tok, s.err
}

func testConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:5001/callback",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example/auth",
			TokenURL: "https://oauth2.example/token",
		},
	}
}

func TestBeginBuildsOfflineConsentURL(t *testing.T) {
	flow := NewFlow(testConfig())
	raw, state := flow.Begin()
	require.NotEmpty(t, state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "true", q.Get("include_granted_scopes"))
	assert.Equal(t, "http://localhost:5001/callback", q.Get("redirect_uri"))
}

func TestCompleteExchangesCode(t *testing.T) {
	ex := &stubExchanger{tok: (&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}).WithExtra(map[string]any{"scope": "scope-a scope-b"})}
	flow := NewFlow(testConfig())
	flow.Exchanger = ex
	_, state := flow.Begin()

	creds, err := flow.Complete(context.Background(), state, "code-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"code-123"}, ex.codes)
	assert.Equal(t, "access", creds.AccessToken)
	assert.Equal(t, "refresh", creds.RefreshToken)
	assert.Equal(t, "https://oauth2.example/token", creds.TokenURI)
	assert.Equal(t, "client-id", creds.ClientID)
	assert.Equal(t, []string{"scope-a", "scope-b"}, creds.Scopes)
}

func TestCompleteRejectsUnknownAndReusedState(t *testing.T) {
	ex := &stubExchanger{tok: &oauth2.Token{AccessToken: "a"}}
	flow := NewFlow(testConfig())
	flow.Exchanger = ex

	_, err := flow.Complete(context.Background(), "forged", "code")
	require.ErrorIs(t, err, ErrStateMismatch)

	_, state := flow.Begin()
	_, err = flow.Complete(context.Background(), state, "code")
	require.NoError(t, err)
	_, err = flow.Complete(context.Background(), state, "code")
	require.ErrorIs(t, err, ErrStateMismatch)
	assert.Len(t, ex.codes, 1)
}

func TestCompleteRejectsExpiredState(t *testing.T) {
	now := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	flow := NewFlow(testConfig())
	flow.Exchanger = &stubExchanger{tok: &oauth2.Token{AccessToken: "a"}}
	flow.Clock = func() time.Time { return now }
	_, state := flow.Begin()

	now = now.Add(11 * time.Minute)
	_, err := flow.Complete(context.Background(), state, "code")
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCompleteExchangeFailure(t *testing.T) {
	flow := NewFlow(testConfig())
	flow.Exchanger = &stubExchanger{err: errors.New("invalid_grant")}
	_, state := flow.Begin()

	_, err := flow.Complete(context.Background(), state, "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	body := `{"web":{"client_id":"cid","client_secret":"csecret",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth",` +
		`"token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["http://localhost:5001/callback"]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path, "http://127.0.0.1:9000/callback")
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "http://127.0.0.1:9000/callback", cfg.RedirectURL)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.json"), "")
	require.Error(t, err)
}
