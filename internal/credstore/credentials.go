package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAccount is the only account key used today.
const DefaultAccount = "default"

// expiryDelta mirrors oauth2: a token this close to expiry is treated as expired.
const expiryDelta = 10 * time.Second

// ErrNotAuthenticated is returned when no credential record exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// ReauthRequiredError means the stored credentials cannot be made valid
// without running the consent flow again.
type ReauthRequiredError struct {
	Reason string
	Err    error
}

func (e *ReauthRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("re-authentication required: %s: %v", e.Reason, e.Err)
	}
	return "re-authentication required: " + e.Reason
}

func (e *ReauthRequiredError) Unwrap() error { return e.Err }

// Credentials is the persisted OAuth record.
type Credentials struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Expired reports whether the access token is unusable at now. A zero
// expiry never expires; an empty access token always is.
func (c Credentials) Expired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.Expiry.IsZero() {
		return false
	}
	return c.Expiry.Round(0).Add(-expiryDelta).Before(now)
}

// Token converts the record into an oauth2 token.
func (c Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// OAuthConfig rebuilds the client config needed to refresh this record.
func (c Credentials) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURI},
		Scopes:       append([]string(nil), c.Scopes...),
	}
}

// WithToken returns a copy carrying tok's access token and expiry. The
// refresh token is replaced only when tok carries a new one.
func (c Credentials) WithToken(tok *oauth2.Token) Credentials {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	out.AccessToken = tok.AccessToken
	out.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	return out
}

// Store persists one credential record per account.
type Store interface {
	Load(ctx context.Context, account string) (Credentials, error)
	Save(ctx context.Context, account string, creds Credentials) error
}
