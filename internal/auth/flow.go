// Package auth drives the OAuth consent round trip: issuing a state-bound
// consent URL and exchanging the returned code for credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/joshsymonds/greenbyte/internal/credstore"
)

const defaultStateTTL = 10 * time.Minute

// ErrStateMismatch is returned when a callback carries an unknown or
// expired state value.
var ErrStateMismatch = errors.New("state mismatch, possible CSRF attack")

// LoadConfig reads a Google client secret file (credentials.json) and binds
// it to the read-only Gmail scope and redirectURL.
func LoadConfig(credentialsFile, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// Exchanger swaps an authorization code for a token.
type Exchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// Flow keeps outstanding state values in memory; each is single use.
type Flow struct {
	Config    *oauth2.Config
	Exchanger Exchanger
	StateTTL  time.Duration
	Clock     func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

func NewFlow(cfg *oauth2.Config) *Flow {
	return &Flow{
		Config:    cfg,
		Exchanger: cfg,
		StateTTL:  defaultStateTTL,
		Clock:     time.Now,
		states:    map[string]time.Time{},
	}
}

// Begin returns the consent URL and the state it is bound to. Offline access
// is requested so the provider issues a refresh token.
func (f *Flow) Begin() (string, string) {
	state := uuid.NewString()
	now := f.Clock()

	f.mu.Lock()
	for s, exp := range f.states {
		if now.After(exp) {
			delete(f.states, s)
		}
	}
	f.states[state] = now.Add(f.StateTTL)
	f.mu.Unlock()

	url := f.Config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return url, state
}

// Complete validates state and exchanges code for credentials.
func (f *Flow) Complete(ctx context.Context, state, code string) (credstore.Credentials, error) {
	if !f.consume(state) {
		return credstore.Credentials{}, ErrStateMismatch
	}
	if strings.TrimSpace(code) == "" {
		return credstore.Credentials{}, errors.New("missing authorization code")
	}
	tok, err := f.Exchanger.Exchange(ctx, code)
	if err != nil {
		return credstore.Credentials{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return credstore.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     f.Config.Endpoint.TokenURL,
		ClientID:     f.Config.ClientID,
		ClientSecret: f.Config.ClientSecret,
		Scopes:       grantedScopes(tok, f.Config.Scopes),
		Expiry:       tok.Expiry,
	}, nil
}

func (f *Flow) consume(state string) bool {
	if state == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.states[state]
	if !ok {
		return false
	}
	delete(f.states, state)
	return !f.Clock().After(exp)
}

// grantedScopes prefers the space-separated "scope" field of the token
// response over the requested scopes.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		return strings.Fields(raw)
	}
	return append([]string(nil), requested...)
}
