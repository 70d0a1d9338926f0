package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const defaultRefreshTimeout = 30 * time.Second

// Manager loads, refreshes and saves credentials. All operations are
// serialised so a refresh never races a reader of the same account.
type Manager struct {
	Store      Store
	Logger     *slog.Logger
	Clock      func() time.Time
	HTTPClient *http.Client

	mu sync.Mutex
}

// NewManager constructs a Manager with sane defaults.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Manager{
		Store:      store,
		Logger:     logger,
		Clock:      time.Now,
		HTTPClient: &http.Client{Timeout: defaultRefreshTimeout},
	}
}

// Save persists creds for account.
func (m *Manager) Save(ctx context.Context, account string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Store.Save(ctx, account, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Load returns the stored record or ErrNotAuthenticated.
func (m *Manager) Load(ctx context.Context, account string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Store.Load(ctx, account)
}

// Valid loads the account's record and makes sure its access token is usable.
func (m *Manager) Valid(ctx context.Context, account string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, err := m.Store.Load(ctx, account)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return Credentials{}, err
		}
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return m.ensureValid(ctx, account, creds)
}

// EnsureValid returns creds unchanged when the access token is still valid,
// otherwise refreshes and persists it.
func (m *Manager) EnsureValid(ctx context.Context, account string, creds Credentials) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureValid(ctx, account, creds)
}

func (m *Manager) ensureValid(ctx context.Context, account string, creds Credentials) (Credentials, error) {
	if !creds.Expired(m.now()) {
		return creds, nil
	}
	if creds.RefreshToken == "" {
		return Credentials{}, &ReauthRequiredError{Reason: "access token expired and no refresh token is stored"}
	}

	m.Logger.InfoContext(ctx, "refreshing access token", slog.String("account", account))
	if m.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}
	// An empty access token forces the source to hit the token endpoint.
	src := creds.OAuthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.Logger.WarnContext(ctx, "token refresh failed", slog.String("account", account), slog.Any("error", err))
		return Credentials{}, &ReauthRequiredError{Reason: "token refresh failed", Err: err}
	}

	refreshed := creds.WithToken(tok)
	if err := m.Store.Save(ctx, account, refreshed); err != nil {
		return Credentials{}, fmt.Errorf("save refreshed credentials: %w", err)
	}
	return refreshed, nil
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock()
}
