package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/greenbyte/internal/credstore"
	gc "github.com/joshsymonds/greenbyte/internal/gmail"
)

// ClientBuildError wraps any failure while constructing the Gmail service.
type ClientBuildError struct {
	Err error
}

func (e *ClientBuildError) Error() string {
	return fmt.Sprintf("failed to build Gmail service: %v", e.Err)
}

func (e *ClientBuildError) Unwrap() error { return e.Err }

// Factory builds Gmail clients from validated credentials.
type Factory interface {
	Build(ctx context.Context, creds credstore.Credentials) (gc.Client, error)
}

// GoogleFactory builds clients against the real Gmail v1 API.
type GoogleFactory struct {
	Config ClientConfig
	// Endpoint overrides the API base URL; empty uses Google's.
	Endpoint string
}

// Build wraps creds into a Gmail v1 client. The token source is static:
// refreshing is the credential manager's job so that it can be persisted.
func (f GoogleFactory) Build(ctx context.Context, creds credstore.Credentials) (gc.Client, error) {
	cfg := f.Config.normalized()
	base := &http.Client{Timeout: cfg.CallTimeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(creds.Token()))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &ClientBuildError{Err: err}
	}
	return NewGoogleAPIClient(svc, cfg), nil
}

// NewGmailctlClient reuses the credentials gmailctl keeps in cfgDir
// (credentials.json + token.json) for users who already authorised it.
func NewGmailctlClient(ctx context.Context, cfgDir string, cfg ClientConfig) (gc.Client, error) {
	svc, err := (localcred.Provider{}).Service(ctx, cfgDir)
	if err != nil {
		return nil, &ClientBuildError{Err: fmt.Errorf("gmailctl credentials in %s: %w", cfgDir, err)}
	}
	return NewGoogleAPIClient(svc, cfg), nil
}

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

var _ Factory = GoogleFactory{}
