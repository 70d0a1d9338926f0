package api

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joshsymonds/greenbyte/internal/auth"
	"github.com/joshsymonds/greenbyte/internal/credstore"
)

const authHint = "Visit /auth first to connect your Gmail account"

var connectedPage = template.Must(template.New("connected").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>GREENBYTE | Connected</title>
  <style>
    body { font-family: sans-serif; background: #0a1a0d; color: #4ade80; display: flex;
      flex-direction: column; align-items: center; justify-content: center; height: 100vh; margin: 0; }
    p { color: rgba(240,253,244,0.6); font-size: 0.9rem; margin-top: 12px; }
  </style>
</head>
<body>
  <div>Gmail connected successfully!</div>
  <p>Redirecting you back to the <a href="{{.}}">dashboard</a>…</p>
  <script>setTimeout(function () { window.location.href = {{.}}; }, 2000);</script>
</body>
</html>
`))

func (s *Server) handleAuth(c *gin.Context) {
	url, _ := s.auth.Begin()
	c.Redirect(http.StatusFound, url)
}

func (s *Server) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	if denied := c.Query("error"); denied != "" {
		s.metrics.OAuthCallbacks.WithLabelValues("denied").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied: " + denied})
		return
	}

	creds, err := s.auth.Complete(ctx, c.Query("state"), c.Query("code"))
	if errors.Is(err, auth.ErrStateMismatch) {
		s.metrics.OAuthCallbacks.WithLabelValues("state_mismatch").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "State mismatch. Possible CSRF attack."})
		return
	}
	if err != nil {
		s.metrics.OAuthCallbacks.WithLabelValues("exchange_failed").Inc()
		s.logger.WarnContext(ctx, "oauth exchange failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.creds.Save(ctx, s.opts.Account, creds); err != nil {
		s.metrics.OAuthCallbacks.WithLabelValues("save_failed").Inc()
		s.logger.ErrorContext(ctx, "saving credentials", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save credentials"})
		return
	}

	s.metrics.OAuthCallbacks.WithLabelValues("connected").Inc()
	s.logger.InfoContext(ctx, "gmail connected", slog.String("account", s.opts.Account))
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := connectedPage.Execute(c.Writer, s.opts.FrontendURL); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) handleSummary(c *gin.Context) {
	ctx := c.Request.Context()
	sum, err := s.pipe.Run(ctx, s.opts.Account)
	if err == nil {
		c.JSON(http.StatusOK, sum)
		return
	}

	var reauth *credstore.ReauthRequiredError
	switch {
	case errors.Is(err, credstore.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Not authenticated. Please visit /auth to connect Gmail.",
			"hint":  authHint,
		})
	case errors.As(err, &reauth):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": reauth.Error() + ". Please re-authenticate at /auth.",
			"hint":  authHint,
		})
	default:
		s.logger.ErrorContext(ctx, "summary failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
