package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greenbyte.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5001", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, 500, cfg.Analysis.PageSize)
	assert.Equal(t, 100, cfg.Analysis.BatchSize)
	assert.Equal(t, 365, cfg.Analysis.OldAfterDays)
	assert.Equal(t, int64(1<<20), cfg.Analysis.LargeAttachmentBytes)
	assert.Equal(t, 30*time.Second, cfg.Analysis.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Analysis.PageSize)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9000
  cors_origins: [https://app.example]
store:
  backend: keyring
analysis:
  page_size: 200
  batch_size: 50
  request_timeout: 5s
log:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, BackendKeyring, cfg.Store.Backend)
	assert.Equal(t, 200, cfg.Analysis.PageSize)
	assert.Equal(t, 50, cfg.Analysis.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Analysis.RequestTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 365, cfg.Analysis.OldAfterDays, "unset keys keep defaults")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "analysis:\n  page_size: 200\n")
	t.Setenv("GREENBYTE_ANALYSIS_PAGE_SIZE", "50")
	t.Setenv("GREENBYTE_SERVER_FRONTEND_URL", "https://green.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Analysis.PageSize)
	assert.Equal(t, "https://green.example", cfg.Server.FrontendURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"backend":    "store:\n  backend: s3\n",
		"page size":  "analysis:\n  page_size: 501\n",
		"batch size": "analysis:\n  batch_size: 0\n",
		"rps":        "analysis:\n  rps: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed\n"))
	require.Error(t, err)
}

func TestAnalyzerOptions(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	opts := cfg.AnalyzerOptions()
	assert.Equal(t, cfg.Analysis.PageSize, opts.PageSize)
	assert.Equal(t, cfg.Analysis.LargeAttachmentBytes, opts.LargeAttachmentBytes)
}
