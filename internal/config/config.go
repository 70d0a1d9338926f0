// Package config loads runtime settings from an optional YAML file, a .env
// file and GREENBYTE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joshsymonds/greenbyte/internal/analyzer"
)

const envPrefix = "GREENBYTE"

// Store backends.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	FrontendURL     string        `mapstructure:"frontend_url"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	RedirectURL     string `mapstructure:"redirect_url"`
}

type StoreConfig struct {
	Backend         string `mapstructure:"backend"`
	Dir             string `mapstructure:"dir"`
	KeyringPassword string `mapstructure:"keyring_password"`
}

type AnalysisConfig struct {
	PageSize             int           `mapstructure:"page_size"`
	BatchSize            int           `mapstructure:"batch_size"`
	Concurrency          int           `mapstructure:"concurrency"`
	Fanout               int           `mapstructure:"fanout"`
	OldAfterDays         int           `mapstructure:"old_after_days"`
	LargeAttachmentBytes int64         `mapstructure:"large_attachment_bytes"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	RPS                  int           `mapstructure:"rps"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Google   GoogleConfig   `mapstructure:"google"`
	Store    StoreConfig    `mapstructure:"store"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Log      LogConfig      `mapstructure:"log"`
}

// AnalyzerOptions converts the analysis section into analyzer options.
func (c Config) AnalyzerOptions() analyzer.Options {
	return analyzer.Options{
		PageSize:             c.Analysis.PageSize,
		BatchSize:            c.Analysis.BatchSize,
		Concurrency:          c.Analysis.Concurrency,
		OldAfterDays:         c.Analysis.OldAfterDays,
		LargeAttachmentBytes: c.Analysis.LargeAttachmentBytes,
		RequestTimeout:       c.Analysis.RequestTimeout,
	}
}

// DefaultStoreDir is ~/.config/greenbyte, or ./.greenbyte without a home.
func DefaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".greenbyte")
	}
	return filepath.Join(home, ".config", "greenbyte")
}

func setDefaults(v *viper.Viper) {
	opts := analyzer.DefaultOptions()

	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("google.credentials_file", "credentials.json")
	v.SetDefault("google.redirect_url", "http://localhost:5001/callback")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", DefaultStoreDir())
	v.SetDefault("store.keyring_password", "")
	v.SetDefault("analysis.page_size", opts.PageSize)
	v.SetDefault("analysis.batch_size", opts.BatchSize)
	v.SetDefault("analysis.concurrency", opts.Concurrency)
	v.SetDefault("analysis.fanout", 10)
	v.SetDefault("analysis.old_after_days", opts.OldAfterDays)
	v.SetDefault("analysis.large_attachment_bytes", opts.LargeAttachmentBytes)
	v.SetDefault("analysis.request_timeout", opts.RequestTimeout)
	v.SetDefault("analysis.call_timeout", 20*time.Second)
	v.SetDefault("analysis.rps", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path (may be empty) after loading .env from the working
// directory. A missing config file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendKeyring:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendKeyring, c.Store.Backend)
	}
	if c.Analysis.PageSize < 1 || c.Analysis.PageSize > analyzer.MaxPageSize {
		return fmt.Errorf("analysis.page_size must be between 1 and %d", analyzer.MaxPageSize)
	}
	if c.Analysis.BatchSize < 1 || c.Analysis.BatchSize > analyzer.MaxBatchSize {
		return fmt.Errorf("analysis.batch_size must be between 1 and %d", analyzer.MaxBatchSize)
	}
	if c.Analysis.RPS < 0 {
		return errors.New("analysis.rps must not be negative")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	return nil
}
